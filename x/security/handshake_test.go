package security

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniity/sedap-express/x/message"
)

// overWire sends k through the text codec the way a transport would.
func overWire(t *testing.T, k message.KeyExchange) message.KeyExchange {
	t.Helper()
	h := k.Header
	h.Number = message.Ptr(uint8(1))
	h.Time = message.Ptr(int64(0x0195238E15AD))
	h.Classification = message.ClassificationRestricted

	m, diags, err := message.Decode(message.Encode(k.WithEnvelope(h)))
	require.NoError(t, err)
	require.False(t, diags.HasSevere(), "diagnostics: %v", diags)
	return m.(message.KeyExchange)
}

func runHandshake(t *testing.T, a message.Algorithm, keyBits int) (*Handshake, *Handshake) {
	t.Helper()

	alice, err := NewHandshake(HandshakeConfig{Local: "A1", Peer: "B2", Algorithm: a, KeyBits: keyBits, ModulusBits: 1024})
	require.NoError(t, err)
	bob, err := NewHandshake(HandshakeConfig{Local: "B2", Peer: "A1", Algorithm: a})
	require.NoError(t, err)

	first, err := alice.Start()
	require.NoError(t, err)

	next := overWire(t, first)
	from, to := alice, bob
	for i := 0; i < 6; i++ {
		reply, err := to.Handle(next)
		require.NoError(t, err, "step %d", i)
		if reply == nil {
			break
		}
		assert.Equal(t, to.cfg.Local, reply.Sender)
		assert.Equal(t, from.cfg.Local, reply.Recipient)
		next = overWire(t, *reply)
		from, to = to, from
	}
	return alice, bob
}

func TestHandshake_AllSupportedAlgorithms(t *testing.T) {
	t.Parallel()

	for _, a := range []message.Algorithm{
		message.AlgorithmDH,
		message.AlgorithmDHCurve25519,
		message.AlgorithmKyber768,
		message.AlgorithmKyber1024,
	} {
		t.Run(a.String(), func(t *testing.T) {
			t.Parallel()

			alice, bob := runHandshake(t, a, 128)
			require.Equal(t, StateEstablished, alice.State())
			require.Equal(t, StateEstablished, bob.State())

			ka, ok := alice.SessionKey()
			require.True(t, ok)
			kb, ok := bob.SessionKey()
			require.True(t, ok)
			assert.Len(t, ka, 16)
			assert.Equal(t, ka, kb)
			assert.Equal(t, alice.IV(), bob.IV())
		})
	}
}

func TestHandshake_SessionKeyEncryptsTraffic(t *testing.T) {
	t.Parallel()

	alice, bob := runHandshake(t, message.AlgorithmDHCurve25519, 256)
	ka, _ := alice.SessionKey()
	kb, _ := bob.SessionKey()

	enc, err := EncryptCTR(contactRecord, ka, alice.IV())
	require.NoError(t, err)
	dec, err := DecryptCTR(enc, kb, bob.IV())
	require.NoError(t, err)
	assert.Equal(t, contactRecord, dec)
}

func TestHandshake_Unsupported(t *testing.T) {
	t.Parallel()

	for _, a := range []message.Algorithm{message.AlgorithmKyber512, message.AlgorithmFrodoKEM640, message.AlgorithmFrodoKEM1344} {
		_, err := NewHandshake(HandshakeConfig{Local: "A", Peer: "B", Algorithm: a})
		assert.ErrorIs(t, err, ErrUnsupportedAlgorithm, a.String())
	}

	_, err := NewHandshake(HandshakeConfig{Local: "A", Peer: "B", Algorithm: message.AlgorithmDH, KeyBits: 192})
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestHandshake_UnexpectedPhase(t *testing.T) {
	t.Parallel()

	hs, err := NewHandshake(HandshakeConfig{Local: "A", Peer: "B", Algorithm: message.AlgorithmDHCurve25519})
	require.NoError(t, err)

	_, err = hs.Handle(message.NewKeyExchange(message.Header{Sender: "B"}, "A", message.AlgorithmDHCurve25519, message.PhaseEstablished))
	require.ErrorIs(t, err, ErrInvalidPhase)

	_, err = hs.Handle(message.NewKeyExchange(message.Header{Sender: "B"}, "A", message.AlgorithmDHCurve25519, message.PhaseParameters))
	require.ErrorIs(t, err, ErrInvalidPhase)

	_, err = hs.Handle(message.NewKeyExchange(message.Header{Sender: "B"}, "A", message.AlgorithmKyber768, message.PhasePublicKey))
	require.ErrorIs(t, err, ErrAlgorithmMismatch)

	_, err = hs.Start()
	require.NoError(t, err)
	_, err = hs.Start()
	require.ErrorIs(t, err, ErrInvalidPhase)
}

func TestHandshake_RejectsBadPublicKey(t *testing.T) {
	t.Parallel()

	hs, err := NewHandshake(HandshakeConfig{Local: "A", Peer: "B", Algorithm: message.AlgorithmKyber768})
	require.NoError(t, err)

	k := message.NewKeyExchange(message.Header{Sender: "B"}, "A", message.AlgorithmKyber768, message.PhasePublicKey)
	k.PublicKey = []byte{1, 2, 3}
	_, err = hs.Handle(k)
	require.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestGroup(t *testing.T) {
	t.Parallel()

	for _, bits := range []int{1024, 2048, 4096} {
		p, g, err := Group(bits)
		require.NoError(t, err)
		assert.Equal(t, bits, p.BitLen())
		assert.True(t, p.ProbablyPrime(4))
		assert.Equal(t, int64(2), g.Int64())
	}
	_, _, err := Group(3072)
	assert.Error(t, err)
}

type queueSender struct {
	out []message.Message
}

func (q *queueSender) Send(m message.Message) bool {
	q.out = append(q.out, m)
	return true
}

func TestNegotiator_EstablishesKeys(t *testing.T) {
	t.Parallel()

	for _, a := range []message.Algorithm{message.AlgorithmDH, message.AlgorithmKyber768} {
		t.Run(a.String(), func(t *testing.T) {
			t.Parallel()

			var established []string
			ringA, ringB := NewKeyRing(), NewKeyRing()
			qa, qb := &queueSender{}, &queueSender{}
			na := NewNegotiator("A1", ringA, qa, zerolog.Nop(), WithDefaults(a, 256, 1024),
				OnEstablished(func(peer string) { established = append(established, "A1->"+peer) }))
			nb := NewNegotiator("B2", ringB, qb, zerolog.Nop(),
				OnEstablished(func(peer string) { established = append(established, "B2->"+peer) }))

			require.NoError(t, na.Initiate("B2"))
			for i := 0; i < 10; i++ {
				toB, toA := qa.out, qb.out
				qa.out, qb.out = nil, nil
				if len(toA)+len(toB) == 0 {
					break
				}
				for _, m := range toB {
					require.NoError(t, nb.HandleMessage(overWire(t, m.(message.KeyExchange))))
				}
				for _, m := range toA {
					require.NoError(t, na.HandleMessage(overWire(t, m.(message.KeyExchange))))
				}
			}

			assert.Equal(t, StateEstablished, na.State("B2"))
			assert.Equal(t, StateEstablished, nb.State("A1"))
			ka, ok := ringA.Key("B2")
			require.True(t, ok)
			kb, ok := ringB.Key("A1")
			require.True(t, ok)
			assert.Len(t, ka, 32)
			assert.Equal(t, ka, kb)
			assert.ElementsMatch(t, []string{"A1->B2", "B2->A1"}, established)
		})
	}
}

func TestNegotiator_IgnoresForeignTraffic(t *testing.T) {
	t.Parallel()

	q := &queueSender{}
	n := NewNegotiator("A1", NewKeyRing(), q, zerolog.Nop())

	require.NoError(t, n.HandleMessage(message.NewHeartbeat(message.Header{Sender: "B2"}, "")))
	require.NoError(t, n.HandleMessage(message.NewKeyExchange(message.Header{Sender: "B2"}, "C3",
		message.AlgorithmDHCurve25519, message.PhasePublicKey)))
	assert.Empty(t, q.out)

	err := n.HandleMessage(message.NewKeyExchange(message.Header{Sender: "B2"}, "A1",
		message.AlgorithmDHCurve25519, message.PhaseEstablished))
	assert.ErrorIs(t, err, ErrInvalidPhase)
}
