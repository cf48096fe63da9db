package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniity/sedap-express/x/message"
)

func testHeartbeat() message.Heartbeat {
	return message.NewHeartbeat(message.Header{
		Number:         message.Ptr(uint8(7)),
		Time:           message.Ptr(int64(0x0195238E15AD)),
		Sender:         "AB12",
		Classification: message.ClassificationUnclassified,
	}, "CD34")
}

func TestMAC_SignAndVerifyOverWire(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef")
	signed := Sign(testHeartbeat(), key)
	mac := signed.Envelope().MAC
	require.Len(t, mac, 2*MACSize)

	received, _, err := message.Decode(message.Encode(signed))
	require.NoError(t, err)
	assert.Equal(t, message.MACUnchecked, received.Envelope().MACStatus)
	assert.Equal(t, message.MACValid, Verify(received, key))
	assert.Equal(t, message.MACInvalid, Verify(received, []byte("another key.....")))
}

func TestMAC_TamperedBody(t *testing.T) {
	t.Parallel()

	key := []byte("k")
	signed := Sign(testHeartbeat(), key).(message.Heartbeat)
	signed.Recipient = "EVIL"
	assert.Equal(t, message.MACInvalid, Verify(signed, key))
}

func TestMAC_Absent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, message.MACAbsent, Verify(testHeartbeat(), []byte("k")))
}

func TestAuthenticator(t *testing.T) {
	t.Parallel()

	shared := NewKeyRing()
	shared.SetDefault([]byte("pre-shared-key"))
	auth := NewAuthenticator(shared)

	signed := auth.Sign(testHeartbeat())
	require.NotEmpty(t, signed.Envelope().MAC)
	assert.Equal(t, message.MACValid, auth.Verify(signed).Envelope().MACStatus)

	wrong := NewKeyRing()
	wrong.SetDefault([]byte("other"))
	assert.Equal(t, message.MACInvalid, NewAuthenticator(wrong).Verify(signed).Envelope().MACStatus)

	none := NewAuthenticator(NewKeyRing())
	assert.Equal(t, message.MACUnchecked, none.Verify(signed).Envelope().MACStatus)
	assert.Empty(t, none.Sign(testHeartbeat()).Envelope().MAC)
}

func TestKeyRing(t *testing.T) {
	t.Parallel()

	r := NewKeyRing()
	_, ok := r.Key("A")
	assert.False(t, ok)

	r.Set("B", []byte{2})
	r.Set("A", []byte{1})
	k, ok := r.Key("A")
	require.True(t, ok)
	assert.Equal(t, []byte{1}, k)
	assert.Equal(t, []string{"A", "B"}, r.Peers())

	r.SetDefault([]byte{9})
	k, _ = r.Key("Z")
	assert.Equal(t, []byte{9}, k)

	r.Delete("A")
	k, _ = r.Key("A")
	assert.Equal(t, []byte{9}, k)
}

func TestMAC_VerifiesReceivedTextNotReencoding(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef")
	contact := message.NewContact(testHeartbeat().Header, "C1", 53.5, 8.1)
	contact.RelativeX = message.Ptr(1.0)
	contact.RelativeY = message.Ptr(2.0)
	contact.RelativeZ = message.Ptr(3.0)
	contact.Course = message.Ptr(360.5)

	line := message.Encode(Sign(contact, key))
	received, _, err := message.Decode(line)
	require.NoError(t, err)
	require.Nil(t, received.(message.Contact).RelativeX)
	require.Nil(t, received.(message.Contact).Course)
	assert.NotEqual(t, received.Envelope().Received(), message.EncodeUnsigned(received))

	assert.Equal(t, message.MACValid, Verify(received, key))

	tampered, _, err := message.Decode(strings.Replace(line, "53.5", "53.6", 1))
	require.NoError(t, err)
	assert.Equal(t, message.MACInvalid, Verify(tampered, key))

	// re-signing a received record covers what is sent, not what arrived
	resigned, _, err := message.Decode(message.Encode(Sign(received, key)))
	require.NoError(t, err)
	assert.Equal(t, message.MACValid, Verify(resigned, key))
}

func TestAuthenticator_KeySelection(t *testing.T) {
	t.Parallel()

	group := []byte("group-key-000000")
	session := []byte("session-key-0000")

	senderRing := NewKeyRing()
	senderRing.SetDefault(group)
	senderRing.Set("CD34", session)
	sender := NewAuthenticator(senderRing)

	receiverRing := NewKeyRing()
	receiverRing.SetDefault(group)
	receiverRing.Set("AB12", session)
	receiver := NewAuthenticator(receiverRing)

	overWire := func(m message.Message) message.Message {
		got, _, err := message.Decode(message.Encode(m))
		require.NoError(t, err)
		return got
	}

	broadcast := message.NewHeartbeat(testHeartbeat().Header, "")
	signed := overWire(sender.Sign(broadcast))
	assert.Equal(t, message.MACValid, receiver.Verify(signed).Envelope().MACStatus)
	assert.Equal(t, ComputeMAC(broadcast, group), signed.Envelope().MAC)

	signed = overWire(sender.Sign(testHeartbeat()))
	assert.Equal(t, message.MACValid, receiver.Verify(signed).Envelope().MACStatus)
	assert.Equal(t, ComputeMAC(testHeartbeat(), session), signed.Envelope().MAC)

	sessionOnly := NewKeyRing()
	sessionOnly.Set("CD34", session)
	assert.Empty(t, NewAuthenticator(sessionOnly).Sign(broadcast).Envelope().MAC)
}
