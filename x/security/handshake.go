package security

import (
	"errors"
	"fmt"
	"sync"

	"github.com/uniity/sedap-express/x/message"
)

var (
	ErrInvalidPhase      = errors.New("unexpected handshake phase")
	ErrAlgorithmMismatch = errors.New("handshake algorithm mismatch")
)

// State is the progress of one handshake.
type State uint8

const (
	StateIdle State = iota
	// StateParamsSent: DH prime and generator sent, waiting for the peer key.
	StateParamsSent
	// StateKeySent: own key material sent, waiting for the peer's.
	StateKeySent
	// StateKeyReceived: secret derived, waiting for the peer to confirm.
	StateKeyReceived
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParamsSent:
		return "params_sent"
	case StateKeySent:
		return "key_sent"
	case StateKeyReceived:
		return "key_received"
	case StateEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// HandshakeConfig parameterises a handshake between Local and Peer.
type HandshakeConfig struct {
	Local     string
	Peer      string
	Algorithm message.Algorithm
	// KeyBits is the session key length, 128 or 256.
	KeyBits int
	// ModulusBits is the DH modulus length, 1024, 2048 or 4096.
	ModulusBits int
}

func (c *HandshakeConfig) applyDefaults() {
	if c.KeyBits == 0 {
		c.KeyBits = 256
	}
	if c.ModulusBits == 0 {
		c.ModulusBits = 2048
	}
}

// Handshake is the KEYEXCHANGE state machine for one peer pairing. Either side
// may initiate with Start; every received KEYEXCHANGE goes through Handle.
type Handshake struct {
	mu    sync.Mutex
	cfg   HandshakeConfig
	state State
	iv    []byte

	dh  *dhParty
	x   *x25519Party
	kem *kemParty

	key []byte
}

// NewHandshake validates cfg and returns an idle handshake.
func NewHandshake(cfg HandshakeConfig) (*Handshake, error) {
	cfg.applyDefaults()
	if !Supported(cfg.Algorithm) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}
	if cfg.KeyBits != 128 && cfg.KeyBits != 256 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeyLength, cfg.KeyBits)
	}
	return &Handshake{cfg: cfg}, nil
}

func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handshake) Peer() string { return h.cfg.Peer }

func (h *Handshake) Algorithm() message.Algorithm { return h.cfg.Algorithm }

// SessionKey returns the derived key once the handshake is established.
func (h *Handshake) SessionKey() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateEstablished {
		return nil, false
	}
	return append([]byte(nil), h.key...), true
}

// IV returns the IV agreed during the handshake.
func (h *Handshake) IV() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.iv...)
}

// Start produces the opening message: phase 0 parameters for classic DH,
// phase 1 key material otherwise.
func (h *Handshake) Start() (message.KeyExchange, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateIdle {
		return message.KeyExchange{}, fmt.Errorf("%w: start in state %s", ErrInvalidPhase, h.state)
	}
	iv, err := GenerateIV()
	if err != nil {
		return message.KeyExchange{}, err
	}
	h.iv = iv

	switch h.cfg.Algorithm {
	case message.AlgorithmDH:
		p, g, err := Group(h.cfg.ModulusBits)
		if err != nil {
			return message.KeyExchange{}, err
		}
		if h.dh, err = newDHParty(p, g); err != nil {
			return message.KeyExchange{}, err
		}
		k := h.reply(message.PhaseParameters)
		k.KeyLengthDHKEM = message.Ptr(h.cfg.ModulusBits)
		k.Prime, k.Generator = p, g
		h.state = StateParamsSent
		return k, nil

	case message.AlgorithmDHCurve25519:
		if h.x, err = newX25519Party(); err != nil {
			return message.KeyExchange{}, err
		}
		pub, err := h.x.public()
		if err != nil {
			return message.KeyExchange{}, err
		}
		k := h.reply(message.PhasePublicKey)
		k.PublicKey = pub
		h.state = StateKeySent
		return k, nil

	default:
		if h.kem, err = newKEMParty(h.cfg.Algorithm); err != nil {
			return message.KeyExchange{}, err
		}
		k := h.reply(message.PhasePublicKey)
		k.PublicKey = h.kem.public()
		h.state = StateKeySent
		return k, nil
	}
}

// Handle advances the state machine with a received message and returns the
// answer to send, if any.
func (h *Handshake) Handle(in message.KeyExchange) (*message.KeyExchange, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if in.Algorithm == nil || in.Phase == nil {
		return nil, fmt.Errorf("%w: algorithm and phase are required", ErrInvalidPhase)
	}
	if *in.Algorithm != h.cfg.Algorithm {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrAlgorithmMismatch, *in.Algorithm, h.cfg.Algorithm)
	}

	switch phase := *in.Phase; {
	case phase == message.PhaseParameters && h.state == StateIdle:
		return h.acceptParameters(in)
	case phase == message.PhasePublicKey && h.state == StateIdle:
		return h.acceptOpeningKey(in)
	case phase == message.PhasePublicKey && h.state == StateParamsSent:
		return h.answerWithDHKey(in)
	case phase == message.PhasePublicKey && h.state == StateKeySent:
		return h.complete(in)
	case phase == message.PhaseEstablished && h.state == StateKeyReceived:
		h.state = StateEstablished
		return nil, nil
	case phase == message.PhaseEstablished && h.state == StateEstablished:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: phase %d in state %s", ErrInvalidPhase, phase, h.state)
	}
}

// acceptParameters answers DH parameters with our public value.
func (h *Handshake) acceptParameters(in message.KeyExchange) (*message.KeyExchange, error) {
	if h.cfg.Algorithm != message.AlgorithmDH {
		return nil, fmt.Errorf("%w: parameters are only exchanged for DH", ErrInvalidPhase)
	}
	h.adoptOffer(in)
	if in.KeyLengthDHKEM != nil {
		h.cfg.ModulusBits = *in.KeyLengthDHKEM
	}

	dh, err := newDHParty(in.Prime, in.Generator)
	if err != nil {
		return nil, err
	}
	h.dh = dh

	out := h.reply(message.PhasePublicKey)
	out.PublicKey = dh.public()
	h.state = StateKeySent
	return &out, nil
}

// acceptOpeningKey is the responder side of X25519 and ML-KEM.
func (h *Handshake) acceptOpeningKey(in message.KeyExchange) (*message.KeyExchange, error) {
	h.adoptOffer(in)
	out := h.reply(message.PhasePublicKey)

	var secret []byte
	switch h.cfg.Algorithm {
	case message.AlgorithmDH:
		return nil, fmt.Errorf("%w: DH starts with parameters", ErrInvalidPhase)
	case message.AlgorithmDHCurve25519:
		x, err := newX25519Party()
		if err != nil {
			return nil, err
		}
		if secret, err = x.shared(in.PublicKey); err != nil {
			return nil, err
		}
		if out.PublicKey, err = x.public(); err != nil {
			return nil, err
		}
	default:
		s, ct, err := encapsulate(h.cfg.Algorithm, in.PublicKey)
		if err != nil {
			return nil, err
		}
		secret, out.PublicKey = s, ct
	}

	if err := h.establish(secret); err != nil {
		return nil, err
	}
	h.state = StateKeyReceived
	return &out, nil
}

// answerWithDHKey is the DH initiator receiving the responder's public value.
func (h *Handshake) answerWithDHKey(in message.KeyExchange) (*message.KeyExchange, error) {
	secret, err := h.dh.shared(in.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := h.establish(secret); err != nil {
		return nil, err
	}
	out := h.reply(message.PhasePublicKey)
	out.PublicKey = h.dh.public()
	h.state = StateKeyReceived
	return &out, nil
}

// complete derives the secret from the peer's answer and confirms.
func (h *Handshake) complete(in message.KeyExchange) (*message.KeyExchange, error) {
	var (
		secret []byte
		err    error
	)
	switch {
	case h.dh != nil:
		secret, err = h.dh.shared(in.PublicKey)
	case h.x != nil:
		secret, err = h.x.shared(in.PublicKey)
	case h.kem != nil:
		secret, err = h.kem.decapsulate(in.PublicKey)
	default:
		err = fmt.Errorf("%w: no local key material", ErrInvalidPhase)
	}
	if err != nil {
		return nil, err
	}
	if err := h.establish(secret); err != nil {
		return nil, err
	}
	out := h.reply(message.PhaseEstablished)
	h.state = StateEstablished
	return &out, nil
}

// adoptOffer takes over the negotiable parameters of an opening message.
func (h *Handshake) adoptOffer(in message.KeyExchange) {
	if in.KeyLengthSharedSecret != nil {
		h.cfg.KeyBits = *in.KeyLengthSharedSecret
	}
	if len(in.IV) == IVSize {
		h.iv = append([]byte(nil), in.IV...)
	}
}

func (h *Handshake) establish(secret []byte) error {
	key, err := deriveKey(secret, h.iv, h.cfg.KeyBits)
	if err != nil {
		return err
	}
	h.key = key
	return nil
}

// reply builds an outgoing message; the opening messages carry the offer.
func (h *Handshake) reply(phase uint8) message.KeyExchange {
	k := message.NewKeyExchange(message.Header{Sender: h.cfg.Local}, h.cfg.Peer, h.cfg.Algorithm, phase)
	if h.state == StateIdle {
		k.KeyLengthSharedSecret = message.Ptr(h.cfg.KeyBits)
		k.IV = append([]byte(nil), h.iv...)
	}
	return k
}

