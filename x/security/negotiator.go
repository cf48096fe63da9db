package security

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/x/message"
)

// Sender queues a message for transmission.
type Sender interface {
	Send(m message.Message) bool
}

var ErrSendRejected = errors.New("handshake message rejected by sender")

// Negotiator drives one handshake per peer from received KEYEXCHANGE messages
// and installs established session keys into a KeyRing.
type Negotiator struct {
	mu       sync.Mutex
	local    string
	defaults HandshakeConfig
	keys     *KeyRing
	out      Sender
	log      zerolog.Logger
	sessions map[string]*Handshake

	onEstablished func(peer string)
}

type NegotiatorOption func(*Negotiator)

// WithDefaults sets the algorithm and key sizes used when initiating.
func WithDefaults(a message.Algorithm, keyBits, modulusBits int) NegotiatorOption {
	return func(n *Negotiator) {
		n.defaults.Algorithm = a
		n.defaults.KeyBits = keyBits
		n.defaults.ModulusBits = modulusBits
	}
}

// OnEstablished registers a callback run after a session key is installed.
func OnEstablished(fn func(peer string)) NegotiatorOption {
	return func(n *Negotiator) { n.onEstablished = fn }
}

func NewNegotiator(local string, keys *KeyRing, out Sender, log zerolog.Logger, opts ...NegotiatorOption) *Negotiator {
	n := &Negotiator{
		local:    local,
		defaults: HandshakeConfig{Algorithm: message.AlgorithmDHCurve25519},
		keys:     keys,
		out:      out,
		log:      log.With().Str("component", "key-negotiator").Logger(),
		sessions: make(map[string]*Handshake),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Initiate starts a handshake with peer, replacing any previous one.
func (n *Negotiator) Initiate(peer string) error {
	cfg := n.defaults
	cfg.Local, cfg.Peer = n.local, peer
	hs, err := NewHandshake(cfg)
	if err != nil {
		return err
	}
	first, err := hs.Start()
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.sessions[peer] = hs
	n.mu.Unlock()

	n.log.Info().Str("peer", peer).Str("algorithm", cfg.Algorithm.String()).Msg("Starting key exchange")
	if !n.out.Send(first) {
		return ErrSendRejected
	}
	return nil
}

// State returns the handshake state with peer.
func (n *Negotiator) State(peer string) State {
	n.mu.Lock()
	defer n.mu.Unlock()
	if hs, ok := n.sessions[peer]; ok {
		return hs.State()
	}
	return StateIdle
}

// HandleMessage consumes KEYEXCHANGE messages addressed to the local node.
func (n *Negotiator) HandleMessage(m message.Message) error {
	k, ok := m.(message.KeyExchange)
	if !ok {
		return nil
	}
	if k.Recipient != "" && k.Recipient != n.local {
		return nil
	}
	peer := k.Sender
	if peer == "" || peer == n.local {
		return nil
	}

	hs, err := n.session(peer, k)
	if err != nil {
		return err
	}

	before := hs.State()
	reply, err := hs.Handle(k)
	if err != nil {
		n.mu.Lock()
		if n.sessions[peer] == hs {
			delete(n.sessions, peer)
		}
		n.mu.Unlock()
		return fmt.Errorf("key exchange with %s: %w", peer, err)
	}

	if key, ok := hs.SessionKey(); ok && before != StateEstablished {
		n.keys.Set(peer, key)
		n.log.Info().Str("peer", peer).Str("algorithm", hs.Algorithm().String()).Msg("Session key established")
		if n.onEstablished != nil {
			n.onEstablished(peer)
		}
	}
	if reply != nil && !n.out.Send(*reply) {
		return ErrSendRejected
	}
	return nil
}

// session returns the running handshake with peer or creates a responder for
// an opening message.
func (n *Negotiator) session(peer string, k message.KeyExchange) (*Handshake, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	opening := k.Phase != nil && *k.Phase != message.PhaseEstablished
	hs, ok := n.sessions[peer]
	if ok && !(opening && hs.State() == StateEstablished) {
		return hs, nil
	}
	if !opening || k.Algorithm == nil {
		return nil, fmt.Errorf("key exchange with %s: %w: no handshake in progress", peer, ErrInvalidPhase)
	}

	cfg := n.defaults
	cfg.Local, cfg.Peer, cfg.Algorithm = n.local, peer, *k.Algorithm
	hs, err := NewHandshake(cfg)
	if err != nil {
		return nil, err
	}
	n.sessions[peer] = hs
	n.log.Debug().Str("peer", peer).Str("algorithm", cfg.Algorithm.String()).Msg("Responding to key exchange")
	return hs, nil
}
