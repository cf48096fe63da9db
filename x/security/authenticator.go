package security

import (
	"github.com/uniity/sedap-express/x/message"
)

// Authenticator signs outbound and verifies inbound records with keys from a KeyRing.
//
// Both directions pick the key the same way: a record addressed to one node
// uses the session key shared by sender and recipient, a broadcast uses the
// default key.
type Authenticator struct {
	keys *KeyRing
}

func NewAuthenticator(keys *KeyRing) *Authenticator {
	return &Authenticator{keys: keys}
}

// Sign adds a MAC keyed for the recipient, or the default key for broadcasts.
// Messages are returned unchanged when no key is known.
func (a *Authenticator) Sign(m message.Message) message.Message {
	key, ok := a.key(message.Recipient(m))
	if !ok {
		return m
	}
	return Sign(m, key)
}

// Verify records the MAC status of a received message. A mismatch is flagged,
// the message is still returned for delivery.
func (a *Authenticator) Verify(m message.Message) message.Message {
	h := m.Envelope()
	if h.MAC == "" {
		h.MACStatus = message.MACAbsent
		return m.WithEnvelope(h)
	}
	peer := ""
	if message.Recipient(m) != "" {
		peer = h.Sender
	}
	key, ok := a.key(peer)
	if !ok {
		h.MACStatus = message.MACUnchecked
		return m.WithEnvelope(h)
	}
	h.MACStatus = Verify(m, key)
	return m.WithEnvelope(h)
}

// key returns the session key for peer, or the default key when peer is
// empty or has no session.
func (a *Authenticator) key(peer string) ([]byte, bool) {
	if peer == "" {
		return a.keys.Default()
	}
	return a.keys.Key(peer)
}
