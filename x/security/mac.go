package security

import (
	"crypto/hmac"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/uniity/sedap-express/x/message"
)

// MACSize is the number of digest bytes carried in the MAC field.
const MACSize = 4

// ComputeMAC returns the MAC of m in upper-case hex. The MAC field itself is
// excluded from the input.
func ComputeMAC(m message.Message, key []byte) string {
	return macOf(message.EncodeUnsigned(m), key)
}

func macOf(unsigned string, key []byte) string {
	mac := hmac.New(sha3.New256, key)
	mac.Write([]byte(unsigned))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)[:MACSize]))
}

// Sign returns a copy of m carrying its MAC.
func Sign(m message.Message, key []byte) message.Message {
	h := m.Envelope().WithoutReceived()
	h.MAC = ComputeMAC(m, key)
	h.MACStatus = message.MACValid
	return m.WithEnvelope(h)
}

// Verify checks the MAC carried by m. Received messages are checked against
// the text that arrived, so decoding normalization does not void a MAC.
func Verify(m message.Message, key []byte) message.MACStatus {
	h := m.Envelope()
	if h.MAC == "" {
		return message.MACAbsent
	}
	unsigned := h.Received()
	if unsigned == "" {
		unsigned = message.EncodeUnsigned(m)
	}
	if hmac.Equal([]byte(strings.ToUpper(h.MAC)), []byte(macOf(unsigned, key))) {
		return message.MACValid
	}
	return message.MACInvalid
}
