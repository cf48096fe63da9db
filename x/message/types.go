// Package message implements the SEDAP-Express wire records: the closed set of
// message types, their field grammars and the lenient text codec.
package message

import "strings"

// Type is the tag at wire position 0.
type Type string

const (
	TypeContact     Type = "CONTACT"
	TypeEmission    Type = "EMISSION"
	TypeGraphic     Type = "GRAPHIC"
	TypeKeyExchange Type = "KEYEXCHANGE"
	TypeCommand     Type = "COMMAND"
	TypeStatus      Type = "STATUS"
	TypeAcknowledge Type = "ACKNOWLEDGE"
	TypeHeartbeat   Type = "HEARTBEAT"
	TypeOwnUnit     Type = "OWNUNIT"
	TypeMeteo       Type = "METEO"
	TypeText        Type = "TEXT"
)

// Types returns every known type tag in wire order of the protocol description.
func Types() []Type {
	return []Type{
		TypeContact, TypeEmission, TypeGraphic, TypeKeyExchange, TypeCommand, TypeStatus,
		TypeAcknowledge, TypeHeartbeat, TypeOwnUnit, TypeMeteo, TypeText,
	}
}

// ParseType resolves a tag case-insensitively.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, true
		}
	}
	return t, false
}

func (t Type) String() string { return string(t) }

// Message is implemented by every record type of this package only.
type Message interface {
	Type() Type
	// Envelope returns the shared header fields.
	Envelope() Header
	// WithEnvelope returns a copy of the message carrying h.
	WithEnvelope(h Header) Message

	body() []string
}

// Ptr returns a pointer to v. Optional fields are pointers, nil meaning absent.
func Ptr[T any](v T) *T {
	return &v
}

// Classification is the ordered sensitivity marking of a record.
type Classification uint8

const (
	ClassificationNone Classification = iota
	ClassificationPublic
	ClassificationUnclassified
	ClassificationRestricted
	ClassificationConfidential
	ClassificationSecret
	ClassificationTopSecret
)

var classificationCodes = map[Classification]string{
	ClassificationPublic:       "P",
	ClassificationUnclassified: "U",
	ClassificationRestricted:   "R",
	ClassificationConfidential: "C",
	ClassificationSecret:       "S",
	ClassificationTopSecret:    "T",
}

// Code returns the one-letter wire code, empty for ClassificationNone.
func (c Classification) Code() string {
	return classificationCodes[c]
}

func (c Classification) String() string {
	switch c {
	case ClassificationPublic:
		return "public"
	case ClassificationUnclassified:
		return "unclassified"
	case ClassificationRestricted:
		return "restricted"
	case ClassificationConfidential:
		return "confidential"
	case ClassificationSecret:
		return "secret"
	case ClassificationTopSecret:
		return "top_secret"
	default:
		return "none"
	}
}

// ParseClassification maps a wire code; unknown codes yield ClassificationNone and false.
func ParseClassification(s string) (Classification, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for c, code := range classificationCodes {
		if code == s {
			return c, true
		}
	}
	return ClassificationNone, false
}

// MACStatus records what the receiver learned about a record's MAC.
type MACStatus uint8

const (
	MACAbsent MACStatus = iota
	MACUnchecked
	MACValid
	MACInvalid
)

func (s MACStatus) String() string {
	switch s {
	case MACUnchecked:
		return "unchecked"
	case MACValid:
		return "valid"
	case MACInvalid:
		return "invalid"
	default:
		return "absent"
	}
}

// Header holds the envelope fields at wire positions 1 to 6.
type Header struct {
	Number          *uint8
	Time            *int64 // epoch millis
	Sender          string
	Classification  Classification
	Acknowledgement *bool
	MAC             string

	// MACStatus is set on receipt and never serialized.
	MACStatus MACStatus

	// received is the record as it arrived with the MAC token emptied.
	received string
}

// Received returns the record as it arrived on the wire with its MAC field
// emptied, the text a sender's MAC covers. It is empty for locally built
// messages.
func (h Header) Received() string { return h.received }

// WithoutReceived returns h detached from the record it was decoded from.
func (h Header) WithoutReceived() Header {
	h.received = ""
	return h
}

// Encoding selects how free text is carried on the wire.
type Encoding string

const (
	EncodingNone   Encoding = "NONE"
	EncodingBase64 Encoding = "BASE64"
)

// Recipient returns the addressee of m, empty when m is a broadcast.
func Recipient(m Message) string {
	switch v := m.(type) {
	case KeyExchange:
		return v.Recipient
	case Command:
		return v.Recipient
	case Acknowledge:
		return v.Recipient
	case Heartbeat:
		return v.Recipient
	case Text:
		return v.Recipient
	default:
		return ""
	}
}
