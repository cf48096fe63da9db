package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyRecord = errors.New("empty record")
	ErrUnknownType = errors.New("unknown message type")
)

// Delimiter separates the fields of a record.
const Delimiter = ";"

// headerLen is the number of envelope tokens following the type tag.
const headerLen = 6

var headerFields = []field[Header]{
	hexField("Number", true, func(h *Header) **uint8 { return &h.Number }, 8, 2),
	{
		name:     "Time",
		required: always[Header](true),
		decode: func(h *Header, tok string) error {
			v, err := strconv.ParseInt(tok, 16, 64)
			if err != nil {
				return err
			}
			if v < 0 {
				return errOutOfRange
			}
			h.Time = &v
			return nil
		},
		encode: func(h *Header) string {
			if h.Time == nil {
				return ""
			}
			return fmt.Sprintf("%012X", *h.Time)
		},
	},
	stringField("Sender", true, func(h *Header) *string { return &h.Sender }),
	{
		name:     "Classification",
		required: always[Header](true),
		decode: func(h *Header, tok string) error {
			c, ok := ParseClassification(tok)
			h.Classification = c
			if !ok {
				return errors.New("unknown classification code")
			}
			return nil
		},
		encode: func(h *Header) string { return h.Classification.Code() },
	},
	boolField("Acknowledgement", false, func(h *Header) **bool { return &h.Acknowledgement }),
	patternField("MAC", false, func(h *Header) *string { return &h.MAC },
		func(s string) bool { return isHex(s, 0) }),
}

type decodeFunc func(h Header, body []string, d *Diagnostics) Message

// decoders is the closed dispatch table from tag to field grammar.
var decoders = map[Type]decodeFunc{
	TypeContact:     decodeContact,
	TypeEmission:    decodeEmission,
	TypeGraphic:     decodeGraphic,
	TypeKeyExchange: decodeKeyExchange,
	TypeCommand:     decodeCommand,
	TypeStatus:      decodeStatus,
	TypeAcknowledge: decodeAcknowledge,
	TypeHeartbeat:   decodeHeartbeat,
	TypeOwnUnit:     decodeOwnUnit,
	TypeMeteo:       decodeMeteo,
	TypeText:        decodeText,
}

// Encode serializes m into one wire record without line terminator.
// Trailing empty fields are omitted.
func Encode(m Message) string {
	h := m.Envelope()
	parts := make([]string, 0, 1+headerLen+16)
	parts = append(parts, string(m.Type()))
	parts = append(parts, encodeFields(&h, headerFields)...)
	parts = append(parts, m.body()...)
	return strings.TrimRight(strings.Join(parts, Delimiter), Delimiter)
}

// EncodeUnsigned serializes m with an empty MAC field, the input of MAC computation.
func EncodeUnsigned(m Message) string {
	h := m.Envelope()
	h.MAC = ""
	return Encode(m.WithEnvelope(h))
}

// Decode parses one record. Field problems are reported as diagnostics; the
// only errors are an empty line and an unknown type tag.
func Decode(line string) (Message, Diagnostics, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, nil, ErrEmptyRecord
	}

	tokens := strings.Split(line, Delimiter)
	t := Type(strings.ToUpper(strings.TrimSpace(tokens[0])))
	decode, ok := decoders[t]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownType, tokens[0])
	}

	var (
		d    Diagnostics
		h    Header
		rest = tokens[1:]
	)
	headerTokens := rest
	if len(headerTokens) > headerLen {
		headerTokens = headerTokens[:headerLen]
	}
	decodeFields(t, &h, headerTokens, headerFields, &d)
	if h.MAC != "" {
		h.MACStatus = MACUnchecked
	}
	h.received = unsignedLine(tokens)

	var body []string
	if len(rest) > headerLen {
		body = rest[headerLen:]
	}
	return decode(h, body, &d), d, nil
}

// macToken is the index of the MAC field in a split record.
const macToken = headerLen

// unsignedLine rebuilds the received record with an empty MAC field, trimmed
// like Encode output.
func unsignedLine(tokens []string) string {
	if len(tokens) <= macToken {
		return strings.TrimRight(strings.Join(tokens, Delimiter), Delimiter)
	}
	cp := append([]string(nil), tokens...)
	cp[macToken] = ""
	return strings.TrimRight(strings.Join(cp, Delimiter), Delimiter)
}

// Decoder decodes records and logs their diagnostics.
type Decoder struct {
	log zerolog.Logger
}

// NewDecoder creates a decoder logging through log.
func NewDecoder(log zerolog.Logger) *Decoder {
	return &Decoder{log: log.With().Str("component", "message-codec").Logger()}
}

// Decode parses line like the package-level Decode and logs its diagnostics.
func (d *Decoder) Decode(line string) (Message, Diagnostics, error) {
	msg, diags, err := Decode(line)
	if err != nil {
		d.log.Warn().Err(err).Msg("Dropping undecodable record")
		return nil, nil, err
	}
	diags.Log(d.log)
	return msg, diags, nil
}

// Normalize runs m through its field grammar, applying the validation and
// cross-field rules a received record would get.
func Normalize(m Message) (Message, Diagnostics) {
	out, d, err := Decode(Encode(m))
	if err != nil {
		return m, d
	}
	h := out.Envelope()
	h.MACStatus = m.Envelope().MACStatus
	h.received = m.Envelope().received
	return out.WithEnvelope(h), d
}

// Equal compares two messages by value.
func Equal(a, b Message) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Type() == b.Type() && Encode(a) == Encode(b)
}

// NewSenderID returns a random 16-bit sender identifier in hex.
func NewSenderID() string {
	id := uuid.New()
	return fmt.Sprintf("%02X%02X", id[0], id[1])
}
