package message

import "errors"

// Acknowledge confirms receipt of a record that requested acknowledgement.
type Acknowledge struct {
	Header

	Recipient string
	// AckType and AckNumber identify the acknowledged record.
	AckType   Type
	AckNumber *uint8
}

func (Acknowledge) Type() Type { return TypeAcknowledge }
func (a Acknowledge) Envelope() Header { return a.Header }
func (a Acknowledge) WithEnvelope(h Header) Message { a.Header = h; return a }
func (a Acknowledge) body() []string { return encodeFields(&a, acknowledgeFields) }

var acknowledgeFields = []field[Acknowledge]{
	stringField("Recipient", false, func(a *Acknowledge) *string { return &a.Recipient }),
	{
		name:     "TypeOfMessage",
		required: always[Acknowledge](true),
		decode: func(a *Acknowledge, tok string) error {
			t, ok := ParseType(tok)
			if !ok {
				return errors.New("unknown message type")
			}
			a.AckType = t
			return nil
		},
		encode: func(a *Acknowledge) string { return string(a.AckType) },
	},
	hexField("NumberOfMessage", true, func(a *Acknowledge) **uint8 { return &a.AckNumber }, 8, 2),
}

func decodeAcknowledge(h Header, body []string, d *Diagnostics) Message {
	a := Acknowledge{Header: h}
	decodeFields(TypeAcknowledge, &a, body, acknowledgeFields, d)
	return a
}

// NewAcknowledge builds the acknowledgement for m, addressed to its sender.
func NewAcknowledge(h Header, m Message) Acknowledge {
	return Acknowledge{
		Header:    h,
		Recipient: m.Envelope().Sender,
		AckType:   m.Type(),
		AckNumber: m.Envelope().Number,
	}
}
