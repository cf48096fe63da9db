package message

import (
	"encoding/base64"
	"strings"
)

// TextType classifies a free text record.
type TextType uint8

const (
	TextUndefined TextType = iota
	TextAlert
	TextWarning
	TextNotice
	TextChat
)

// Text is a free text message. With EncodingNone the text travels in double
// quotes, with EncodingBase64 it travels encoded. Text that cannot be quoted
// without loss is always sent as base64.
type Text struct {
	Header

	Recipient string
	TextType  *TextType
	Encoding  Encoding
	Text      string
	Reference string
}

func (Text) Type() Type { return TypeText }
func (t Text) Envelope() Header { return t.Header }
func (t Text) WithEnvelope(h Header) Message { t.Header = h; return t }
func (t Text) body() []string {
	if needsBase64(t.Text) {
		t.Encoding = EncodingBase64
	}
	return encodeFields(&t, textFields)
}

// needsBase64 reports whether s would be altered by the quoted form.
func needsBase64(s string) bool {
	return strings.ContainsAny(s, ";\"\r\n")
}

var textFields = []field[Text]{
	stringField("Recipient", false, func(t *Text) *string { return &t.Recipient }),
	enumField("Type", false, func(t *Text) **TextType { return &t.TextType }, TextChat),
	encodingField("Encoding", func(t *Text) *Encoding { return &t.Encoding }),
	{
		name:     "Text",
		required: always[Text](true),
		invalid:  Ptr(LevelSevere),
		decode: func(t *Text, tok string) error {
			if t.Encoding == EncodingBase64 {
				b, err := decodeBase64(tok)
				if err != nil {
					return err
				}
				t.Text = string(b)
				return nil
			}
			if len(tok) >= 2 && strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) {
				tok = tok[1 : len(tok)-1]
			}
			t.Text = tok
			return nil
		},
		encode: func(t *Text) string {
			if t.Encoding == EncodingBase64 {
				return base64.StdEncoding.EncodeToString([]byte(t.Text))
			}
			return `"` + t.Text + `"`
		},
	},
	stringField("Reference", false, func(t *Text) *string { return &t.Reference }),
}

func decodeText(h Header, body []string, d *Diagnostics) Message {
	t := Text{Header: h}
	decodeFields(TypeText, &t, body, textFields, d)
	return t
}
