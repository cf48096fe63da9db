package message

// Heartbeat signals liveness, optionally to one recipient.
type Heartbeat struct {
	Header

	Recipient string
}

func (Heartbeat) Type() Type { return TypeHeartbeat }
func (b Heartbeat) Envelope() Header { return b.Header }
func (b Heartbeat) WithEnvelope(h Header) Message { b.Header = h; return b }
func (b Heartbeat) body() []string { return encodeFields(&b, heartbeatFields) }

var heartbeatFields = []field[Heartbeat]{
	stringField("Recipient", false, func(b *Heartbeat) *string { return &b.Recipient }),
}

func decodeHeartbeat(h Header, body []string, d *Diagnostics) Message {
	b := Heartbeat{Header: h}
	decodeFields(TypeHeartbeat, &b, body, heartbeatFields, d)
	return b
}
