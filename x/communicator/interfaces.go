// Package communicator is the publish/subscribe hub between message producers,
// subscribers and a transport. Transports feed received messages into
// Distribute and drain Outbound; producers call Send.
package communicator

import "github.com/uniity/sedap-express/x/message"

// Subscriber receives distributed messages. A returned error or a panic is
// logged and counted, other subscribers still get the message.
type Subscriber interface {
	HandleMessage(m message.Message) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(m message.Message) error

func (f SubscriberFunc) HandleMessage(m message.Message) error { return f(m) }

// Direction tells observers which way a message travels.
type Direction uint8

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// Observer sees every inbound and outbound message, e.g. for an audit trail.
type Observer interface {
	Observe(dir Direction, m message.Message)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(dir Direction, m message.Message)

func (f ObserverFunc) Observe(dir Direction, m message.Message) { f(dir, m) }

// Authenticator signs outbound and verifies inbound messages.
type Authenticator interface {
	Sign(m message.Message) message.Message
	Verify(m message.Message) message.Message
}
