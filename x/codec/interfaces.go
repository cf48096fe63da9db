// Package codec frames messages as single wire lines. The plain text codec
// writes records as they are; the compressed and encrypted codecs wrap them
// into one opaque token per line.
package codec

import (
	"bufio"
	"fmt"
	"io"

	"github.com/uniity/sedap-express/x/message"
)

// Codec defines the line encoding/decoding interface
type Codec interface {
	Name() string
	Encode(m message.Message) (string, error)
	Decode(line string) (message.Message, message.Diagnostics, error)
	MaxMessageSize() int
}

// StreamCodec extends Codec with newline framed stream operations
type StreamCodec interface {
	Codec
	DecodeStream(r *bufio.Reader) (message.Message, message.Diagnostics, error)
	EncodeStream(w io.Writer, m message.Message) error
}

// Registry manages multiple codec implementations
type Registry interface {
	Register(codec Codec)
	Get(name string) (Codec, bool)
	Default() Codec
	SetDefault(name string) bool
	Names() []string
}

// DecodeError reports a line that was read completely but could not be
// decoded. The stream stays usable after it.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode line: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
