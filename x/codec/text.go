package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/uniity/sedap-express/x/compression"
	"github.com/uniity/sedap-express/x/message"
)

const (
	TextName       = "text"
	CompressedName = "compressed"
)

var ErrMessageTooLarge = errors.New("message exceeds max size")

// TextCodec writes plain records. On input it also accepts compressed tokens:
// a line without the field delimiter that does not start with a known type
// tag is inflated first.
type TextCodec struct {
	maxMessageSize int
	compress       bool

	bufferPool sync.Pool
}

// NewTextCodec creates a plain text codec
func NewTextCodec(maxMessageSize int) *TextCodec {
	return newTextCodec(maxMessageSize, false)
}

// NewCompressedCodec creates a codec writing every record as a compressed token
func NewCompressedCodec(maxMessageSize int) *TextCodec {
	return newTextCodec(maxMessageSize, true)
}

func newTextCodec(maxMessageSize int, compress bool) *TextCodec {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &TextCodec{
		maxMessageSize: maxMessageSize,
		compress:       compress,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(strings.Builder)
			},
		},
	}
}

func (c *TextCodec) Name() string {
	if c.compress {
		return CompressedName
	}
	return TextName
}

// Encode serializes m into one line without terminator
func (c *TextCodec) Encode(m message.Message) (string, error) {
	line := message.Encode(m)
	if c.compress {
		token, err := compression.Compress(line)
		if err != nil {
			return "", err
		}
		line = token
	}
	if len(line) > c.maxMessageSize {
		return "", fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(line), c.maxMessageSize)
	}
	return line, nil
}

// Decode parses one line, inflating it first when it is a compressed token
func (c *TextCodec) Decode(line string) (message.Message, message.Diagnostics, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) > c.maxMessageSize {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(line), c.maxMessageSize)
	}
	if isToken(line) {
		record, err := compression.Decompress(strings.TrimSpace(line))
		if err != nil {
			return nil, nil, fmt.Errorf("decompress line: %w", err)
		}
		line = record
	}
	return message.Decode(line)
}

// isToken reports whether line is a compressed token rather than a record.
// Records without body fields, such as a bare HEARTBEAT, carry no delimiter.
func isToken(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.Contains(line, message.Delimiter) {
		return false
	}
	_, known := message.ParseType(line)
	return !known
}

// DecodeStream reads and decodes the next non-empty line
func (c *TextCodec) DecodeStream(r *bufio.Reader) (message.Message, message.Diagnostics, error) {
	for {
		line, err := readLine(r, c.maxMessageSize)
		if err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		m, diags, err := c.Decode(line)
		if err != nil {
			return nil, diags, &DecodeError{Line: line, Err: err}
		}
		return m, diags, nil
	}
}

// EncodeStream writes m followed by a newline
func (c *TextCodec) EncodeStream(w io.Writer, m message.Message) error {
	line, err := c.Encode(m)
	if err != nil {
		return err
	}

	sb := c.bufferPool.Get().(*strings.Builder)
	defer func() {
		sb.Reset()
		c.bufferPool.Put(sb)
	}()
	sb.Grow(len(line) + 1)
	sb.WriteString(line)
	sb.WriteByte('\n')

	_, err = io.WriteString(w, sb.String())
	return err
}

// MaxMessageSize returns the maximum line length
func (c *TextCodec) MaxMessageSize() int {
	return c.maxMessageSize
}

// readLine reads up to a newline. A line longer than limit is consumed up to
// its newline and reported as a *DecodeError so the stream stays usable.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder
	over := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if over {
					return "", lineTooLong(sb.String(), limit)
				}
				if sb.Len() > 0 {
					return sb.String(), nil
				}
			}
			return "", err
		}
		if !over && sb.Len()+len(chunk) > limit {
			over = true
		}
		if !over {
			sb.Write(chunk)
		}
		if !isPrefix {
			if over {
				return "", lineTooLong(sb.String(), limit)
			}
			return sb.String(), nil
		}
	}
}

func lineTooLong(prefix string, limit int) error {
	return &DecodeError{Line: prefix, Err: fmt.Errorf("%w: line longer than %d bytes", ErrMessageTooLarge, limit)}
}
