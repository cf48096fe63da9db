package tcp

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/x/codec"
	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/transport"
)

const bufferSize = 16384

// TimeoutConfig contains timeout settings for connection operations
type TimeoutConfig struct {
	Read  time.Duration // idle timeout on reads, zero waits forever
	Write time.Duration
}

// connection wraps one TCP stream carrying newline framed records
type connection struct {
	net.Conn
	id       string
	codec    codec.StreamCodec
	log      zerolog.Logger
	timeouts TimeoutConfig

	mu   sync.RWMutex
	info transport.ConnectionInfo

	// Buffered I/O
	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// countingReader and countingWriter feed the byte counters below the buffers
type countingReader struct {
	r io.Reader
	n *atomic.Uint64
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(uint64(n)) //nolint:gosec // n is never negative
	return n, err
}

type countingWriter struct {
	w io.Writer
	n *atomic.Uint64
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(uint64(n)) //nolint:gosec // n is never negative
	return n, err
}

func newConnection(
	netConn net.Conn, id string, lc codec.StreamCodec, log zerolog.Logger, timeouts TimeoutConfig,
) *connection {
	now := time.Now()

	c := &connection{
		Conn:     netConn,
		id:       id,
		codec:    lc,
		log:      log.With().Str("conn_id", id).Str("remote", netConn.RemoteAddr().String()).Logger(),
		timeouts: timeouts,
		info: transport.ConnectionInfo{
			ID:          id,
			RemoteAddr:  netConn.RemoteAddr().String(),
			ConnectedAt: now,
			LastSeen:    now,
		},
	}
	c.reader = bufio.NewReaderSize(countingReader{r: netConn, n: &c.bytesRead}, bufferSize)
	c.writer = bufio.NewWriterSize(countingWriter{w: netConn, n: &c.bytesWritten}, bufferSize)
	return c
}

// ReadMessage reads the next record. A *codec.DecodeError leaves the
// connection usable; any other error ends it.
func (c *connection) ReadMessage() (message.Message, message.Diagnostics, error) {
	if c.timeouts.Read > 0 {
		if err := c.SetReadDeadline(time.Now().Add(c.timeouts.Read)); err != nil {
			return nil, nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	msg, diags, err := c.codec.DecodeStream(c.reader)
	c.UpdateLastSeen()
	return msg, diags, err
}

// WriteMessage writes one record and flushes it
func (c *connection) WriteMessage(m message.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeouts.Write > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(c.timeouts.Write)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if err := c.codec.EncodeStream(c.writer, m); err != nil {
		return err
	}
	return c.writer.Flush()
}

// ID returns the connection ID.
func (c *connection) ID() string {
	return c.id
}

// Info returns connection information.
func (c *connection) Info() transport.ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := c.info
	info.BytesRead = c.bytesRead.Load()
	info.BytesWritten = c.bytesWritten.Load()
	return info
}

// UpdateLastSeen updates the last seen timestamp.
func (c *connection) UpdateLastSeen() {
	c.mu.Lock()
	c.info.LastSeen = time.Now()
	c.mu.Unlock()
}

// Close closes the stream once; later calls return the first result.
func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}
