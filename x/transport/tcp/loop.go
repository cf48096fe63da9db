package tcp

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/uniity/sedap-express/x/codec"
	"github.com/uniity/sedap-express/x/communicator"
	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/transport"
)

// readLoop hands every record read from conn to the communicator until the
// stream fails. Undecodable lines are logged and skipped.
func readLoop(ctx context.Context, conn *connection, comm *communicator.Communicator, m *transport.Metrics) error {
	for {
		msg, diags, err := conn.ReadMessage()
		if err != nil {
			var de *codec.DecodeError
			if errors.As(err, &de) {
				conn.log.Warn().Err(de.Err).Str("line", truncate(de.Line, 80)).Msg("Dropping undecodable line")
				if m != nil {
					m.RecordError("decode", "read")
				}
				continue
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		diags.Log(conn.log)
		if m != nil {
			m.RecordMessageReceived(string(msg.Type()), len(message.Encode(msg)))
		}
		comm.Distribute(msg)
	}
}

// isClosed reports errors caused by the connection being closed locally or
// by the peer, which are not worth an error log.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
