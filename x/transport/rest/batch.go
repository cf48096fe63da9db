// Package rest carries SEDAP-Express records over HTTP. The server keeps
// outbound records until a client polls them with GET and accepts record
// batches with POST; the client polls at a fixed interval.
package rest

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/x/codec"
	"github.com/uniity/sedap-express/x/message"
)

// Path is the resource both directions use.
const Path = "/SEDAPEXPRESS"

// MaxBatchBytes bounds a request or response body.
const MaxBatchBytes = 32 << 20

// Batch is the JSON body of GET responses and POST requests.
type Batch struct {
	Messages []Entry `json:"messages"`
}

// Entry holds one wire line.
type Entry struct {
	Message string `json:"message"`
}

// Result is the JSON body of a POST response. Success is "true" or "false".
type Result struct {
	Success string `json:"success"`
}

var ErrBatchDecode = errors.New("batch contains undecodable records")

// encodeBatch serializes msgs. Records the codec rejects are logged and left
// out; the messages that made it into the batch are returned alongside.
func encodeBatch(lc codec.Codec, msgs []message.Message, log zerolog.Logger) (Batch, []message.Message) {
	b := Batch{Messages: make([]Entry, 0, len(msgs))}
	kept := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		line, err := lc.Encode(m)
		if err != nil {
			log.Error().Err(err).Str("type", string(m.Type())).Msg("Dropping unencodable message")
			continue
		}
		b.Messages = append(b.Messages, Entry{Message: line})
		kept = append(kept, m)
	}
	return b, kept
}

// decodeBatch decodes every entry it can. The error counts the entries that
// failed; the decoded messages are returned either way.
func decodeBatch(lc codec.Codec, b Batch, log zerolog.Logger) ([]message.Message, error) {
	out := make([]message.Message, 0, len(b.Messages))
	failed := 0
	for i, e := range b.Messages {
		m, diags, err := lc.Decode(e.Message)
		if err != nil {
			failed++
			log.Warn().Err(err).Int("index", i).Msg("Dropping undecodable record")
			continue
		}
		diags.Log(log)
		out = append(out, m)
	}
	if failed > 0 {
		return out, fmt.Errorf("%w: %d of %d", ErrBatchDecode, failed, len(b.Messages))
	}
	return out, nil
}
