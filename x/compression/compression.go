// Package compression turns a wire record into a single opaque token and back:
// raw DEFLATE followed by base64.
package compression

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/uniity/sedap-express/x/message"
)

// MaxDecompressedSize bounds the output of Decompress.
const MaxDecompressedSize = 1 << 20

var ErrTooLarge = errors.New("decompressed record exceeds size limit")

var encodings = []*base64.Encoding{
	base64.RawURLEncoding,
	base64.URLEncoding,
	base64.StdEncoding,
	base64.RawStdEncoding,
}

// Compress deflates record and returns it as unpadded URL-safe base64.
func Compress(record string) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("create deflater: %w", err)
	}
	if _, err := io.WriteString(w, record); err != nil {
		return "", fmt.Errorf("deflate record: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("flush deflater: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress reverses Compress. Padded and unpadded tokens of either base64
// alphabet are accepted.
func Decompress(token string) (string, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return "", err
	}

	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return "", fmt.Errorf("inflate token: %w", err)
	}
	if len(out) > MaxDecompressedSize {
		return "", ErrTooLarge
	}
	return string(out), nil
}

// DecompressMessage inflates token and decodes the contained record.
func DecompressMessage(token string, dec *message.Decoder) (message.Message, message.Diagnostics, error) {
	record, err := Decompress(token)
	if err != nil {
		return nil, nil, err
	}
	return dec.Decode(record)
}

// CompressMessage encodes m and compresses the resulting record.
func CompressMessage(m message.Message) (string, error) {
	return Compress(message.Encode(m))
}

func decodeToken(token string) ([]byte, error) {
	var firstErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(token)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("decode base64 token: %w", firstErr)
}
