package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/security"
)

const EncryptedName = "encrypted"

var ErrNoKey = errors.New("no key for encrypted line")

// ivHexLen is the length of the IV prefix of an encrypted line.
const ivHexLen = 2 * security.IVSize

// EncryptedCodec encrypts the output of an inner codec with the key the KeyRing
// holds for peer. Each line is the hex IV followed by the base64 ciphertext.
// KEYEXCHANGE records and records for which no key is known go out in the
// clear; plain lines are accepted on input.
type EncryptedCodec struct {
	inner Codec
	keys  *security.KeyRing
	peer  string
	mode  security.Mode
}

func NewEncryptedCodec(inner Codec, keys *security.KeyRing, peer string, mode security.Mode) *EncryptedCodec {
	return &EncryptedCodec{inner: inner, keys: keys, peer: peer, mode: mode}
}

func (c *EncryptedCodec) Name() string { return EncryptedName }

func (c *EncryptedCodec) Encode(m message.Message) (string, error) {
	line, err := c.inner.Encode(m)
	if err != nil {
		return "", err
	}
	if m.Type() == message.TypeKeyExchange {
		return line, nil
	}
	key, ok := c.keys.Key(c.peer)
	if !ok {
		return line, nil
	}

	iv, err := security.GenerateIV()
	if err != nil {
		return "", err
	}
	ct, err := security.Encrypt(c.mode, line, key, iv)
	if err != nil {
		return "", fmt.Errorf("encrypt line: %w", err)
	}
	return security.IVToHex(iv) + ct, nil
}

// Decode decrypts lines that start with a hex IV and hands everything else,
// such as plain records or compressed tokens, to the inner codec.
func (c *EncryptedCodec) Decode(line string) (message.Message, message.Diagnostics, error) {
	line = strings.TrimSpace(line)
	if strings.Contains(line, message.Delimiter) || len(line) <= ivHexLen {
		return c.inner.Decode(line)
	}
	iv, err := security.IVFromHex(line[:ivHexLen])
	if err != nil {
		return c.inner.Decode(line)
	}

	key, ok := c.keys.Key(c.peer)
	if !ok {
		return nil, nil, ErrNoKey
	}
	plain, err := security.Decrypt(c.mode, line[ivHexLen:], key, iv)
	if err != nil {
		if m, diags, innerErr := c.inner.Decode(line); innerErr == nil {
			return m, diags, nil
		}
		return nil, nil, fmt.Errorf("decrypt line: %w", err)
	}
	return c.inner.Decode(plain)
}

func (c *EncryptedCodec) DecodeStream(r *bufio.Reader) (message.Message, message.Diagnostics, error) {
	for {
		line, err := readLine(r, c.MaxMessageSize())
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

func (c *EncryptedCodec) EncodeStream(w io.Writer, m message.Message) error {
	line, err := c.Encode(m)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, line+"\n")
	return err
}

// MaxMessageSize allows for the base64 and IV overhead.
func (c *EncryptedCodec) MaxMessageSize() int {
	return c.inner.MaxMessageSize()*4/3 + ivHexLen + 4
}
