package codec

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/security"
)

const textRecord = `TEXT;63;0195238E15AD;324E;S;TRUE;;;1;NONE;"This is an alert!";1000`

type dummyCodec struct{ size int }

func (d *dummyCodec) Name() string { return "dummy" }

func (d *dummyCodec) Encode(_ message.Message) (string, error) { return "x", nil }

func (d *dummyCodec) Decode(_ string) (message.Message, message.Diagnostics, error) {
	return nil, nil, nil
}

func (d *dummyCodec) MaxMessageSize() int { return d.size }

func sample(t *testing.T) message.Message {
	t.Helper()
	m, _, err := message.Decode(textRecord)
	require.NoError(t, err)
	return m
}

func TestRegistry_Default(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	def := r.Default()
	require.NotNil(t, def)

	c, ok := def.(*TextCodec)
	require.True(t, ok)
	assert.Equal(t, TextName, c.Name())
	assert.Equal(t, DefaultMaxMessageSize, c.MaxMessageSize())
	assert.Equal(t, []string{CompressedName, TextName}, r.Names())
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&dummyCodec{size: 42})

	got, ok := r.Get("dummy")
	require.True(t, ok)
	assert.Equal(t, 42, got.MaxMessageSize())

	require.True(t, r.SetDefault("dummy"))
	assert.Equal(t, "dummy", r.Default().Name())
	assert.False(t, r.SetDefault("missing"))

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestTextCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	c := NewTextCodec(0)
	line, err := c.Encode(sample(t))
	require.NoError(t, err)
	assert.Equal(t, textRecord, line)

	m, diags, err := c.Decode(line + "\r\n")
	require.NoError(t, err)
	require.False(t, diags.HasSevere())
	assert.True(t, message.Equal(sample(t), m))
}

func TestTextCodec_AcceptsCompressedInput(t *testing.T) {
	t.Parallel()

	compressed := NewCompressedCodec(0)
	token, err := compressed.Encode(sample(t))
	require.NoError(t, err)
	assert.NotContains(t, token, message.Delimiter)

	m, _, err := NewTextCodec(0).Decode(token)
	require.NoError(t, err)
	assert.Equal(t, textRecord, message.Encode(m))
}

func TestTextCodec_MaxSize(t *testing.T) {
	t.Parallel()

	c := NewTextCodec(16)
	_, err := c.Encode(sample(t))
	require.ErrorIs(t, err, ErrMessageTooLarge)

	_, _, err = c.Decode(textRecord)
	require.ErrorIs(t, err, ErrMessageTooLarge)

	_, _, err = c.DecodeStream(bufio.NewReaderSize(strings.NewReader(textRecord+"\n"), 16))
	require.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestTextCodec_Stream(t *testing.T) {
	t.Parallel()

	c := NewTextCodec(0)
	var buf bytes.Buffer
	require.NoError(t, c.EncodeStream(&buf, sample(t)))
	buf.WriteString("\n\n")
	require.NoError(t, c.EncodeStream(&buf, message.NewHeartbeat(message.Header{Sender: "AB"}, "")))

	r := bufio.NewReader(&buf)
	m, _, err := c.DecodeStream(r)
	require.NoError(t, err)
	assert.Equal(t, message.TypeText, m.Type())

	m, _, err = c.DecodeStream(r)
	require.NoError(t, err)
	assert.Equal(t, message.TypeHeartbeat, m.Type())

	_, _, err = c.DecodeStream(r)
	assert.Error(t, err)
}

func TestTextCodec_StreamContinuesAfterBadLine(t *testing.T) {
	t.Parallel()

	c := NewTextCodec(0)
	r := bufio.NewReader(strings.NewReader("BOGUS;01\n" + textRecord + "\n"))

	_, _, err := c.DecodeStream(r)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "BOGUS;01", de.Line)
	assert.ErrorIs(t, err, message.ErrUnknownType)

	m, _, err := c.DecodeStream(r)
	require.NoError(t, err)
	assert.Equal(t, message.TypeText, m.Type())
}

func TestEncryptedCodec(t *testing.T) {
	t.Parallel()

	key, err := security.GenerateKey(256)
	require.NoError(t, err)

	ring := security.NewKeyRing()
	c := NewEncryptedCodec(NewTextCodec(0), ring, "PEER", security.ModeCTR)

	// no key yet: clear text
	line, err := c.Encode(sample(t))
	require.NoError(t, err)
	assert.Equal(t, textRecord, line)

	ring.Set("PEER", key)
	line, err = c.Encode(sample(t))
	require.NoError(t, err)
	assert.NotContains(t, line, message.Delimiter)

	m, _, err := c.Decode(line)
	require.NoError(t, err)
	assert.Equal(t, textRecord, message.Encode(m))

	// plain input is still accepted
	m, _, err = c.Decode(textRecord)
	require.NoError(t, err)
	assert.Equal(t, message.TypeText, m.Type())

	// key exchange stays readable
	kx := message.NewKeyExchange(message.Header{Sender: "AB"}, "PEER", message.AlgorithmDHCurve25519, message.PhasePublicKey)
	line, err = c.Encode(kx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "KEYEXCHANGE;"))

	other := NewEncryptedCodec(NewTextCodec(0), security.NewKeyRing(), "PEER", security.ModeCTR)
	enc, err := c.Encode(sample(t))
	require.NoError(t, err)
	_, _, err = other.Decode(enc)
	require.ErrorIs(t, err, ErrNoKey)
}

func TestEncryptedCodec_Stream(t *testing.T) {
	t.Parallel()

	ring := security.NewKeyRing()
	ring.SetDefault(bytes.Repeat([]byte{7}, 16))
	c := NewEncryptedCodec(NewCompressedCodec(0), ring, "", security.ModeCFB)

	var buf bytes.Buffer
	require.NoError(t, c.EncodeStream(&buf, sample(t)))
	m, _, err := c.DecodeStream(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.True(t, message.Equal(sample(t), m))
}

func TestTextCodec_BareTagRecord(t *testing.T) {
	t.Parallel()

	c := NewTextCodec(0)
	line, err := c.Encode(message.NewHeartbeat(message.Header{}, ""))
	require.NoError(t, err)
	assert.Equal(t, "HEARTBEAT", line)

	m, _, err := c.Decode(line)
	require.NoError(t, err)
	assert.Equal(t, message.TypeHeartbeat, m.Type())

	m, _, err = c.DecodeStream(bufio.NewReader(strings.NewReader("heartbeat\r\n" + textRecord + "\n")))
	require.NoError(t, err)
	assert.Equal(t, message.TypeHeartbeat, m.Type())

	_, _, err = c.Decode("not a token")
	require.Error(t, err)
}

func TestTextCodec_OversizedLineIsSkipped(t *testing.T) {
	t.Parallel()

	c := NewTextCodec(len(textRecord))
	long := strings.Repeat("X", 3*len(textRecord))
	r := bufio.NewReaderSize(strings.NewReader(long+"\n"+textRecord+"\n"), 16)

	_, _, err := c.DecodeStream(r)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	assert.LessOrEqual(t, len(de.Line), len(textRecord))

	m, _, err := c.DecodeStream(r)
	require.NoError(t, err)
	assert.Equal(t, textRecord, message.Encode(m))

	_, _, err = c.DecodeStream(bufio.NewReaderSize(strings.NewReader(long), 16))
	require.ErrorAs(t, err, &de)
}

func TestEncryptedCodec_PlainInputWithoutKey(t *testing.T) {
	t.Parallel()

	c := NewEncryptedCodec(NewTextCodec(0), security.NewKeyRing(), "PEER", security.ModeCTR)

	token, err := NewCompressedCodec(0).Encode(sample(t))
	require.NoError(t, err)
	m, _, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, textRecord, message.Encode(m))

	m, _, err = c.Decode("HEARTBEAT")
	require.NoError(t, err)
	assert.Equal(t, message.TypeHeartbeat, m.Type())
}
