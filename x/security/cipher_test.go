package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contactRecord = "CONTACT;66;1B351C87;59CE;U;TRUE;FFAA327B;1000;;43.21;-111.22;10011.0;1.0;2.0;3.0;200.0;275.0;10.0;20.0;30.0;33.0;22.0;11.0;Track Alpha;R;SFAPMF---------;221333201;FA550C;iVBORw0KGgoAAAANSUhEUgAAACAAAAAgCAYAAABzenr0;VGVzdFRyYWNr"

func TestCipher_RoundTrip(t *testing.T) {
	t.Parallel()

	iv, err := GenerateIV()
	require.NoError(t, err)

	for _, bits := range []int{128, 192, 256} {
		key, err := GenerateKey(bits)
		require.NoError(t, err)
		require.Len(t, key, bits/8)

		for _, mode := range []Mode{ModeECB, ModeCFB, ModeCTR} {
			enc, err := Encrypt(mode, contactRecord, key, iv)
			require.NoError(t, err, "%s/%d", mode, bits)
			assert.NotEqual(t, contactRecord, enc)

			dec, err := Decrypt(mode, enc, key, iv)
			require.NoError(t, err, "%s/%d", mode, bits)
			assert.Equal(t, contactRecord, dec)
		}
	}
}

func TestCipher_NamedHelpers(t *testing.T) {
	t.Parallel()

	key, err := GenerateKey(256)
	require.NoError(t, err)
	iv, err := GenerateIV()
	require.NoError(t, err)

	enc, err := EncryptECB("hello", key)
	require.NoError(t, err)
	dec, err := DecryptECB(enc, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", dec)

	enc, err = EncryptCFB("hello", key, iv)
	require.NoError(t, err)
	dec, err = DecryptCFB(enc, key, iv)
	require.NoError(t, err)
	assert.Equal(t, "hello", dec)

	enc, err = EncryptCTR("hello", key, iv)
	require.NoError(t, err)
	dec, err = DecryptCTR(enc, key, iv)
	require.NoError(t, err)
	assert.Equal(t, "hello", dec)
}

func TestCipher_Deterministic(t *testing.T) {
	t.Parallel()

	key := make([]byte, 16)
	iv := make([]byte, 16)
	a, err := EncryptCTR("same input", key, iv)
	require.NoError(t, err)
	b, err := EncryptCTR("same input", key, iv)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCipher_Errors(t *testing.T) {
	t.Parallel()

	_, err := EncryptECB("x", make([]byte, 10))
	require.ErrorIs(t, err, ErrInvalidKeyLength)

	_, err = EncryptCFB("x", make([]byte, 16), make([]byte, 8))
	require.ErrorIs(t, err, ErrInvalidIV)

	_, err = GenerateKey(100)
	require.ErrorIs(t, err, ErrInvalidKeyLength)

	// wrong key yields bad padding
	key, _ := GenerateKey(128)
	other, _ := GenerateKey(128)
	enc, err := EncryptECB("some plaintext that spans blocks", key)
	require.NoError(t, err)
	if dec, err := DecryptECB(enc, other); err == nil {
		assert.NotEqual(t, "some plaintext that spans blocks", dec)
	}

	_, err = DecryptECB("AAAA", key)
	require.ErrorIs(t, err, ErrInvalidPadding)
}

func TestIVHex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "B46A45839EF379C0", IVToHex([]byte{0xB4, 0x6A, 0x45, 0x83, 0x9E, 0xF3, 0x79, 0xC0}))

	iv, err := IVFromHex("E247D18B294B38AF")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE2, 0x47, 0xD1, 0x8B, 0x29, 0x4B, 0x38, 0xAF}, iv)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("ctr")
	require.NoError(t, err)
	assert.Equal(t, ModeCTR, m)

	_, err = ParseMode("gcm")
	assert.Error(t, err)
}
