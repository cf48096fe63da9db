// Package security implements the KEYEXCHANGE handshake, record MACs and the
// symmetric ciphers applied to wire records once a key is established.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// IVSize is the AES block size used for every IV.
const IVSize = aes.BlockSize

var (
	ErrInvalidKeyLength = errors.New("key must be 128, 192 or 256 bits")
	ErrInvalidIV        = errors.New("iv must be 16 bytes")
	ErrInvalidPadding   = errors.New("invalid padding")
)

// Mode is a block cipher mode of operation.
type Mode uint8

const (
	ModeECB Mode = iota
	ModeCFB
	ModeCTR
)

func (m Mode) String() string {
	switch m {
	case ModeECB:
		return "ECB"
	case ModeCFB:
		return "CFB"
	case ModeCTR:
		return "CTR"
	default:
		return "unknown"
	}
}

// ParseMode resolves a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ECB":
		return ModeECB, nil
	case "CFB":
		return ModeCFB, nil
	case "CTR":
		return ModeCTR, nil
	default:
		return 0, fmt.Errorf("unknown cipher mode %q", s)
	}
}

// Encrypt encrypts plaintext and returns standard base64. The IV is ignored by ECB.
func Encrypt(mode Mode, plaintext string, key, iv []byte) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}

	var out []byte
	switch mode {
	case ModeECB:
		out = ecbEncrypt(block, pkcs7Pad([]byte(plaintext), block.BlockSize()))
	case ModeCFB, ModeCTR:
		if len(iv) != IVSize {
			return "", ErrInvalidIV
		}
		out = make([]byte, len(plaintext))
		stream(block, mode, iv, true).XORKeyStream(out, []byte(plaintext))
	default:
		return "", fmt.Errorf("unknown cipher mode %d", mode)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func Decrypt(mode Mode, ciphertext string, key, iv []byte) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	switch mode {
	case ModeECB:
		if len(data)%block.BlockSize() != 0 {
			return "", ErrInvalidPadding
		}
		plain, err := pkcs7Unpad(ecbDecrypt(block, data), block.BlockSize())
		if err != nil {
			return "", err
		}
		return string(plain), nil
	case ModeCFB, ModeCTR:
		if len(iv) != IVSize {
			return "", ErrInvalidIV
		}
		out := make([]byte, len(data))
		stream(block, mode, iv, false).XORKeyStream(out, data)
		return string(out), nil
	default:
		return "", fmt.Errorf("unknown cipher mode %d", mode)
	}
}

func EncryptECB(plaintext string, key []byte) (string, error) {
	return Encrypt(ModeECB, plaintext, key, nil)
}

func DecryptECB(ciphertext string, key []byte) (string, error) {
	return Decrypt(ModeECB, ciphertext, key, nil)
}

func EncryptCFB(plaintext string, key, iv []byte) (string, error) {
	return Encrypt(ModeCFB, plaintext, key, iv)
}

func DecryptCFB(ciphertext string, key, iv []byte) (string, error) {
	return Decrypt(ModeCFB, ciphertext, key, iv)
}

func EncryptCTR(plaintext string, key, iv []byte) (string, error) {
	return Encrypt(ModeCTR, plaintext, key, iv)
}

func DecryptCTR(ciphertext string, key, iv []byte) (string, error) {
	return Decrypt(ModeCTR, ciphertext, key, iv)
}

// GenerateKey returns a random AES key of 128, 192 or 256 bits.
func GenerateKey(bits int) ([]byte, error) {
	switch bits {
	case 128, 192, 256:
	default:
		return nil, ErrInvalidKeyLength
	}
	key := make([]byte, bits/8)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// GenerateIV returns a random 16 byte IV.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}

// IVToHex formats an IV the way KEYEXCHANGE carries it.
func IVToHex(iv []byte) string {
	return strings.ToUpper(hex.EncodeToString(iv))
}

func IVFromHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimSpace(s))
}

func newBlock(key []byte) (cipher.Block, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeyLength
	}
	return aes.NewCipher(key)
}

func stream(block cipher.Block, mode Mode, iv []byte, encrypt bool) cipher.Stream {
	if mode == ModeCTR {
		return cipher.NewCTR(block, iv)
	}
	if encrypt {
		return cipher.NewCFBEncrypter(block, iv) //nolint:staticcheck // interop with existing peers
	}
	return cipher.NewCFBDecrypter(block, iv) //nolint:staticcheck // interop with existing peers
}

func ecbEncrypt(block cipher.Block, data []byte) []byte {
	bs := block.BlockSize()
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		block.Encrypt(out[i:i+bs], data[i:i+bs])
	}
	return out
}

func ecbDecrypt(block cipher.Block, data []byte) []byte {
	bs := block.BlockSize()
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		block.Decrypt(out[i:i+bs], data[i:i+bs])
	}
	return out
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
