package security

import (
	"crypto/mlkem"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/uniity/sedap-express/x/message"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported key agreement algorithm")
	ErrInvalidPublicKey     = errors.New("invalid peer public key")
)

const sessionKeyInfo = "SEDAP-Express session key"

// Supported reports whether a key can be agreed with a.
func Supported(a message.Algorithm) bool {
	switch a {
	case message.AlgorithmDH, message.AlgorithmDHCurve25519, message.AlgorithmKyber768, message.AlgorithmKyber1024:
		return true
	default:
		return false
	}
}

// dhParty is one side of a finite field Diffie-Hellman exchange.
type dhParty struct {
	p, g *big.Int
	x    *big.Int
}

func newDHParty(p, g *big.Int) (*dhParty, error) {
	if p == nil || g == nil || p.BitLen() < 512 {
		return nil, errors.New("invalid DH parameters")
	}
	// x in [2, p-2]
	limit := new(big.Int).Sub(p, big.NewInt(3))
	x, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("generate DH private key: %w", err)
	}
	x.Add(x, big.NewInt(2))
	return &dhParty{p: p, g: g, x: x}, nil
}

func (d *dhParty) public() []byte {
	return new(big.Int).Exp(d.g, d.x, d.p).Bytes()
}

func (d *dhParty) shared(peer []byte) ([]byte, error) {
	y := new(big.Int).SetBytes(peer)
	upper := new(big.Int).Sub(d.p, big.NewInt(1))
	if y.Cmp(big.NewInt(1)) <= 0 || y.Cmp(upper) >= 0 {
		return nil, ErrInvalidPublicKey
	}
	z := new(big.Int).Exp(y, d.x, d.p)
	return z.FillBytes(make([]byte, (d.p.BitLen()+7)/8)), nil
}

type x25519Party struct {
	priv []byte
}

func newX25519Party() (*x25519Party, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, fmt.Errorf("generate X25519 private key: %w", err)
	}
	return &x25519Party{priv: priv}, nil
}

func (x *x25519Party) public() ([]byte, error) {
	return curve25519.X25519(x.priv, curve25519.Basepoint)
}

func (x *x25519Party) shared(peer []byte) ([]byte, error) {
	if len(peer) != curve25519.PointSize {
		return nil, ErrInvalidPublicKey
	}
	s, err := curve25519.X25519(x.priv, peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return s, nil
}

// kemParty holds the decapsulation key of the initiating side.
type kemParty struct {
	dk768  *mlkem.DecapsulationKey768
	dk1024 *mlkem.DecapsulationKey1024
}

func newKEMParty(a message.Algorithm) (*kemParty, error) {
	switch a {
	case message.AlgorithmKyber768:
		dk, err := mlkem.GenerateKey768()
		if err != nil {
			return nil, err
		}
		return &kemParty{dk768: dk}, nil
	case message.AlgorithmKyber1024:
		dk, err := mlkem.GenerateKey1024()
		if err != nil {
			return nil, err
		}
		return &kemParty{dk1024: dk}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, a)
	}
}

func (k *kemParty) public() []byte {
	if k.dk768 != nil {
		return k.dk768.EncapsulationKey().Bytes()
	}
	return k.dk1024.EncapsulationKey().Bytes()
}

func (k *kemParty) decapsulate(ciphertext []byte) ([]byte, error) {
	var (
		s   []byte
		err error
	)
	if k.dk768 != nil {
		s, err = k.dk768.Decapsulate(ciphertext)
	} else {
		s, err = k.dk1024.Decapsulate(ciphertext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return s, nil
}

// encapsulate answers an encapsulation key with (shared secret, ciphertext).
func encapsulate(a message.Algorithm, ek []byte) ([]byte, []byte, error) {
	switch a {
	case message.AlgorithmKyber768:
		key, err := mlkem.NewEncapsulationKey768(ek)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		s, ct := key.Encapsulate()
		return s, ct, nil
	case message.AlgorithmKyber1024:
		key, err := mlkem.NewEncapsulationKey1024(ek)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		s, ct := key.Encapsulate()
		return s, ct, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, a)
	}
}

// deriveKey stretches a shared secret to a session key of bits length.
func deriveKey(secret, salt []byte, bits int) ([]byte, error) {
	key := make([]byte, bits/8)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(sessionKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return key, nil
}
