package message

import (
	"encoding/hex"
	"math/big"
	"strings"
)

// Algorithm selects the key agreement of a KEYEXCHANGE handshake.
type Algorithm uint8

const (
	AlgorithmDH Algorithm = iota
	AlgorithmDHCurve25519
	AlgorithmKyber512
	AlgorithmKyber768
	AlgorithmKyber1024
	AlgorithmFrodoKEM640
	AlgorithmFrodoKEM976
	AlgorithmFrodoKEM1344
)

func (a Algorithm) String() string {
	names := [...]string{"DH", "DH-Curve25519", "Kyber512", "Kyber768", "Kyber1024", "FrodoKEM640", "FrodoKEM976", "FrodoKEM1344"}
	if int(a) < len(names) {
		return names[a]
	}
	return "Unknown"
}

// IsKEM reports whether the algorithm is a key encapsulation mechanism.
func (a Algorithm) IsKEM() bool {
	return a >= AlgorithmKyber512
}

// Handshake phases.
const (
	PhaseParameters  uint8 = 0 // prime and generator, classic DH only
	PhasePublicKey   uint8 = 1
	PhaseEstablished uint8 = 2
)

// KeyExchange carries one step of the key agreement handshake.
type KeyExchange struct {
	Header

	Recipient string
	Algorithm *Algorithm
	Phase     *uint8

	KeyLengthSharedSecret *int // bits: 128 or 256
	KeyLengthDHKEM        *int // bits: 1024, 2048 or 4096

	Prime     *big.Int
	Generator *big.Int
	IV        []byte
	PublicKey []byte
}

func (KeyExchange) Type() Type { return TypeKeyExchange }
func (k KeyExchange) Envelope() Header { return k.Header }
func (k KeyExchange) WithEnvelope(h Header) Message { k.Header = h; return k }
func (k KeyExchange) body() []string { return encodeFields(&k, keyExchangeFields) }

func (k *KeyExchange) inPhase(p uint8) bool {
	return k.Phase != nil && *k.Phase == p
}

func (k *KeyExchange) usesClassicDH() bool {
	return k.Algorithm == nil || *k.Algorithm == AlgorithmDH
}

var keyExchangeFields = []field[KeyExchange]{
	stringField("Recipient", false, func(k *KeyExchange) *string { return &k.Recipient }),
	enumField("AlgorithmType", true, func(k *KeyExchange) **Algorithm { return &k.Algorithm }, AlgorithmFrodoKEM1344),
	enumField("Phase", true, func(k *KeyExchange) **uint8 { return &k.Phase }, PhaseEstablished),
	intSetField("KeyLengthSharedSecret", false, func(k *KeyExchange) **int { return &k.KeyLengthSharedSecret }, 128, 256).
		when(func(k *KeyExchange) bool { return k.inPhase(PhaseParameters) }),
	intSetField("KeyLengthDHKEM", false, func(k *KeyExchange) **int { return &k.KeyLengthDHKEM }, 1024, 2048, 4096).
		when(func(k *KeyExchange) bool { return k.inPhase(PhaseParameters) && k.usesClassicDH() }),
	bigHexField("PrimeNumber", false, func(k *KeyExchange) **big.Int { return &k.Prime }).
		when(func(k *KeyExchange) bool { return k.inPhase(PhaseParameters) && k.usesClassicDH() }),
	bigHexField("NaturalNumber", false, func(k *KeyExchange) **big.Int { return &k.Generator }).
		when(func(k *KeyExchange) bool { return k.inPhase(PhaseParameters) && k.usesClassicDH() }),
	hexBytesField("IV", false, func(k *KeyExchange) *[]byte { return &k.IV }, 16),
	{
		name:     "PublicKey",
		required: func(k *KeyExchange) bool { return k.inPhase(PhasePublicKey) },
		decode: func(k *KeyExchange, tok string) error {
			if isHex(tok, 0) && len(tok)%2 == 0 {
				b, err := hex.DecodeString(tok)
				if err == nil {
					k.PublicKey = b
					return nil
				}
			}
			b, err := decodeBase64(tok)
			if err != nil {
				return err
			}
			k.PublicKey = b
			return nil
		},
		encode: func(k *KeyExchange) string {
			if len(k.PublicKey) == 0 {
				return ""
			}
			return strings.ToUpper(hex.EncodeToString(k.PublicKey))
		},
	},
}

func decodeKeyExchange(h Header, body []string, d *Diagnostics) Message {
	k := KeyExchange{Header: h}
	decodeFields(TypeKeyExchange, &k, body, keyExchangeFields, d)
	return k
}
