package message

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// field describes one positional token of a record body. The grammar of a type
// is an ordered []field[M] interpreted by decodeFields and encodeFields.
type field[M any] struct {
	name     string
	required func(m *M) bool
	decode   func(m *M, tok string) error
	encode   func(m *M) string
	// invalid overrides the level used when decode fails.
	invalid *Level
}

// notice is returned by a decoder that accepted the token but wants a diagnostic recorded.
type notice struct {
	level Level
	msg   string
}

func (n *notice) Error() string { return n.msg }

var errOutOfRange = errors.New("value out of range")

func always[M any](req bool) func(*M) bool {
	return func(*M) bool { return req }
}

// when makes a field's requirement depend on previously decoded fields.
func (f field[M]) when(req func(m *M) bool) field[M] {
	f.required = req
	return f
}

// invalidAt sets the level reported when the token cannot be decoded.
func (f field[M]) invalidAt(l Level) field[M] {
	f.invalid = &l
	return f
}

// decodeFields consumes tokens positionally and returns the tokens beyond the grammar.
func decodeFields[M any](t Type, m *M, tokens []string, fields []field[M], d *Diagnostics) []string {
	for i, f := range fields {
		tok := ""
		if i < len(tokens) {
			tok = strings.TrimSpace(tokens[i])
		}
		req := f.required(m)

		if tok == "" {
			if req {
				d.add(t, f.name, LevelSevere, "Mandatory field %q is empty!", f.name)
			} else {
				d.add(t, f.name, LevelInfo, "Optional field %q is empty!", f.name)
			}
			continue
		}

		err := f.decode(m, tok)
		if err == nil {
			continue
		}

		var n *notice
		if errors.As(err, &n) {
			d.add(t, f.name, n.level, "%s", n.msg)
			continue
		}

		level := LevelWarning
		kind := "Optional"
		if req {
			level = LevelSevere
			kind = "Mandatory"
		}
		if f.invalid != nil {
			level = *f.invalid
		}
		d.add(t, f.name, level, "%s field %q contains invalid value %q: %v", kind, f.name, tok, err)
	}

	if len(tokens) > len(fields) {
		return tokens[len(fields):]
	}
	return nil
}

func encodeFields[M any](m *M, fields []field[M]) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.encode(m)
	}
	return out
}

// Field constructors. Accessors return the address of the struct field so one
// descriptor serves both directions.

func floatField[M any](name string, req bool, ref func(*M) **float64, valid func(float64) bool) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			v, err := parseFloat(tok)
			if err != nil {
				return err
			}
			if valid != nil && !valid(v) {
				return errOutOfRange
			}
			*ref(m) = &v
			return nil
		},
		encode: func(m *M) string {
			if p := *ref(m); p != nil {
				return formatFloat(*p)
			}
			return ""
		},
	}
}

func floatListField[M any](name string, req bool, ref func(*M) *[]float64) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			parts := strings.Split(tok, "#")
			vals := make([]float64, 0, len(parts))
			for _, p := range parts {
				if strings.TrimSpace(p) == "" {
					continue
				}
				v, err := parseFloat(p)
				if err != nil {
					return err
				}
				vals = append(vals, v)
			}
			*ref(m) = vals
			return nil
		},
		encode: func(m *M) string {
			vals := *ref(m)
			parts := make([]string, len(vals))
			for i, v := range vals {
				parts[i] = formatFloat(v)
			}
			return strings.Join(parts, "#")
		},
	}
}

type enumerated interface {
	~uint8 | ~int
}

// enumField parses a decimal code in [0, max].
func enumField[M any, E enumerated](name string, req bool, ref func(*M) **E, max E) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			v, err := strconv.Atoi(tok)
			if err != nil {
				return err
			}
			if v < 0 || E(v) > max || int(E(v)) != v {
				return errOutOfRange
			}
			e := E(v)
			*ref(m) = &e
			return nil
		},
		encode: func(m *M) string {
			if p := *ref(m); p != nil {
				return strconv.Itoa(int(*p))
			}
			return ""
		},
	}
}

// intSetField accepts only the listed decimal values, e.g. key lengths.
func intSetField[M any](name string, req bool, ref func(*M) **int, allowed ...int) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			v, err := strconv.Atoi(tok)
			if err != nil {
				return err
			}
			for _, a := range allowed {
				if a == v {
					*ref(m) = &v
					return nil
				}
			}
			return fmt.Errorf("expected one of %v", allowed)
		},
		encode: func(m *M) string {
			if p := *ref(m); p != nil {
				return strconv.Itoa(*p)
			}
			return ""
		},
	}
}

type unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// hexField parses an unsigned hex number of the given bit size and writes it
// zero-padded to width digits.
func hexField[M any, U unsigned](name string, req bool, ref func(*M) **U, bits, width int) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			v, err := strconv.ParseUint(tok, 16, bits)
			if err != nil {
				return err
			}
			u := U(v)
			*ref(m) = &u
			return nil
		},
		encode: func(m *M) string {
			if p := *ref(m); p != nil {
				return fmt.Sprintf("%0*X", width, uint64(*p))
			}
			return ""
		},
	}
}

func stringField[M any](name string, req bool, ref func(*M) *string) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			*ref(m) = tok
			return nil
		},
		encode: func(m *M) string { return sanitize(*ref(m)) },
	}
}

// patternField is a string field accepted only when valid reports true.
func patternField[M any](name string, req bool, ref func(*M) *string, valid func(string) bool) field[M] {
	f := stringField(name, req, ref)
	f.decode = func(m *M, tok string) error {
		if !valid(tok) {
			return errors.New("malformed value")
		}
		*ref(m) = tok
		return nil
	}
	return f
}

func boolField[M any](name string, req bool, ref func(*M) **bool) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			switch strings.ToUpper(tok) {
			case "TRUE":
				*ref(m) = Ptr(true)
			case "FALSE":
				*ref(m) = Ptr(false)
			default:
				return errors.New("expected TRUE or FALSE")
			}
			return nil
		},
		encode: func(m *M) string {
			if p := *ref(m); p != nil {
				return formatBool(*p)
			}
			return ""
		},
	}
}

// bytesField carries binary data as base64.
func bytesField[M any](name string, req bool, ref func(*M) *[]byte) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			b, err := decodeBase64(tok)
			if err != nil {
				return err
			}
			*ref(m) = b
			return nil
		},
		encode: func(m *M) string {
			if b := *ref(m); len(b) > 0 {
				return base64.StdEncoding.EncodeToString(b)
			}
			return ""
		},
	}
}

// textField carries free text as base64 so it may contain delimiters.
func textField[M any](name string, req bool, ref func(*M) *string) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			b, err := decodeBase64(tok)
			if err != nil {
				return err
			}
			*ref(m) = string(b)
			return nil
		},
		encode: func(m *M) string {
			if s := *ref(m); s != "" {
				return base64.StdEncoding.EncodeToString([]byte(s))
			}
			return ""
		},
	}
}

// bigHexField carries an arbitrary-size non-negative integer in hex.
func bigHexField[M any](name string, req bool, ref func(*M) **big.Int) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			v, ok := new(big.Int).SetString(tok, 16)
			if !ok || v.Sign() <= 0 {
				return errors.New("not a positive hex number")
			}
			*ref(m) = v
			return nil
		},
		encode: func(m *M) string {
			if p := *ref(m); p != nil {
				return strings.ToUpper(p.Text(16))
			}
			return ""
		},
	}
}

// hexBytesField carries bytes as upper-case hex; size 0 accepts any length.
func hexBytesField[M any](name string, req bool, ref func(*M) *[]byte, size int) field[M] {
	return field[M]{
		name:     name,
		required: always[M](req),
		decode: func(m *M, tok string) error {
			b, err := hex.DecodeString(tok)
			if err != nil {
				return err
			}
			if size > 0 && len(b) != size {
				return fmt.Errorf("expected %d bytes, got %d", size, len(b))
			}
			*ref(m) = b
			return nil
		},
		encode: func(m *M) string {
			if b := *ref(m); len(b) > 0 {
				return strings.ToUpper(hex.EncodeToString(b))
			}
			return ""
		},
	}
}
