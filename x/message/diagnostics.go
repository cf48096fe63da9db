package message

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Level grades a parse diagnostic.
type Level uint8

const (
	LevelInfo Level = iota
	LevelWarning
	LevelSevere
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelSevere:
		return "SEVERE"
	default:
		return "INFO"
	}
}

// Diagnostic describes a single field-level observation made while reading a record.
type Diagnostic struct {
	Type    Type
	Field   string
	Level   Level
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s.%s: %s", d.Level, d.Type, d.Field, d.Message)
}

// Diagnostics is the ordered list produced by one decode.
type Diagnostics []Diagnostic

func (d *Diagnostics) add(t Type, field string, level Level, format string, args ...any) {
	*d = append(*d, Diagnostic{Type: t, Field: field, Level: level, Message: fmt.Sprintf(format, args...)})
}

// HasSevere reports whether any diagnostic is severe.
func (d Diagnostics) HasSevere() bool {
	for _, x := range d {
		if x.Level == LevelSevere {
			return true
		}
	}
	return false
}

// ForField returns the diagnostics recorded for one field.
func (d Diagnostics) ForField(field string) Diagnostics {
	var out Diagnostics
	for _, x := range d {
		if x.Field == field {
			out = append(out, x)
		}
	}
	return out
}

// Max returns the highest level present, LevelInfo when empty.
func (d Diagnostics) Max() Level {
	max := LevelInfo
	for _, x := range d {
		if x.Level > max {
			max = x.Level
		}
	}
	return max
}

// Log writes every diagnostic. Informational entries go to debug, they are emitted
// for every empty optional field.
func (d Diagnostics) Log(log zerolog.Logger) {
	for _, x := range d {
		var evt *zerolog.Event
		switch x.Level {
		case LevelSevere:
			evt = log.Error()
		case LevelWarning:
			evt = log.Warn()
		default:
			evt = log.Debug()
		}
		evt.Str("type", string(x.Type)).
			Str("field", x.Field).
			Str("severity", x.Level.String()).
			Msg(x.Message)
	}
}
