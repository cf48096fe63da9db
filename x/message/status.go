package message

import (
	"errors"
	"strings"
)

// TechnicalState is the technical health of the reporting unit.
type TechnicalState uint8

const (
	TechOffAbsent TechnicalState = iota
	TechInitializing
	TechDegraded
	TechOperational
	TechFault
)

// OperationalState is the mission readiness of the reporting unit.
type OperationalState uint8

const (
	OpsNotOperational OperationalState = iota
	OpsDegraded
	OpsOperational
	OpsFullyOperational
	OpsUnknown
)

// CommandState reports the progress of a previously received COMMAND.
type CommandState uint8

const (
	CmdExecutedSuccessfully CommandState = iota
	CmdPartiallyExecuted
	CmdExecutedNotSuccessfully
	CmdExecutionNotPossible
	CmdWillExecuteAtTime
	CmdInProgress
)

// Supply is a named consumable level in percent.
type Supply struct {
	Name  string
	Level float64
}

// Status reports the state of the sending unit.
type Status struct {
	Header

	TechState  *TechnicalState
	OpsState   *OperationalState
	Ammunition []Supply
	Fuel       []Supply
	Battery    []Supply
	CmdID      *uint16
	CmdState   *CommandState
	Hostname   string
	MediaURLs  []string
	FreeText   string
}

func (Status) Type() Type { return TypeStatus }
func (s Status) Envelope() Header { return s.Header }
func (s Status) WithEnvelope(h Header) Message { s.Header = h; return s }
func (s Status) body() []string { return encodeFields(&s, statusFields) }

// supplyField parses "name#level#name#level...".
func supplyField(name string, ref func(*Status) *[]Supply) field[Status] {
	return field[Status]{
		name:     name,
		required: always[Status](false),
		decode: func(s *Status, tok string) error {
			parts := strings.Split(tok, "#")
			if len(parts)%2 != 0 {
				return errors.New("expected name#level pairs")
			}
			out := make([]Supply, 0, len(parts)/2)
			for i := 0; i < len(parts); i += 2 {
				v, err := parseFloat(parts[i+1])
				if err != nil {
					return err
				}
				out = append(out, Supply{Name: parts[i], Level: v})
			}
			*ref(s) = out
			return nil
		},
		encode: func(s *Status) string {
			items := *ref(s)
			parts := make([]string, 0, len(items)*2)
			for _, it := range items {
				parts = append(parts, strings.ReplaceAll(sanitize(it.Name), "#", ""), formatFloat(it.Level))
			}
			return strings.Join(parts, "#")
		},
	}
}

var statusFields = []field[Status]{
	enumField("TecState", false, func(s *Status) **TechnicalState { return &s.TechState }, TechFault),
	enumField("OpsState", false, func(s *Status) **OperationalState { return &s.OpsState }, OpsUnknown),
	supplyField("AmmunitionLevels", func(s *Status) *[]Supply { return &s.Ammunition }),
	supplyField("FuelLevels", func(s *Status) *[]Supply { return &s.Fuel }),
	supplyField("BatterieLevels", func(s *Status) *[]Supply { return &s.Battery }),
	hexField("CmdID", false, func(s *Status) **uint16 { return &s.CmdID }, 16, 4),
	enumField("CmdState", false, func(s *Status) **CommandState { return &s.CmdState }, CmdInProgress),
	stringField("Hostname", false, func(s *Status) *string { return &s.Hostname }),
	{
		name:     "MediaURLs",
		required: always[Status](false),
		decode: func(s *Status, tok string) error {
			for _, u := range strings.Split(tok, "#") {
				if u = strings.TrimSpace(u); u != "" {
					s.MediaURLs = append(s.MediaURLs, u)
				}
			}
			return nil
		},
		encode: func(s *Status) string { return sanitize(strings.Join(s.MediaURLs, "#")) },
	},
	textField("FreeText", false, func(s *Status) *string { return &s.FreeText }).invalidAt(LevelSevere),
}

func decodeStatus(h Header, body []string, d *Diagnostics) Message {
	s := Status{Header: h}
	decodeFields(TypeStatus, &s, body, statusFields, d)
	if s.CmdState != nil && s.CmdID == nil {
		d.add(TypeStatus, "CmdID", LevelWarning, "Command state given without the command it refers to")
	}
	return s
}
