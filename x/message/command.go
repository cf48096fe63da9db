package message

// CommandFlag tells the recipient how to treat a command relative to earlier ones.
type CommandFlag uint8

const (
	CommandAdd CommandFlag = iota
	CommandReplace
	CommandCancel
	CommandCancelAll
)

// CommandType values as defined by the protocol. Codes are hex on the wire.
type CommandType uint8

const (
	CommandPoweroff      CommandType = 0x00
	CommandRestart       CommandType = 0x01
	CommandStandby       CommandType = 0x02
	CommandSyncTime      CommandType = 0x03
	CommandSendStatus    CommandType = 0x04
	CommandMove          CommandType = 0x05
	CommandLoiter        CommandType = 0x06
	CommandScanArea      CommandType = 0x07
	CommandEngageContact CommandType = 0x08
	CommandSanitize      CommandType = 0x09
	CommandGeneric       CommandType = 0xFF
)

// Command asks a recipient to act. Type dependent parameters follow the fixed
// fields and are kept verbatim.
type Command struct {
	Header

	Recipient  string
	CmdID      *uint16
	Flag       *CommandFlag
	CmdType    *CommandType
	Parameters []string
}

func (Command) Type() Type { return TypeCommand }
func (c Command) Envelope() Header { return c.Header }
func (c Command) WithEnvelope(h Header) Message { c.Header = h; return c }

func (c Command) body() []string {
	out := encodeFields(&c, commandFields)
	for _, p := range c.Parameters {
		out = append(out, sanitize(p))
	}
	return out
}

var commandFields = []field[Command]{
	stringField("Recipient", false, func(c *Command) *string { return &c.Recipient }),
	hexField("CmdID", true, func(c *Command) **uint16 { return &c.CmdID }, 16, 4),
	enumField("CmdFlag", false, func(c *Command) **CommandFlag { return &c.Flag }, CommandCancelAll),
	hexField("CmdType", true, func(c *Command) **CommandType { return &c.CmdType }, 8, 2),
}

func decodeCommand(h Header, body []string, d *Diagnostics) Message {
	c := Command{Header: h}
	rest := decodeFields(TypeCommand, &c, body, commandFields, d)
	if len(rest) > 0 {
		c.Parameters = append([]string(nil), rest...)
	}
	return c
}
