package message

// MaxMultimediaSize is the attachment size above which a warning is recorded.
const MaxMultimediaSize = 65000

// Source identifies the sensor class that contributed to a contact.
type Source byte

const (
	SourceRadar     Source = 'R'
	SourceAIS       Source = 'A'
	SourceIFF       Source = 'I'
	SourceSonar     Source = 'S'
	SourceEW        Source = 'E'
	SourceOptical   Source = 'O'
	SourceSynthetic Source = 'Y'
	SourceManual    Source = 'M'
	SourceNone      Source = ' '
)

// ParseSource maps a one-character code; unknown codes yield SourceNone.
func ParseSource(r rune) Source {
	switch s := Source(r); s {
	case SourceRadar, SourceAIS, SourceIFF, SourceSonar, SourceEW, SourceOptical, SourceSynthetic, SourceManual:
		return s
	default:
		return SourceNone
	}
}

func (s Source) String() string {
	switch s {
	case SourceRadar:
		return "Radar"
	case SourceAIS:
		return "AIS"
	case SourceIFF:
		return "IFF"
	case SourceSonar:
		return "Sonar"
	case SourceEW:
		return "EW"
	case SourceOptical:
		return "Optical"
	case SourceSynthetic:
		return "Synthetic"
	case SourceManual:
		return "Manual"
	default:
		return "None"
	}
}

// Contact is a track report.
type Contact struct {
	Header

	ContactID string
	Delete    *bool

	Latitude  *float64
	Longitude *float64
	Altitude  *float64

	// Relative position in metres from the sender.
	RelativeX *float64
	RelativeY *float64
	RelativeZ *float64

	Speed   *float64
	Course  *float64
	Heading *float64
	Roll    *float64
	Pitch   *float64

	Width  *float64
	Length *float64
	Height *float64

	Name       string
	Source     []Source
	SIDC       string
	MMSI       string
	ICAO       string
	Multimedia []byte
	Comment    string
}

func (Contact) Type() Type { return TypeContact }
func (c Contact) Envelope() Header { return c.Header }
func (c Contact) WithEnvelope(h Header) Message { c.Header = h; return c }
func (c Contact) body() []string { return encodeFields(&c, contactFields) }

// HasAbsolutePosition reports whether latitude and longitude are both set.
func (c Contact) HasAbsolutePosition() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// HasRelativePosition reports whether all three relative offsets are set.
func (c Contact) HasRelativePosition() bool {
	return c.RelativeX != nil && c.RelativeY != nil && c.RelativeZ != nil
}

var contactFields = []field[Contact]{
	stringField("ContactID", true, func(c *Contact) *string { return &c.ContactID }),
	boolField("DeleteFlag", false, func(c *Contact) **bool { return &c.Delete }),
	floatField("Latitude", false, func(c *Contact) **float64 { return &c.Latitude }, latitude),
	floatField("Longitude", false, func(c *Contact) **float64 { return &c.Longitude }, longitude),
	floatField("Altitude", false, func(c *Contact) **float64 { return &c.Altitude }, nil),
	floatField("RelativeXDistance", false, func(c *Contact) **float64 { return &c.RelativeX }, nil),
	floatField("RelativeYDistance", false, func(c *Contact) **float64 { return &c.RelativeY }, nil),
	floatField("RelativeZDistance", false, func(c *Contact) **float64 { return &c.RelativeZ }, nil),
	floatField("Speed", false, func(c *Contact) **float64 { return &c.Speed }, nonNegative),
	floatField("Course", false, func(c *Contact) **float64 { return &c.Course }, bearing),
	floatField("Heading", false, func(c *Contact) **float64 { return &c.Heading }, bearing),
	floatField("Roll", false, func(c *Contact) **float64 { return &c.Roll }, nil),
	floatField("Pitch", false, func(c *Contact) **float64 { return &c.Pitch }, nil),
	floatField("Width", false, func(c *Contact) **float64 { return &c.Width }, nonNegative),
	floatField("Length", false, func(c *Contact) **float64 { return &c.Length }, nonNegative),
	floatField("Height", false, func(c *Contact) **float64 { return &c.Height }, nonNegative),
	stringField("Name", false, func(c *Contact) *string { return &c.Name }),
	{
		name:     "Source",
		required: always[Contact](false),
		decode: func(c *Contact, tok string) error {
			c.Source = c.Source[:0]
			for _, r := range tok {
				c.Source = append(c.Source, ParseSource(r))
			}
			return nil
		},
		encode: func(c *Contact) string {
			b := make([]byte, len(c.Source))
			for i, s := range c.Source {
				b[i] = byte(s)
			}
			return string(b)
		},
	},
	stringField("SIDC", false, func(c *Contact) *string { return &c.SIDC }),
	patternField("MMSI", false, func(c *Contact) *string { return &c.MMSI },
		func(s string) bool { return isDigits(s, 9) }),
	patternField("ICAO", false, func(c *Contact) *string { return &c.ICAO },
		func(s string) bool { return isHex(s, 6) }),
	func() field[Contact] {
		f := bytesField("MultimediaData", false, func(c *Contact) *[]byte { return &c.Multimedia })
		decode := f.decode
		f.decode = func(c *Contact, tok string) error {
			if err := decode(c, tok); err != nil {
				return err
			}
			if len(c.Multimedia) > MaxMultimediaSize {
				return &notice{level: LevelWarning, msg: "Optional field \"MultimediaData\" exceeds 65000 bytes"}
			}
			return nil
		}
		return f.invalidAt(LevelSevere)
	}(),
	textField("Comment", false, func(c *Contact) *string { return &c.Comment }).invalidAt(LevelSevere),
}

func decodeContact(h Header, body []string, d *Diagnostics) Message {
	c := Contact{Header: h}
	decodeFields(TypeContact, &c, body, contactFields, d)
	c.resolvePosition(d)
	return c
}

// resolvePosition enforces that a contact carries an absolute or a relative
// position, the absolute one taking precedence.
func (c *Contact) resolvePosition(d *Diagnostics) {
	abs, rel := c.HasAbsolutePosition(), c.HasRelativePosition()
	switch {
	case abs && rel:
		d.add(TypeContact, "Position", LevelInfo,
			"Valid Lat/Lon and relative position information given, relative positions will be ignored")
		c.RelativeX, c.RelativeY, c.RelativeZ = nil, nil, nil
	case abs:
		c.RelativeX, c.RelativeY, c.RelativeZ = nil, nil, nil
	case rel:
		if c.Latitude != nil || c.Longitude != nil {
			d.add(TypeContact, "Position", LevelInfo,
				"Incomplete Lat/Lon ignored, relative position information used")
			c.Latitude, c.Longitude = nil, nil
		}
	default:
		d.add(TypeContact, "Position", LevelSevere, "Neither valid Lat/Lon nor relative position information")
		c.Latitude, c.Longitude = nil, nil
		c.RelativeX, c.RelativeY, c.RelativeZ = nil, nil, nil
	}
}
