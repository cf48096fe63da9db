package message

// OwnUnit reports the position and kinematics of the sending platform.
type OwnUnit struct {
	Header

	Latitude  *float64
	Longitude *float64
	Altitude  *float64
	Speed     *float64
	Course    *float64
	Heading   *float64
	Roll      *float64
	Pitch     *float64
	Name      string
	SIDC      string
}

func (OwnUnit) Type() Type { return TypeOwnUnit }
func (o OwnUnit) Envelope() Header { return o.Header }
func (o OwnUnit) WithEnvelope(h Header) Message { o.Header = h; return o }
func (o OwnUnit) body() []string { return encodeFields(&o, ownUnitFields) }

var ownUnitFields = []field[OwnUnit]{
	floatField("Latitude", true, func(o *OwnUnit) **float64 { return &o.Latitude }, latitude),
	floatField("Longitude", true, func(o *OwnUnit) **float64 { return &o.Longitude }, longitude),
	floatField("Altitude", false, func(o *OwnUnit) **float64 { return &o.Altitude }, nil),
	floatField("Speed", false, func(o *OwnUnit) **float64 { return &o.Speed }, nonNegative),
	floatField("Course", false, func(o *OwnUnit) **float64 { return &o.Course }, bearing),
	floatField("Heading", false, func(o *OwnUnit) **float64 { return &o.Heading }, bearing),
	floatField("Roll", false, func(o *OwnUnit) **float64 { return &o.Roll }, nil),
	floatField("Pitch", false, func(o *OwnUnit) **float64 { return &o.Pitch }, nil),
	stringField("Name", false, func(o *OwnUnit) *string { return &o.Name }),
	stringField("SIDC", false, func(o *OwnUnit) *string { return &o.SIDC }),
}

func decodeOwnUnit(h Header, body []string, d *Diagnostics) Message {
	o := OwnUnit{Header: h}
	decodeFields(TypeOwnUnit, &o, body, ownUnitFields, d)
	return o
}
