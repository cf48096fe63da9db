package message

// Meteo carries environmental observations.
type Meteo struct {
	Header

	SpeedThroughWater *float64 // m/s
	WaterSpeed        *float64 // m/s
	WaterDirection    *float64 // degrees
	WaterTemperature  *float64 // °C
	WaterDepth        *float64 // m
	AirTemperature    *float64 // °C
	DewPoint          *float64 // °C
	HumidityRel       *float64 // %
	Pressure          *float64 // hPa
	WindSpeed         *float64 // m/s
	WindDirection     *float64 // degrees
	Visibility        *float64 // km
	CloudHeight       *float64 // m
	CloudCover        *float64 // okta
	Reference         string
}

func (Meteo) Type() Type { return TypeMeteo }
func (m Meteo) Envelope() Header { return m.Header }
func (m Meteo) WithEnvelope(h Header) Message { m.Header = h; return m }
func (m Meteo) body() []string { return encodeFields(&m, meteoFields) }

var meteoFields = []field[Meteo]{
	floatField("SpeedThroughWater", false, func(m *Meteo) **float64 { return &m.SpeedThroughWater }, nil),
	floatField("WaterSpeed", false, func(m *Meteo) **float64 { return &m.WaterSpeed }, nonNegative),
	floatField("WaterDirection", false, func(m *Meteo) **float64 { return &m.WaterDirection }, bearing),
	floatField("WaterTemperature", false, func(m *Meteo) **float64 { return &m.WaterTemperature }, nil),
	floatField("WaterDepth", false, func(m *Meteo) **float64 { return &m.WaterDepth }, nonNegative),
	floatField("AirTemperature", false, func(m *Meteo) **float64 { return &m.AirTemperature }, nil),
	floatField("DewPoint", false, func(m *Meteo) **float64 { return &m.DewPoint }, nil),
	floatField("HumidityRel", false, func(m *Meteo) **float64 { return &m.HumidityRel }, inRange(0, 100)),
	floatField("Pressure", false, func(m *Meteo) **float64 { return &m.Pressure }, nonNegative),
	floatField("WindSpeed", false, func(m *Meteo) **float64 { return &m.WindSpeed }, nonNegative),
	floatField("WindDirection", false, func(m *Meteo) **float64 { return &m.WindDirection }, bearing),
	floatField("Visibility", false, func(m *Meteo) **float64 { return &m.Visibility }, nonNegative),
	floatField("CloudHeight", false, func(m *Meteo) **float64 { return &m.CloudHeight }, nonNegative),
	floatField("CloudCover", false, func(m *Meteo) **float64 { return &m.CloudCover }, inRange(0, 8)),
	stringField("Reference", false, func(m *Meteo) *string { return &m.Reference }),
}

func decodeMeteo(h Header, body []string, d *Diagnostics) Message {
	m := Meteo{Header: h}
	decodeFields(TypeMeteo, &m, body, meteoFields, d)
	return m
}
