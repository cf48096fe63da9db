package message

import "time"

// NewHeader returns an envelope stamped with the current time.
func NewHeader(number uint8, sender string, c Classification) Header {
	return Header{
		Number:         Ptr(number),
		Time:           Ptr(time.Now().UnixMilli()),
		Sender:         sender,
		Classification: c,
	}
}

// NewContact builds an absolutely positioned contact.
func NewContact(h Header, id string, lat, lon float64) Contact {
	return Contact{Header: h, ContactID: id, Latitude: Ptr(lat), Longitude: Ptr(lon)}
}

// NewRelativeContact builds a contact positioned relative to the sender.
func NewRelativeContact(h Header, id string, x, y, z float64) Contact {
	return Contact{Header: h, ContactID: id, RelativeX: Ptr(x), RelativeY: Ptr(y), RelativeZ: Ptr(z)}
}

func NewEmission(h Header, id string, sensorLat, sensorLon, bearing float64) Emission {
	return Emission{
		Header:          h,
		EmissionID:      id,
		SensorLatitude:  Ptr(sensorLat),
		SensorLongitude: Ptr(sensorLon),
		Bearing:         Ptr(bearing),
	}
}

func NewGraphic(h Header, t GraphicType, geometry ...float64) Graphic {
	return Graphic{Header: h, GraphicType: Ptr(t), Encoding: EncodingNone, Geometry: geometry}
}

func NewCommand(h Header, recipient string, id uint16, t CommandType, params ...string) Command {
	return Command{Header: h, Recipient: recipient, CmdID: Ptr(id), CmdType: Ptr(t), Parameters: params}
}

func NewStatus(h Header, tech TechnicalState, ops OperationalState) Status {
	return Status{Header: h, TechState: Ptr(tech), OpsState: Ptr(ops)}
}

func NewHeartbeat(h Header, recipient string) Heartbeat {
	return Heartbeat{Header: h, Recipient: recipient}
}

func NewOwnUnit(h Header, lat, lon float64) OwnUnit {
	return OwnUnit{Header: h, Latitude: Ptr(lat), Longitude: Ptr(lon)}
}

func NewMeteo(h Header) Meteo {
	return Meteo{Header: h}
}

// NewText builds a plain text message.
func NewText(h Header, recipient string, t TextType, text string) Text {
	return Text{Header: h, Recipient: recipient, TextType: Ptr(t), Encoding: EncodingNone, Text: text}
}

// NewKeyExchange builds a handshake step for the given phase.
func NewKeyExchange(h Header, recipient string, a Algorithm, phase uint8) KeyExchange {
	return KeyExchange{Header: h, Recipient: recipient, Algorithm: Ptr(a), Phase: Ptr(phase)}
}
