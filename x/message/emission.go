package message

// FreqAgility describes how an emitter changes its carrier frequency.
type FreqAgility uint8

const (
	FreqStableFixed FreqAgility = iota
	FreqAgile
	FreqPeriodic
	FreqHopper
	FreqBatchHopper
	FreqUnknown
)

func (f FreqAgility) String() string {
	names := [...]string{"Stable_Fixed", "Agile", "Periodic", "Hopper", "Batch_Hopper", "Unknown"}
	if int(f) < len(names) {
		return names[f]
	}
	return "Unknown"
}

// PRFAgility describes the pulse repetition pattern of an emitter.
type PRFAgility uint8

const (
	PRFFixedPeriodic PRFAgility = iota
	PRFStaggered
	PRFJittered
	PRFWobbulated
	PRFSliding
	PRFDwellSwitch
	PRFCW
	PRFUnknown
)

func (p PRFAgility) String() string {
	names := [...]string{"Fixed_periodic", "Staggered", "Jittered", "Wobbulated", "Sliding", "Dwell_switch", "CW", "Unknown"}
	if int(p) < len(names) {
		return names[p]
	}
	return "Unknown"
}

// EmitterFunction classifies the purpose of an emission. Codes 1 to 10 are ESM,
// 11 to 23 acoustic, 24 to 29 laser and 30 visual.
type EmitterFunction uint8

const (
	FunctionUnknown EmitterFunction = iota
	FunctionESMBeaconTransponder
	FunctionESMNavigation
	FunctionESMVoiceCommunication
	FunctionESMDataCommunication
	FunctionESMRadar
	FunctionESMIff
	FunctionESMGuidance
	FunctionESMWeapon
	FunctionESMJammer
	FunctionESMNatural
	FunctionAcousticObject
	FunctionAcousticSubmarine
	FunctionAcousticVariableDepthSonar
	FunctionAcousticArraySonar
	FunctionAcousticActiveSonar
	FunctionAcousticTorpedoSonar
	FunctionAcousticSonoBuoy
	FunctionAcousticDecoySignal
	FunctionAcousticHitNoise
	FunctionAcousticPropellerNoise
	FunctionAcousticUnderwaterTelephone
	FunctionAcousticCommunication
	FunctionAcousticNoise
	FunctionLaserRangeFinder
	FunctionLaserDesignator
	FunctionLaserBeamRider
	FunctionLaserDazzler
	FunctionLaserLidar
	FunctionLaserWeapon
	FunctionVisualObject
)

var functionNames = [...]string{
	"Unknown",
	"ESM_Beacon_Transponder", "ESM_Navigation", "ESM_Voice_Communication", "ESM_Data_Communication",
	"ESM_Radar", "ESM_Iff", "ESM_Guidance", "ESM_Weapon", "ESM_Jammer", "ESM_Natural",
	"ACOUSTIC_Object", "ACOUSTIC_Submarine", "ACOUSTIC_Variable_Depth_Sonar", "ACOUSTIC_Array_Sonar",
	"ACOUSTIC_Active_Sonar", "ACOUSTIC_Torpedo_Sonar", "ACOUSTIC_Sono_Buoy", "ACOUSTIC_Decoy_Signal",
	"ACOUSTIC_Hit_Noise", "ACOUSTIC_Propeller_Noise", "ACOUSTIC_Underwater_Telephone",
	"ACOUSTIC_Communication", "ACOUSTIC_Noise",
	"LASER_Range_Finder", "LASER_Designator", "LASER_Beam_Rider", "LASER_Dazzler", "LASER_Lidar", "LASER_Weapon",
	"VISUAL_Object",
}

func (f EmitterFunction) String() string {
	if int(f) < len(functionNames) {
		return functionNames[f]
	}
	return "Unknown"
}

// Emission reports a detected emitter with its sensor and emitter geolocation.
type Emission struct {
	Header

	EmissionID string
	Delete     *bool

	SensorLatitude  *float64
	SensorLongitude *float64
	SensorAltitude  *float64

	EmitterLatitude  *float64
	EmitterLongitude *float64
	EmitterAltitude  *float64

	Bearing     *float64
	Frequencies []float64 // Hz
	Bandwidth   *float64
	Power       *float64 // dBm

	FreqAgility *FreqAgility
	PRFAgility  *PRFAgility
	Function    *EmitterFunction
	SpotNumber  string
	SIDC        string
	Comment     string
}

func (Emission) Type() Type { return TypeEmission }
func (e Emission) Envelope() Header { return e.Header }
func (e Emission) WithEnvelope(h Header) Message { e.Header = h; return e }
func (e Emission) body() []string { return encodeFields(&e, emissionFields) }

var emissionFields = []field[Emission]{
	stringField("EmissionID", true, func(e *Emission) *string { return &e.EmissionID }),
	boolField("DeleteFlag", false, func(e *Emission) **bool { return &e.Delete }),
	floatField("SensorLatitude", true, func(e *Emission) **float64 { return &e.SensorLatitude }, latitude),
	floatField("SensorLongitude", true, func(e *Emission) **float64 { return &e.SensorLongitude }, longitude),
	floatField("SensorAltitude", false, func(e *Emission) **float64 { return &e.SensorAltitude }, nil),
	floatField("EmitterLatitude", false, func(e *Emission) **float64 { return &e.EmitterLatitude }, latitude),
	floatField("EmitterLongitude", false, func(e *Emission) **float64 { return &e.EmitterLongitude }, longitude),
	floatField("EmitterAltitude", false, func(e *Emission) **float64 { return &e.EmitterAltitude }, nil),
	floatField("Bearing", true, func(e *Emission) **float64 { return &e.Bearing }, bearing),
	floatListField("Frequencies", false, func(e *Emission) *[]float64 { return &e.Frequencies }),
	floatField("Bandwidth", false, func(e *Emission) **float64 { return &e.Bandwidth }, nonNegative),
	floatField("Power", false, func(e *Emission) **float64 { return &e.Power }, nil),
	enumField("FreqAgility", false, func(e *Emission) **FreqAgility { return &e.FreqAgility }, FreqUnknown),
	enumField("PRFAgility", false, func(e *Emission) **PRFAgility { return &e.PRFAgility }, PRFUnknown),
	enumField("Function", false, func(e *Emission) **EmitterFunction { return &e.Function }, FunctionVisualObject),
	stringField("SpotNumber", false, func(e *Emission) *string { return &e.SpotNumber }),
	stringField("SIDC", false, func(e *Emission) *string { return &e.SIDC }),
	textField("Comment", false, func(e *Emission) *string { return &e.Comment }).invalidAt(LevelSevere),
}

func decodeEmission(h Header, body []string, d *Diagnostics) Message {
	e := Emission{Header: h}
	decodeFields(TypeEmission, &e, body, emissionFields, d)
	if (e.EmitterLatitude == nil) != (e.EmitterLongitude == nil) {
		d.add(TypeEmission, "EmitterPosition", LevelWarning, "Incomplete emitter Lat/Lon ignored")
		e.EmitterLatitude, e.EmitterLongitude = nil, nil
	}
	return e
}
