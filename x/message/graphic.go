package message

import (
	"encoding/base64"
	"errors"
	"strings"
)

// GraphicType selects the geometry carried by a GRAPHIC record.
type GraphicType uint8

const (
	GraphicPoint GraphicType = iota
	GraphicPath
	GraphicPolygon
	GraphicRectangle
	GraphicCircle
	GraphicEllipse
	GraphicBlock
	GraphicSphere
	GraphicEllipsoid
)

func (g GraphicType) String() string {
	names := [...]string{"Point", "Path", "Polygon", "Rectangle", "Circle", "Ellipse", "Block", "Sphere", "Ellipsoid"}
	if int(g) < len(names) {
		return names[g]
	}
	return "Unknown"
}

// MinGeometry is the minimum number of geometry values a shape needs:
// lat/lon/alt triples, followed by radius, axis or rotation values.
func (g GraphicType) MinGeometry() int {
	switch g {
	case GraphicPoint:
		return 3
	case GraphicPath, GraphicRectangle, GraphicBlock:
		return 6
	case GraphicPolygon:
		return 9
	case GraphicCircle, GraphicSphere:
		return 4 // centre, radius
	case GraphicEllipse:
		return 6 // centre, major, minor, rotation
	case GraphicEllipsoid:
		return 7 // centre, three axes, rotation
	default:
		return 0
	}
}

// Graphic is a styled tactical drawing.
type Graphic struct {
	Header

	GraphicType *GraphicType
	LineWidth   *float64
	LineColor   string // RGBA hex
	FillColor   string
	TextColor   string
	Encoding    Encoding
	Annotation  string

	Geometry []float64
}

func (Graphic) Type() Type { return TypeGraphic }
func (g Graphic) Envelope() Header { return g.Header }
func (g Graphic) WithEnvelope(h Header) Message { g.Header = h; return g }

func (g Graphic) body() []string {
	out := encodeFields(&g, graphicFields)
	for _, v := range g.Geometry {
		out = append(out, formatFloat(v))
	}
	return out
}

func colorField(name string, ref func(*Graphic) *string) field[Graphic] {
	return patternField(name, false, ref, func(s string) bool {
		return isHex(s, 8) && (len(s) == 6 || len(s) == 8)
	})
}

var graphicFields = []field[Graphic]{
	enumField("GraphicType", true, func(g *Graphic) **GraphicType { return &g.GraphicType }, GraphicEllipsoid),
	floatField("LineWidth", false, func(g *Graphic) **float64 { return &g.LineWidth }, nonNegative),
	colorField("LineColor", func(g *Graphic) *string { return &g.LineColor }),
	colorField("FillColor", func(g *Graphic) *string { return &g.FillColor }),
	colorField("TextColor", func(g *Graphic) *string { return &g.TextColor }),
	encodingField("Encoding", func(g *Graphic) *Encoding { return &g.Encoding }),
	{
		name:     "Annotation",
		required: always[Graphic](false),
		invalid:  Ptr(LevelSevere),
		decode: func(g *Graphic, tok string) error {
			if g.Encoding != EncodingBase64 {
				g.Annotation = tok
				return nil
			}
			b, err := decodeBase64(tok)
			if err != nil {
				return err
			}
			g.Annotation = string(b)
			return nil
		},
		encode: func(g *Graphic) string {
			if g.Annotation == "" {
				return ""
			}
			if g.Encoding == EncodingBase64 {
				return base64.StdEncoding.EncodeToString([]byte(g.Annotation))
			}
			return sanitize(g.Annotation)
		},
	},
}

func encodingField[M any](name string, ref func(*M) *Encoding) field[M] {
	return field[M]{
		name:     name,
		required: always[M](false),
		decode: func(m *M, tok string) error {
			switch e := Encoding(strings.ToUpper(tok)); e {
			case EncodingNone, EncodingBase64:
				*ref(m) = e
				return nil
			default:
				return errors.New("expected NONE or BASE64")
			}
		},
		encode: func(m *M) string { return string(*ref(m)) },
	}
}

func decodeGraphic(h Header, body []string, d *Diagnostics) Message {
	g := Graphic{Header: h}
	rest := decodeFields(TypeGraphic, &g, body, graphicFields, d)

	for i, tok := range rest {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		v, err := parseFloat(tok)
		if err != nil {
			d.add(TypeGraphic, "Geometry", LevelWarning, "Geometry value %d %q skipped: %v", i, tok, err)
			continue
		}
		g.Geometry = append(g.Geometry, v)
	}

	if g.GraphicType != nil && len(g.Geometry) < g.GraphicType.MinGeometry() {
		d.add(TypeGraphic, "Geometry", LevelWarning, "%s needs at least %d geometry values, got %d",
			*g.GraphicType, g.GraphicType.MinGeometry(), len(g.Geometry))
	}
	return g
}
