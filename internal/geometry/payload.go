package geometry

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Kind identifies the source encoding of a stored geometry payload.
type Kind int

const (
	// KindNone means no geometry was supplied.
	KindNone Kind = iota
	// KindText is a JSON document wrapped in a string, possibly more than once.
	KindText
	// KindVertices is an array of {lat, lng} objects.
	KindVertices
	// KindGeoJSON is an object carrying GeoJSON-style coordinates.
	KindGeoJSON
	// KindUnknown is anything else, including malformed JSON.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindText:
		return "text"
	case KindVertices:
		return "vertices"
	case KindGeoJSON:
		return "geojson"
	default:
		return "unknown"
	}
}

// Payload is a zone geometry classified once, when it enters the process.
// It keeps the original encoding for round-tripping and the canonical
// vertex list for overlap testing.
type Payload struct {
	kind     Kind
	raw      json.RawMessage
	source   any
	vertices Polygon
}

// NewPayload classifies a geometry value that is already in memory.
func NewPayload(raw any) Payload {
	switch v := raw.(type) {
	case Payload:
		return v
	case *Payload:
		if v == nil {
			return Payload{vertices: Polygon{}}
		}
		return *v
	case json.RawMessage:
		return DecodePayload(v)
	case []byte:
		return DecodePayload(v)
	}
	return Payload{
		kind:     classify(raw),
		source:   raw,
		vertices: ParsePolygon(raw),
	}
}

// DecodePayload classifies a JSON document as read from storage or the wire.
func DecodePayload(data []byte) Payload {
	trimmed := bytes.TrimSpace(data)
	p := Payload{vertices: ParsePolygon(trimmed)}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p
	}
	p.raw = append(json.RawMessage(nil), trimmed...)

	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		p.kind = KindUnknown
		return p
	}
	p.kind = classify(decoded)
	return p
}

// Kind reports the source encoding.
func (p Payload) Kind() Kind {
	return p.kind
}

// Vertices returns a copy of the canonical vertex list.
func (p Payload) Vertices() Polygon {
	out := make(Polygon, len(p.vertices))
	copy(out, p.vertices)
	return out
}

// Usable reports whether the payload resolved to a polygon of at least three
// vertices.
func (p Payload) Usable() bool {
	return p.vertices.Usable()
}

// IsZero reports whether no geometry was supplied at all.
func (p Payload) IsZero() bool {
	return p.kind == KindNone && len(p.raw) == 0 && p.source == nil
}

// MarshalJSON writes the payload back in its original encoding. Bytes that
// were never valid JSON are emitted as a string.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		if !json.Valid(p.raw) {
			return json.Marshal(string(p.raw))
		}
		return p.raw, nil
	}
	if p.source != nil {
		return json.Marshal(p.source)
	}
	return []byte("null"), nil
}

// UnmarshalJSON classifies the incoming document.
func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = DecodePayload(data)
	return nil
}

func classify(v any) Kind {
	switch val := v.(type) {
	case nil:
		return KindNone
	case string:
		if val == "" {
			return KindNone
		}
		return KindText
	case []Vertex, Polygon:
		return KindVertices
	case []any:
		if isVertexArray(val) {
			return KindVertices
		}
		return KindUnknown
	case map[string]any:
		if _, ok := val["coordinates"]; ok {
			return KindGeoJSON
		}
		if _, ok := val["geometry"]; ok {
			return KindGeoJSON
		}
		return KindUnknown
	case bool, float64, json.Number:
		return KindUnknown
	default:
		decoded, ok := normalize(v)
		if !ok {
			return KindUnknown
		}
		return classify(decoded)
	}
}

// ZoneID is an opaque zone identifier. It accepts JSON strings and numbers
// so that records keyed by integer primary keys compare equal to the same
// key sent as text.
type ZoneID string

// ZoneIDFromInt formats an integer key.
func ZoneIDFromInt(id int64) ZoneID {
	return ZoneID(strconv.FormatInt(id, 10))
}

// UnmarshalJSON accepts "17", 17 and null.
func (id *ZoneID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = ZoneID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*id = ZoneID(n.String())
	return nil
}
