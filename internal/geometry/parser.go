package geometry

import (
	"encoding/json"
	"strings"
)

// ParsePolygon normalizes a stored or transmitted geometry into a canonical
// vertex list.
//
// Accepted shapes:
//   - a JSON document held in a string, []byte or json.RawMessage, decoded
//     recursively since strings may wrap strings
//   - an array of {lat, lng} objects
//   - an object with a "coordinates" field (GeoJSON Polygon, MultiPolygon or
//     deeper nesting); only the first ring is read and [lng, lat] pairs are
//     swapped into Vertex order
//   - a GeoJSON Feature, whose "geometry" is parsed
//   - a Payload, []Vertex or Polygon
//
// Any other Go value is read through its JSON encoding. Input that matches
// none of these shapes yields an empty polygon. ParsePolygon never fails:
// garbled geometry means "no polygon".
//
// An explicit closing vertex equal to the first is dropped. Fewer than
// MinPolygonVertices vertices after that yields an empty polygon.
func ParsePolygon(raw any) Polygon {
	switch v := raw.(type) {
	case Payload:
		return v.Vertices()
	case *Payload:
		if v == nil {
			return Polygon{}
		}
		return v.Vertices()
	}
	poly := dedupClosingVertex(collect(raw))
	if len(poly) < MinPolygonVertices {
		return Polygon{}
	}
	return poly
}

func collect(raw any) Polygon {
	switch v := raw.(type) {
	case nil:
		return Polygon{}
	case string:
		return collectText(v)
	case []byte:
		return collectText(string(v))
	case json.RawMessage:
		return collectText(string(v))
	case Polygon:
		out := make(Polygon, len(v))
		copy(out, v)
		return out
	case []Vertex:
		out := make(Polygon, len(v))
		copy(out, v)
		return out
	case []any:
		if !isVertexArray(v) {
			return Polygon{}
		}
		out := make(Polygon, 0, len(v))
		for _, item := range v {
			obj := item.(map[string]any)
			out = append(out, Vertex{
				Lat: obj["lat"].(float64),
				Lng: obj["lng"].(float64),
			})
		}
		return out
	case map[string]any:
		if coords, ok := v["coordinates"]; ok {
			return collectCoordinates(coords)
		}
		if geom, ok := v["geometry"]; ok {
			return collect(geom)
		}
		return Polygon{}
	case bool, float64, json.Number:
		return Polygon{}
	default:
		decoded, ok := normalize(v)
		if !ok {
			return Polygon{}
		}
		return collect(decoded)
	}
}

func collectText(text string) Polygon {
	text = strings.TrimSpace(text)
	if text == "" {
		return Polygon{}
	}
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return Polygon{}
	}
	return collect(decoded)
}

// collectCoordinates descends through Polygon/MultiPolygon nesting to the
// first flat ring of [lng, lat] pairs.
func collectCoordinates(coords any) Polygon {
	outer, ok := coords.([]any)
	if !ok || len(outer) == 0 {
		return Polygon{}
	}

	ring := outer[0]
	for {
		arr, ok := ring.([]any)
		if !ok || len(arr) == 0 {
			break
		}
		first, ok := arr[0].([]any)
		if !ok {
			break
		}
		if len(first) > 0 {
			if _, isNumber := first[0].(float64); isNumber {
				break
			}
		}
		ring = first
	}

	pairs, ok := ring.([]any)
	if !ok {
		return Polygon{}
	}
	out := make(Polygon, 0, len(pairs))
	for _, item := range pairs {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		lng, okLng := pair[0].(float64)
		lat, okLat := pair[1].(float64)
		if !okLng || !okLat {
			continue
		}
		out = append(out, Vertex{Lat: lat, Lng: lng})
	}
	return out
}

func isVertexArray(items []any) bool {
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := obj["lat"].(float64); !ok {
			return false
		}
		if _, ok := obj["lng"].(float64); !ok {
			return false
		}
	}
	return true
}

// normalize converts an arbitrary Go value into the generic form produced by
// encoding/json, so typed slices and structs follow the same rules as their
// wire encoding.
func normalize(v any) (any, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}
