// Package hazard owns the construction dataset: GeoJSON decoding into
// normalized features, the swap-on-success in-memory cache, and the
// radius matcher the live watch runs on every position fix.
package hazard

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/ChenCXxx/townpass-microservice/internal/geo"
)

// GeometryKind classifies a feature's GeoJSON geometry.
type GeometryKind string

const (
	GeometryPoint   GeometryKind = "Point"
	GeometryLine    GeometryKind = "Line"
	GeometryPolygon GeometryKind = "Polygon"
)

// idCandidateKeys are the property keys consulted, in priority order,
// for a feature-provided stable identifier.
var idCandidateKeys = []string{"id", "case_id", "sid"}

// nameCandidateKeys are the property keys consulted, in priority order,
// for a feature's display name. The upstream dataset is not consistent
// about which one it fills in.
var nameCandidateKeys = []string{"name", "case_name", "title", "road"}

// dateLayout is the wire format of the dataset's start_date/end_date
// properties.
const dateLayout = "2006-01-02"

// Feature is one normalized construction record. Features are immutable
// once stored in the cache; a refresh replaces the whole set.
type Feature struct {
	ID         string
	Name       string
	Kind       GeometryKind
	Anchor     geo.Coordinate
	Properties map[string]any

	// ActiveFrom/ActiveUntil bound the construction period when the
	// dataset provides one. A nil bound is open-ended.
	ActiveFrom  *time.Time
	ActiveUntil *time.Time
}

// ActiveOn reports whether the feature's construction period covers the
// given day. Features without dates are always active.
func (f Feature) ActiveOn(day time.Time) bool {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if f.ActiveFrom != nil && d.Before(*f.ActiveFrom) {
		return false
	}
	if f.ActiveUntil != nil && d.After(*f.ActiveUntil) {
		return false
	}
	return true
}

type featureCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type     string `json:"type"`
	Geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// DecodeFeatureCollection parses a GeoJSON feature collection into
// normalized features. Individual members with unusable geometry are
// dropped; a malformed document as a whole is an error.
func DecodeFeatureCollection(r io.Reader) ([]Feature, error) {
	var collection featureCollection
	if err := json.NewDecoder(r).Decode(&collection); err != nil {
		return nil, errors.Wrap(err, "failed to parse feature collection")
	}

	features := make([]Feature, 0, len(collection.Features))
	for _, raw := range collection.Features {
		feature, err := normalize(raw)
		if err != nil {
			continue
		}
		features = append(features, feature)
	}
	return features, nil
}

func normalize(raw geoJSONFeature) (Feature, error) {
	anchor, kind, err := anchorCoordinate(raw.Geometry.Type, raw.Geometry.Coordinates)
	if err != nil {
		return Feature{}, err
	}

	feature := Feature{
		ID:         deriveID(raw.Properties, anchor),
		Name:       displayName(raw.Properties),
		Kind:       kind,
		Anchor:     anchor,
		Properties: raw.Properties,
	}
	feature.ActiveFrom = parseDateProperty(raw.Properties, "start_date")
	feature.ActiveUntil = parseDateProperty(raw.Properties, "end_date")
	return feature, nil
}

// anchorCoordinate picks the feature's anchor: the point itself for
// Point geometry, the first listed coordinate for Line/Polygon. Anchor
// selection is deterministic given identical input.
func anchorCoordinate(geomType string, raw json.RawMessage) (geo.Coordinate, GeometryKind, error) {
	switch geomType {
	case "Point":
		var position []float64
		if err := json.Unmarshal(raw, &position); err != nil || len(position) < 2 {
			return geo.Coordinate{}, "", errors.New("unusable point coordinates")
		}
		return geo.Coordinate{Lon: position[0], Lat: position[1]}, GeometryPoint, nil

	case "LineString":
		var positions [][]float64
		if err := json.Unmarshal(raw, &positions); err != nil || len(positions) == 0 || len(positions[0]) < 2 {
			return geo.Coordinate{}, "", errors.New("unusable line coordinates")
		}
		return geo.Coordinate{Lon: positions[0][0], Lat: positions[0][1]}, GeometryLine, nil

	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(raw, &rings); err != nil || len(rings) == 0 || len(rings[0]) == 0 || len(rings[0][0]) < 2 {
			return geo.Coordinate{}, "", errors.New("unusable polygon coordinates")
		}
		return geo.Coordinate{Lon: rings[0][0][0], Lat: rings[0][0][1]}, GeometryPolygon, nil
	}

	return geo.Coordinate{}, "", errors.Errorf("unsupported geometry type %q", geomType)
}

// deriveID returns a feature-provided identifier when one exists, and
// otherwise quantizes the anchor to 5 decimal places. Identical
// physical features therefore map to the same id across refreshes even
// without a provided key.
func deriveID(properties map[string]any, anchor geo.Coordinate) string {
	for _, key := range idCandidateKeys {
		if id := stringProperty(properties, key); id != "" {
			return id
		}
	}
	return fmt.Sprintf("%.5f,%.5f", anchor.Lat, anchor.Lon)
}

func displayName(properties map[string]any) string {
	for _, key := range nameCandidateKeys {
		if name := stringProperty(properties, key); name != "" {
			return name
		}
	}
	return "Unnamed construction"
}

// stringProperty renders a property value as a string. Numeric ids are
// common in the upstream dataset.
func stringProperty(properties map[string]any, key string) string {
	switch v := properties[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

func parseDateProperty(properties map[string]any, key string) *time.Time {
	value := stringProperty(properties, key)
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil
	}
	return &parsed
}
