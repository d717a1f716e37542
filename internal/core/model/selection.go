package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidSelection = errors.New("invalid selection")
	ErrUnknownShape     = errors.New("unknown selection shape")
)

type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapePolygon   ShapeType = "polygon"
)

// Selection is a shape drawn on the map: RectangleSelection or PolygonSelection.
type Selection interface {
	Shape() ShapeType
	Filter() SpatialFilter
	isSelection()
}

type RectangleSelection struct {
	SouthWest LatLng
	NorthEast LatLng
}

func (RectangleSelection) Shape() ShapeType { return ShapeRectangle }
func (RectangleSelection) isSelection()     {}

// Filter builds the box from the two corners regardless of drag direction.
func (r RectangleSelection) Filter() SpatialFilter {
	return BBoxFilter{
		MinLon: math.Min(r.SouthWest.Lng, r.NorthEast.Lng),
		MinLat: math.Min(r.SouthWest.Lat, r.NorthEast.Lat),
		MaxLon: math.Max(r.SouthWest.Lng, r.NorthEast.Lng),
		MaxLat: math.Max(r.SouthWest.Lat, r.NorthEast.Lat),
	}
}

type PolygonSelection struct {
	Points []LatLng
}

func (PolygonSelection) Shape() ShapeType { return ShapePolygon }
func (PolygonSelection) isSelection()     {}

func (p PolygonSelection) Filter() SpatialFilter {
	return NewPolygonFilter(p.Points)
}

// AreaSelected is the Map.area_selected payload as the map widget emits it.
type AreaSelected struct {
	Type    ShapeType       `json:"type"`
	Feature json.RawMessage `json:"feature"`
}

// leaflet layer layouts
type leafletRect struct {
	Rect *struct {
		SouthWest *LatLng `json:"_southWest"`
		NorthEast *LatLng `json:"_northEast"`
	} `json:"rect"`
}

type leafletPoly struct {
	Poly *struct {
		LatLngs []LatLng `json:"_latlngs"`
	} `json:"poly"`
}

// Selection decodes the feature geometry. Unrecognised types return
// ErrUnknownShape; malformed geometry returns ErrInvalidSelection.
func (a AreaSelected) Selection() (Selection, error) {
	switch a.Type {
	case ShapeRectangle:
		var f leafletRect
		if err := json.Unmarshal(a.Feature, &f); err != nil {
			return nil, fmt.Errorf("%w: rectangle: %w", ErrInvalidSelection, err)
		}
		if f.Rect == nil || f.Rect.SouthWest == nil || f.Rect.NorthEast == nil {
			return nil, fmt.Errorf("%w: rectangle: missing corners", ErrInvalidSelection)
		}
		sw, ne := *f.Rect.SouthWest, *f.Rect.NorthEast
		if err := validateLatLng(sw); err != nil {
			return nil, err
		}
		if err := validateLatLng(ne); err != nil {
			return nil, err
		}
		west, east := wrapLngRange(math.Min(sw.Lng, ne.Lng), math.Max(sw.Lng, ne.Lng))
		return RectangleSelection{
			SouthWest: LatLng{Lat: sw.Lat, Lng: west},
			NorthEast: LatLng{Lat: ne.Lat, Lng: east},
		}, nil

	case ShapePolygon:
		var f leafletPoly
		if err := json.Unmarshal(a.Feature, &f); err != nil {
			return nil, fmt.Errorf("%w: polygon: %w", ErrInvalidSelection, err)
		}
		if f.Poly == nil || len(f.Poly.LatLngs) < 3 {
			return nil, fmt.Errorf("%w: polygon: need at least 3 vertices", ErrInvalidSelection)
		}
		for _, p := range f.Poly.LatLngs {
			if err := validateLatLng(p); err != nil {
				return nil, err
			}
		}
		pts, err := shiftPolygonLng(f.Poly.LatLngs)
		if err != nil {
			return nil, err
		}
		return PolygonSelection{Points: pts}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, a.Type)
	}
}

// NewAreaSelected encodes a selection into its wire payload.
func NewAreaSelected(sel Selection) (AreaSelected, error) {
	var feature any
	switch s := sel.(type) {
	case RectangleSelection:
		feature = map[string]any{
			"rect": map[string]LatLng{"_southWest": s.SouthWest, "_northEast": s.NorthEast},
		}
	case PolygonSelection:
		feature = map[string]any{
			"poly": map[string][]LatLng{"_latlngs": s.Points},
		}
	default:
		return AreaSelected{}, fmt.Errorf("%w: %T", ErrUnknownShape, sel)
	}
	b, err := json.Marshal(feature)
	if err != nil {
		return AreaSelected{}, fmt.Errorf("marshal feature: %w", err)
	}
	return AreaSelected{Type: sel.Shape(), Feature: b}, nil
}

func validateLatLng(p LatLng) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: non-finite coordinate", ErrInvalidSelection)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of [-90,90]", ErrInvalidSelection, p.Lat)
	}
	return nil
}

// wrapLng maps a longitude from a panned map (e.g. 190) into [-180,180].
func wrapLng(lng float64) float64 {
	if lng >= -180 && lng <= 180 {
		return lng
	}
	w := math.Mod(lng+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

// wrapLngRange wraps a west/east pair. A range crossing the antimeridian, or
// wider than the world, widens to the full longitude band since ext_bbox
// cannot express a wrapped box.
func wrapLngRange(west, east float64) (float64, float64) {
	if east-west >= 360 {
		return -180, 180
	}
	w, e := wrapLng(west), wrapLng(east)
	if w > e {
		return -180, 180
	}
	return w, e
}

// shiftPolygonLng moves a polygon drawn on a wrapped copy of the world back by
// whole turns. Polygons that still straddle the antimeridian are rejected.
func shiftPolygonLng(pts []LatLng) ([]LatLng, error) {
	minLng := pts[0].Lng
	for _, p := range pts[1:] {
		minLng = math.Min(minLng, p.Lng)
	}
	shift := -360 * math.Floor((minLng+180)/360)
	out := make([]LatLng, len(pts))
	for i, p := range pts {
		lng := p.Lng + shift
		if lng > 180 {
			return nil, fmt.Errorf("%w: polygon crosses the antimeridian", ErrInvalidSelection)
		}
		out[i] = LatLng{Lat: p.Lat, Lng: lng}
	}
	return out, nil
}

// ResultsReceived is the Map.results_received payload.
type ResultsReceived struct {
	Results []Item `json:"results"`
	Query   string `json:"query"`
	Count   int    `json:"count"`
}

// SearchFailed is the Map.search_failed payload.
type SearchFailed struct {
	Query string `json:"query"`
	Page  int    `json:"page"`
	Rows  int    `json:"rows"`
	Error string `json:"error"`
}
