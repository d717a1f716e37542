// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type FilterKind string

const (
	FilterBBox    FilterKind = "bbox"
	FilterPolygon FilterKind = "polygon"
)

// SpatialFilter is either a BBoxFilter or a PolygonFilter.
type SpatialFilter interface {
	Kind() FilterKind
	Extras() Extras
	isSpatialFilter()
}

// BBoxFilter is an axis-aligned box in EPSG:4326 degrees.
type BBoxFilter struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

// WorldBBox covers the whole globe; used when nothing has been selected.
func WorldBBox() BBoxFilter {
	return BBoxFilter{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90}
}

func (BBoxFilter) Kind() FilterKind { return FilterBBox }
func (BBoxFilter) isSpatialFilter() {}

func (b BBoxFilter) Values() [4]float64 {
	return [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// String joins minLon,minLat,maxLon,maxLat with the shortest decimal form of each value
func (b BBoxFilter) String() string {
	vals := b.Values()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (b BBoxFilter) Extras() Extras {
	return Extras{ExtBBox: b.String()}
}

// PolygonFilter keeps vertices in the order they were drawn.
type PolygonFilter struct {
	points []LatLng
}

func NewPolygonFilter(points []LatLng) PolygonFilter {
	cp := make([]LatLng, len(points))
	copy(cp, points)
	return PolygonFilter{points: cp}
}

func (PolygonFilter) Kind() FilterKind { return FilterPolygon }
func (PolygonFilter) isSpatialFilter() {}

func (p PolygonFilter) Points() []LatLng {
	cp := make([]LatLng, len(p.points))
	copy(cp, p.points)
	return cp
}

func (p PolygonFilter) Extras() Extras {
	coords := make([][2]float64, len(p.points))
	for i, pt := range p.points {
		coords[i] = [2]float64{pt.Lat, pt.Lng}
	}
	return Extras{Poly: coords}
}

// Extras is the flat key/value object attached to a search request.
type Extras struct {
	ExtBBox string       `json:"ext_bbox,omitempty"`
	Poly    [][2]float64 `json:"poly,omitempty"`
}

func (e Extras) IsZero() bool {
	return e.ExtBBox == "" && len(e.Poly) == 0
}

type PageRequest struct {
	Rows   int    `json:"rows"`
	Query  string `json:"q"`
	Start  int    `json:"start"`
	Extras Extras `json:"extras"`
}

// Item is one search hit, passed through untouched.
type Item = json.RawMessage

type SearchResult struct {
	Results []Item `json:"results"`
	Count   int    `json:"count"`
}
