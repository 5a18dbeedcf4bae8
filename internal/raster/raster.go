// Package raster turns point samples of a terrain raster into a grid of
// fixed-size colored cells.
//
// Each point is snapped onto a uniform grid of pitch squareSize. The first
// point that lands in a grid cell defines that cell; later points falling in
// the same cell are dropped, not merged.
package raster

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-fire/internal/color"
)

// ErrInvalidSquareSize is returned for a grid pitch that is not a positive
// finite number.
var ErrInvalidSquareSize = errors.New("raster: square size must be a positive finite number")

// Cell border style shared by every terrain grid.
const (
	BorderColor = "#d3d3d3"
	BorderWidth = 0.5
	FillOpacity = 1.0
)

// PointFeature is one raster sample.
type PointFeature struct {
	Lat        float64
	Lng        float64
	Attributes map[string]any
}

// Key identifies a grid cell by its snapped center.
type Key struct {
	Lat float64
	Lng float64
}

// GridCell is one rendered square of the grid.
type GridCell struct {
	Key        Key
	Bounds     orb.Bound
	FillColor  string
	Attributes map[string]any
	Popup      string
}

// Result is the output of one rasterization pass.
type Result struct {
	Cells      []GridCell
	SquareSize float64
	Skipped    int // points without finite coordinates
	Dropped    int // points that fell into an already emitted cell
}

// ColorResolver maps a raw color attribute to a CSS color.
type ColorResolver interface {
	Resolve(raw any) string
}

type resolverFunc func(any) string

func (f resolverFunc) Resolve(raw any) string { return f(raw) }

// PopupFunc renders the popup of a cell from its attributes.
type PopupFunc func(attrs map[string]any) string

// Rasterizer holds the collaborators of a rasterization pass. It keeps no
// state between calls and is safe for concurrent use.
type Rasterizer struct {
	colors ColorResolver
	popup  PopupFunc
}

// New creates a Rasterizer. A nil colors uses color.Resolve; a nil popup
// leaves cell popups empty.
func New(colors ColorResolver, popup PopupFunc) *Rasterizer {
	if colors == nil {
		colors = resolverFunc(color.Resolve)
	}
	return &Rasterizer{colors: colors, popup: popup}
}

// Rasterize rasterizes points with a default Rasterizer.
func Rasterize(points []PointFeature, colorAttribute string, squareSize float64) (*Result, error) {
	return New(nil, nil).Rasterize(points, colorAttribute, squareSize)
}

// Rasterize snaps points onto the grid and emits one cell per distinct
// snapped center, in input order. The fill of each cell is
// attributes[colorAttribute] of its first point.
func (r *Rasterizer) Rasterize(points []PointFeature, colorAttribute string, squareSize float64) (*Result, error) {
	if !(squareSize > 0) || math.IsInf(squareSize, 0) {
		return nil, ErrInvalidSquareSize
	}

	res := &Result{SquareSize: squareSize}
	seen := make(map[Key]struct{}, len(points))

	for _, p := range points {
		if !finite(p.Lat) || !finite(p.Lng) {
			res.Skipped++
			continue
		}

		key := Key{Lat: Snap(p.Lat, squareSize), Lng: Snap(p.Lng, squareSize)}
		if _, ok := seen[key]; ok {
			res.Dropped++
			continue
		}
		seen[key] = struct{}{}

		cell := GridCell{
			Key:        key,
			Bounds:     CellBounds(key, squareSize),
			FillColor:  r.colors.Resolve(p.Attributes[colorAttribute]),
			Attributes: p.Attributes,
		}
		if r.popup != nil {
			cell.Popup = r.popup(p.Attributes)
		}
		res.Cells = append(res.Cells, cell)
	}

	return res, nil
}

// Snap rounds v to the nearest multiple of size. Halves round up, toward
// positive infinity.
func Snap(v, size float64) float64 {
	return math.Floor(v/size+0.5) * size
}

// CellBounds returns the square of side size centered on key.
func CellBounds(key Key, size float64) orb.Bound {
	h := size / 2
	return orb.Bound{
		Min: orb.Point{key.Lng - h, key.Lat - h},
		Max: orb.Point{key.Lng + h, key.Lat + h},
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FromFeatureCollection extracts the point samples of fc in feature order.
// MultiPoint features yield one sample per point; other geometries are
// ignored.
func FromFeatureCollection(fc *geojson.FeatureCollection) []PointFeature {
	if fc == nil {
		return nil
	}
	points := make([]PointFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		switch g := f.Geometry.(type) {
		case orb.Point:
			points = append(points, PointFeature{Lat: g.Lat(), Lng: g.Lon(), Attributes: f.Properties})
		case orb.MultiPoint:
			for _, p := range g {
				points = append(points, PointFeature{Lat: p.Lat(), Lng: p.Lon(), Attributes: f.Properties})
			}
		}
	}
	return points
}

// FeatureCollection renders the cells as GeoJSON polygons. Each feature
// carries the source attributes plus "style" and "popup" properties.
func (r *Result) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range r.Cells {
		f := geojson.NewFeature(c.Bounds.ToPolygon())
		for k, v := range c.Attributes {
			f.Properties[k] = v
		}
		f.Properties["style"] = map[string]any{
			"color":       BorderColor,
			"weight":      BorderWidth,
			"fillColor":   c.FillColor,
			"fillOpacity": FillOpacity,
		}
		if c.Popup != "" {
			f.Properties["popup"] = c.Popup
		}
		fc.Append(f)
	}
	return fc
}
