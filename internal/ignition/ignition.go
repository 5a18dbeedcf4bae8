// Package ignition indexes wildfire ignition points by year and derives the
// yearly, heatmap, cluster and density layers from them.
package ignition

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-fire/internal/color"
	"github.com/joeblew999/plat-fire/internal/mapconfig"
	"github.com/joeblew999/plat-fire/internal/popup"
	"github.com/joeblew999/plat-fire/internal/raster"
)

// Ignition is one recorded ignition point.
type Ignition struct {
	Point      orb.Point
	Year       int
	Properties map[string]any
}

// HeatPoint is a [lat, lng, intensity] triple.
type HeatPoint [3]float64

// Index holds ignitions grouped by year, in input order within each year.
type Index struct {
	cfg     mapconfig.Ignitions
	popup   *popup.Builder
	byYear  map[int][]Ignition
	total   int
	skipped int
}

// New indexes the point features of fc. Features without a point geometry
// or a readable year are skipped.
func New(fc *geojson.FeatureCollection, cfg mapconfig.Ignitions, notAvailable string) *Index {
	ix := &Index{
		cfg:    cfg,
		popup:  popup.New(cfg.Popup, notAvailable),
		byYear: make(map[int][]Ignition),
	}
	if fc == nil {
		return ix
	}
	for _, f := range fc.Features {
		if f == nil {
			ix.skipped++
			continue
		}
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			ix.skipped++
			continue
		}
		year, ok := parseYear(f.Properties[cfg.YearAttribute])
		if !ok {
			ix.skipped++
			continue
		}
		ix.byYear[year] = append(ix.byYear[year], Ignition{Point: pt, Year: year, Properties: f.Properties})
		ix.total++
	}
	return ix
}

// parseYear reads years stored either as numbers or as numeric strings.
func parseYear(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return int(x), true
	case int:
		return x, true
	case string:
		y, err := strconv.Atoi(strings.TrimSpace(x))
		return y, err == nil
	}
	return 0, false
}

// Len returns the number of indexed ignitions, in or out of the year range.
func (ix *Index) Len() int { return ix.total }

// Skipped returns the number of features that could not be indexed.
func (ix *Index) Skipped() int { return ix.skipped }

// Years returns the configured year range, first to last.
func (ix *Index) Years() []int {
	years := make([]int, 0, ix.cfg.LastYear-ix.cfg.FirstYear+1)
	for y := ix.cfg.FirstYear; y <= ix.cfg.LastYear; y++ {
		years = append(years, y)
	}
	return years
}

// InRange reports whether year lies within the configured range.
func (ix *Index) InRange(year int) bool {
	return year >= ix.cfg.FirstYear && year <= ix.cfg.LastYear
}

// Counts returns the number of ignitions of every year in range.
func (ix *Index) Counts() map[int]int {
	counts := make(map[int]int)
	for _, y := range ix.Years() {
		counts[y] = len(ix.byYear[y])
	}
	return counts
}

// ForYear returns the ignitions of one year.
func (ix *Index) ForYear(year int) []Ignition {
	return ix.byYear[year]
}

// Popup renders the popup of one ignition.
func (ix *Index) Popup(ig Ignition) string {
	return ix.popup.Build(ig.Properties)
}

// YearLayer returns the ignitions of year as circle marker features.
func (ix *Index) YearLayer(year int) *geojson.FeatureCollection {
	m := ix.cfg.Marker
	style := map[string]any{
		"radius":      m.Radius,
		"fillColor":   m.FillColor,
		"color":       m.Color,
		"weight":      m.Weight,
		"opacity":     m.Opacity,
		"fillOpacity": m.FillOpacity,
	}
	return ix.points(year, style)
}

// ClusterLayer returns the ignitions of the configured cluster year as plain
// marker features. The client groups them into clusters.
func (ix *Index) ClusterLayer() *geojson.FeatureCollection {
	return ix.points(ix.cfg.ClusterYear, nil)
}

func (ix *Index) points(year int, style map[string]any) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, ig := range ix.byYear[year] {
		f := geojson.NewFeature(ig.Point)
		for k, v := range ig.Properties {
			f.Properties[k] = v
		}
		f.Properties["popup"] = ix.Popup(ig)
		if style != nil {
			f.Properties["style"] = style
		}
		fc.Append(f)
	}
	return fc
}

// Heatmap returns every ignition in the year range, year by year, each with
// the configured intensity.
func (ix *Index) Heatmap() []HeatPoint {
	points := make([]HeatPoint, 0, ix.total)
	for _, y := range ix.Years() {
		for _, ig := range ix.byYear[y] {
			points = append(points, HeatPoint{ig.Point.Lat(), ig.Point.Lon(), ix.cfg.Heatmap.Intensity})
		}
	}
	return points
}

// DensityCell is one cell of the ignition density grid.
type DensityCell struct {
	Key    raster.Key
	Bounds orb.Bound
	Count  int
	Color  string
}

// Density counts the ignitions in range per grid cell of pitch squareSize
// and colors every cell by its share of the busiest cell. Cells are returned
// in first-seen order.
func (ix *Index) Density(squareSize float64, g color.Gradient) ([]DensityCell, error) {
	if !(squareSize > 0) {
		return nil, raster.ErrInvalidSquareSize
	}

	var cells []DensityCell
	slot := make(map[raster.Key]int)
	busiest := 0
	for _, y := range ix.Years() {
		for _, ig := range ix.byYear[y] {
			key := raster.Key{
				Lat: raster.Snap(ig.Point.Lat(), squareSize),
				Lng: raster.Snap(ig.Point.Lon(), squareSize),
			}
			i, ok := slot[key]
			if !ok {
				i = len(cells)
				slot[key] = i
				cells = append(cells, DensityCell{Key: key, Bounds: raster.CellBounds(key, squareSize)})
			}
			cells[i].Count++
			if cells[i].Count > busiest {
				busiest = cells[i].Count
			}
		}
	}

	for i := range cells {
		cells[i].Color = g.At(float64(cells[i].Count) / float64(busiest))
	}
	return cells, nil
}

// DensityLayer renders Density as GeoJSON polygons.
func (ix *Index) DensityLayer(squareSize float64, g color.Gradient) (*geojson.FeatureCollection, error) {
	cells, err := ix.Density(squareSize, g)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, c := range cells {
		f := geojson.NewFeature(c.Bounds.ToPolygon())
		f.Properties["count"] = c.Count
		f.Properties["popup"] = "<strong>Ignições:</strong> " + strconv.Itoa(c.Count)
		f.Properties["style"] = map[string]any{
			"color":       raster.BorderColor,
			"weight":      raster.BorderWidth,
			"fillColor":   c.Color,
			"fillOpacity": 0.7,
		}
		fc.Append(f)
	}
	return fc, nil
}
