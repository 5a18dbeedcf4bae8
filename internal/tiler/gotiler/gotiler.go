// Package gotiler generates PMTiles archives from map layers in pure Go.
//
// Terrain grids are dense (one square per 0.0005 degrees), so shallow zooms
// simplify hard and deep zooms keep every vertex. Nested style maps are
// flattened into style_* attributes because MVT values are scalars.
package gotiler

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-fire/internal/pmtiles"
	"github.com/joeblew999/plat-fire/internal/tiler"
)

// GoTiler implements tiler.Tiler using orb.
type GoTiler struct{}

// New creates a new GoTiler.
func New() *GoTiler {
	return &GoTiler{}
}

// Name returns the engine name.
func (g *GoTiler) Name() string {
	return "go"
}

// Available always returns true.
func (g *GoTiler) Available() bool {
	return true
}

// Tile writes fc as an archive to outputPath.
func (g *GoTiler) Tile(fc *geojson.FeatureCollection, outputPath string, config tiler.TileConfig) error {
	tiles, err := g.Tiles(fc, config)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	config = config.Normalize()
	err = pmtiles.Write(f, tiles, pmtiles.Archive{
		MinZoom: uint8(config.MinZoom),
		MaxZoom: uint8(config.MaxZoom),
		Bounds:  bounds(fc),
		Metadata: map[string]any{
			"name":        config.Layer,
			"format":      "pbf",
			"compression": "gzip",
			"minzoom":     config.MinZoom,
			"maxzoom":     config.MaxZoom,
			"vector_layers": []map[string]any{
				{"id": config.Layer, "minzoom": config.MinZoom, "maxzoom": config.MaxZoom},
			},
		},
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Tiles encodes every non-empty tile of the zoom range.
func (g *GoTiler) Tiles(fc *geojson.FeatureCollection, config tiler.TileConfig) ([]pmtiles.Tile, error) {
	if fc == nil || len(fc.Features) == 0 {
		return nil, fmt.Errorf("no features to tile")
	}
	config = config.Normalize()

	var out []pmtiles.Tile
	for z := config.MinZoom; z <= config.MaxZoom; z++ {
		for t, data := range g.zoomLevel(fc, maptile.Zoom(z), config.Layer) {
			out = append(out, pmtiles.Tile{Z: uint8(t.Z), X: t.X, Y: t.Y, Data: data})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tiles produced for layer %q", config.Layer)
	}
	return out, nil
}

func (g *GoTiler) zoomLevel(fc *geojson.FeatureCollection, zoom maptile.Zoom, layer string) map[maptile.Tile][]byte {
	byTile := make(map[maptile.Tile][]*geojson.Feature)
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		for _, t := range tilesInBounds(f.Geometry.Bound(), zoom) {
			byTile[t] = append(byTile[t], f)
		}
	}

	result := make(map[maptile.Tile][]byte)
	for t, features := range byTile {
		if data := encodeTile(t, features, layer); len(data) > 0 {
			result[t] = data
		}
	}
	return result
}

func encodeTile(t maptile.Tile, features []*geojson.Feature, layerName string) []byte {
	fc := geojson.NewFeatureCollection()
	tb := t.Bound()
	for _, f := range features {
		if !intersects(f.Geometry, tb) {
			continue
		}
		// Clip and ProjectToTile work in place.
		geom := orb.Clone(f.Geometry)
		clone := geojson.NewFeature(geom)
		clone.Properties = flatten(f.Properties)
		fc.Append(clone)
	}
	if len(fc.Features) == 0 {
		return nil
	}

	layer := mvt.NewLayer(layerName, fc)
	if eps := simplifyEpsilon(t.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(tb)
	layer.ProjectToTile(t)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil
	}
	return data
}

// flatten keeps scalar properties and lifts one level of nested maps into
// prefix_key attributes.
func flatten(props geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(props))
	for k, v := range props {
		switch x := v.(type) {
		case map[string]any:
			for nk, nv := range x {
				if scalar(nv) {
					out[k+"_"+nk] = nv
				}
			}
		default:
			if scalar(v) {
				out[k] = v
			}
		}
	}
	return out
}

func scalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func intersects(geom orb.Geometry, tb orb.Bound) bool {
	if !geom.Bound().Intersects(tb) {
		return false
	}
	switch g := geom.(type) {
	case orb.Point:
		return tb.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if tb.Contains(p) {
				return true
			}
		}
		return false
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if tb.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{tb.Min, {tb.Max[0], tb.Min[1]}, tb.Max, {tb.Min[0], tb.Max[1]}, tb.Center()}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, poly := range g {
			if intersects(poly, tb) {
				return true
			}
		}
		return false
	case orb.MultiLineString:
		for _, ls := range g {
			if intersects(ls, tb) {
				return true
			}
		}
		return false
	}
	return true
}

func tilesInBounds(b orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	lo := maptile.At(b.Min, zoom)
	hi := maptile.At(b.Max, zoom)
	minX, maxX := lo.X, hi.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := lo.Y, hi.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// simplifyEpsilon stays below the terrain cell size at every zoom so that
// cells thin out rather than vanish.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 13:
		return 0
	case zoom >= 10:
		return 0.00001
	case zoom >= 7:
		return 0.00005
	default:
		return 0.0001
	}
}

func bounds(fc *geojson.FeatureCollection) [4]float64 {
	var b orb.Bound
	first := true
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if first {
			b = f.Geometry.Bound()
			first = false
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

var _ tiler.Tiler = (*GoTiler)(nil)
