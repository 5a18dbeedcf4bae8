// Package tiler turns map layers into vector tile archives.
package tiler

import "github.com/paulmach/orb/geojson"

// MaxZoom is the deepest zoom any engine generates.
const MaxZoom = 14

// TileConfig selects the layer name and zoom range of an archive.
type TileConfig struct {
	Layer   string `json:"layer" doc:"Layer name inside the tiles" example:"hipsometria"`
	MinZoom int    `json:"minZoom" minimum:"0" maximum:"14" doc:"Minimum zoom level"`
	MaxZoom int    `json:"maxZoom" minimum:"0" maximum:"14" doc:"Maximum zoom level"`
}

// Normalize clamps the zoom range into [0, MaxZoom] and defaults an empty
// range to 0-MaxZoom.
func (c TileConfig) Normalize() TileConfig {
	if c.MinZoom == 0 && c.MaxZoom == 0 {
		c.MaxZoom = MaxZoom
	}
	if c.MinZoom < 0 {
		c.MinZoom = 0
	}
	if c.MaxZoom < 0 || c.MaxZoom > MaxZoom {
		c.MaxZoom = MaxZoom
	}
	if c.MinZoom > c.MaxZoom {
		c.MinZoom = c.MaxZoom
	}
	if c.Layer == "" {
		c.Layer = "default"
	}
	return c
}

// Tiler writes a feature collection to a PMTiles archive at outputPath.
type Tiler interface {
	Name() string
	Available() bool
	Tile(fc *geojson.FeatureCollection, outputPath string, config TileConfig) error
}
