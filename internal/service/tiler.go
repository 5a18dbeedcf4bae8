package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-fire/internal/tiler"
)

// TilerService exports catalogue overlays as PMTiles archives.
type TilerService struct {
	tilesDir string
	layers   *LayerService
	engine   tiler.Tiler
}

// NewTilerService creates a new tiler service writing to dataDir/tiles.
func NewTilerService(dataDir string, layers *LayerService, engine tiler.Tiler) *TilerService {
	return &TilerService{
		tilesDir: filepath.Join(dataDir, "tiles"),
		layers:   layers,
		engine:   engine,
	}
}

// ExportOptions selects the overlay and zoom range of an export.
type ExportOptions struct {
	LayerID    string `json:"layerId" required:"true" doc:"Overlay to export" example:"hipsometria"`
	OutputName string `json:"outputName,omitempty" doc:"Output PMTiles name, defaults to the overlay ID"`
	MinZoom    int    `json:"minZoom,omitempty" minimum:"0" maximum:"14" doc:"Minimum zoom level"`
	MaxZoom    int    `json:"maxZoom,omitempty" minimum:"0" maximum:"14" doc:"Maximum zoom level"`
}

// ProgressFunc is called with progress updates during an export.
type ProgressFunc func(progress int, status string)

// Export tiles one overlay into tilesDir and returns the archive path.
func (s *TilerService) Export(ctx context.Context, opts ExportOptions, onProgress ProgressFunc) (string, error) {
	progress := func(p int, status string) {
		if onProgress != nil {
			onProgress(p, status)
		}
	}

	o, payload, ok := s.layers.Get(opts.LayerID)
	if !ok {
		return "", fmt.Errorf("layer %q not found", opts.LayerID)
	}
	fc, ok := payload.(*geojson.FeatureCollection)
	if !ok {
		return "", fmt.Errorf("layer %q of kind %s cannot be tiled", o.ID, o.Kind)
	}
	if !s.engine.Available() {
		return "", fmt.Errorf("tiler %s is not available", s.engine.Name())
	}

	name := opts.OutputName
	if name == "" {
		name = o.ID
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid output name %q", name)
	}
	if !strings.HasSuffix(name, ".pmtiles") {
		name += ".pmtiles"
	}
	if err := os.MkdirAll(s.tilesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create tiles directory: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	progress(10, fmt.Sprintf("Tiling %d features with %s...", len(fc.Features), s.engine.Name()))
	out := filepath.Join(s.tilesDir, name)
	cfg := tiler.TileConfig{Layer: o.ID, MinZoom: opts.MinZoom, MaxZoom: opts.MaxZoom}
	if err := s.engine.Tile(fc, out, cfg); err != nil {
		return "", fmt.Errorf("tile generation failed: %w", err)
	}
	progress(100, "Tiles generated successfully!")
	return out, nil
}

// TilesDir returns the tiles directory path.
func (s *TilerService) TilesDir() string {
	return s.tilesDir
}
