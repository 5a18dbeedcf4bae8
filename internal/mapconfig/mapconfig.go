// Package mapconfig holds the catalogue of the fire map: base maps,
// boundaries, ignition and terrain layers, and the animation settings.
//
// A Config is loaded once at startup and treated as read-only afterwards.
package mapconfig

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-fire/internal/popup"
)

//go:embed default.yaml
var defaultYAML []byte

// Config is the full map catalogue.
type Config struct {
	Title        string     `yaml:"title" json:"title"`
	Center       [2]float64 `yaml:"center" json:"center" doc:"Initial center [lat, lng]"`
	Zoom         int        `yaml:"zoom" json:"zoom" validate:"gte=0,lte=22"`
	NotAvailable string     `yaml:"notAvailable" json:"notAvailable"`
	BaseMaps     []BaseMap  `yaml:"baseMaps" json:"baseMaps" validate:"required,min=1,dive"`
	Boundaries   []Boundary `yaml:"boundaries" json:"boundaries" validate:"dive"`
	Places       Places     `yaml:"places" json:"places"`
	Ignitions    Ignitions  `yaml:"ignitions" json:"ignitions"`
	Terrain      Terrain    `yaml:"terrain" json:"terrain"`
	Animation    Animation  `yaml:"animation" json:"animation"`
}

// BaseMap is a tile layer offered in the base layer switcher.
type BaseMap struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Name        string `yaml:"name" json:"name" validate:"required"`
	URL         string `yaml:"url" json:"url" validate:"required"`
	Attribution string `yaml:"attribution" json:"attribution"`
	Default     bool   `yaml:"default" json:"default"`
}

// Boundary is an administrative boundary overlay, read from a file under
// the sources directory or fetched from URL.
type Boundary struct {
	ID      string  `yaml:"id" json:"id" validate:"required"`
	Name    string  `yaml:"name" json:"name" validate:"required"`
	File    string  `yaml:"file,omitempty" json:"file,omitempty" validate:"required_without=URL"`
	URL     string  `yaml:"url,omitempty" json:"url,omitempty" validate:"omitempty,uri"`
	Color   string  `yaml:"color" json:"color" validate:"omitempty,hexcolor"`
	Weight  float64 `yaml:"weight" json:"weight" validate:"gte=0"`
	Visible bool    `yaml:"visible" json:"visible"`
}

// Places is a marker overlay with free-form HTML popups.
type Places struct {
	ID    string  `yaml:"id" json:"id"`
	Name  string  `yaml:"name" json:"name"`
	Items []Place `yaml:"items" json:"items" validate:"dive"`
}

// Place is one marker of a Places overlay.
type Place struct {
	Name     string  `yaml:"name" json:"name"`
	Lat      float64 `yaml:"lat" json:"lat" validate:"latitude"`
	Lng      float64 `yaml:"lng" json:"lng" validate:"longitude"`
	Popup    string  `yaml:"popup" json:"popup"`
	MaxWidth int     `yaml:"maxWidth" json:"maxWidth"`
}

// Ignitions configures the ignition point layers.
type Ignitions struct {
	File              string      `yaml:"file" json:"file" validate:"required"`
	YearAttribute     string      `yaml:"yearAttribute" json:"yearAttribute" validate:"required"`
	FirstYear         int         `yaml:"firstYear" json:"firstYear" validate:"required"`
	LastYear          int         `yaml:"lastYear" json:"lastYear" validate:"required,gtefield=FirstYear"`
	ClusterYear       int         `yaml:"clusterYear" json:"clusterYear"`
	DensitySquareSize float64     `yaml:"densitySquareSize" json:"densitySquareSize" validate:"gt=0"`
	Marker            Marker      `yaml:"marker" json:"marker"`
	Popup             []popup.Row `yaml:"popup" json:"popup" validate:"dive"`
	Heatmap           Heatmap     `yaml:"heatmap" json:"heatmap"`
}

// Marker is the circle marker style of yearly ignition points.
type Marker struct {
	Radius      float64 `yaml:"radius" json:"radius"`
	FillColor   string  `yaml:"fillColor" json:"fillColor"`
	Color       string  `yaml:"color" json:"color"`
	Weight      float64 `yaml:"weight" json:"weight"`
	Opacity     float64 `yaml:"opacity" json:"opacity"`
	FillOpacity float64 `yaml:"fillOpacity" json:"fillOpacity"`
}

// Heatmap configures the ignition heat layer.
type Heatmap struct {
	Intensity float64            `yaml:"intensity" json:"intensity" validate:"gt=0,lte=1"`
	Radius    int                `yaml:"radius" json:"radius" validate:"gt=0"`
	Blur      int                `yaml:"blur" json:"blur" validate:"gte=0"`
	MaxZoom   int                `yaml:"maxZoom" json:"maxZoom" validate:"gte=0,lte=22"`
	Gradient  map[float64]string `yaml:"gradient" json:"-" validate:"required,min=1"`
}

// Terrain configures the raster-derived grid layers.
type Terrain struct {
	File       string      `yaml:"file" json:"file" validate:"required"`
	SquareSize float64     `yaml:"squareSize" json:"squareSize" validate:"gt=0"`
	Metrics    []Metric    `yaml:"metrics" json:"metrics" validate:"required,min=1,dive"`
	Popup      []popup.Row `yaml:"popup" json:"popup" validate:"dive"`
}

// Metric is one terrain grid, colored by a pre-rendered color attribute.
type Metric struct {
	ID             string `yaml:"id" json:"id" validate:"required"`
	Name           string `yaml:"name" json:"name" validate:"required"`
	ColorAttribute string `yaml:"colorAttribute" json:"colorAttribute" validate:"required"`
}

// Animation configures the year slider playback.
type Animation struct {
	Interval time.Duration `yaml:"interval" json:"interval" validate:"gt=0"`
}

// Metric returns the terrain metric with the given ID.
func (c *Config) Metric(id string) (Metric, bool) {
	for _, m := range c.Terrain.Metrics {
		if m.ID == id {
			return m, true
		}
	}
	return Metric{}, false
}

// Default returns the built-in catalogue.
func Default() (*Config, error) {
	return Parse(defaultYAML)
}

// Load reads a catalogue from path, or the built-in one if path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing map config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and cross-references between layers.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid map config: %w", err)
	}

	ids := map[string]bool{}
	for _, b := range c.Boundaries {
		if ids[b.ID] {
			return fmt.Errorf("invalid map config: duplicate layer id %q", b.ID)
		}
		ids[b.ID] = true
	}
	for _, m := range c.Terrain.Metrics {
		if ids[m.ID] {
			return fmt.Errorf("invalid map config: duplicate layer id %q", m.ID)
		}
		ids[m.ID] = true
	}

	if y := c.Ignitions.ClusterYear; y != 0 && (y < c.Ignitions.FirstYear || y > c.Ignitions.LastYear) {
		return fmt.Errorf("invalid map config: cluster year %d outside %d-%d",
			y, c.Ignitions.FirstYear, c.Ignitions.LastYear)
	}
	return nil
}
