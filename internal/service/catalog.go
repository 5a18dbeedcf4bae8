package service

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-fire/internal/color"
	"github.com/joeblew999/plat-fire/internal/ignition"
	"github.com/joeblew999/plat-fire/internal/mapconfig"
	"github.com/joeblew999/plat-fire/internal/popup"
	"github.com/joeblew999/plat-fire/internal/raster"
)

// Catalog is an immutable set of base layers and overlays with their
// payloads. Overlays keep registration order, which is the order of the
// layer control.
type Catalog struct {
	base     []BaseLayer
	overlays []Overlay
	payload  map[string]any
}

// BaseMaps returns the base layers.
func (c *Catalog) BaseMaps() []BaseLayer {
	return append([]BaseLayer(nil), c.base...)
}

// Overlays returns the overlays in layer control order.
func (c *Catalog) Overlays() []Overlay {
	return append([]Overlay(nil), c.overlays...)
}

// Layer returns an overlay and its payload: a *geojson.FeatureCollection, or
// a HeatmapData for heatmap overlays.
func (c *Catalog) Layer(id string) (Overlay, any, bool) {
	for _, o := range c.overlays {
		if o.ID == id {
			return o, c.payload[id], true
		}
	}
	return Overlay{}, nil, false
}

// WithOverlay returns a copy of c with o appended. An overlay with the same
// ID is replaced in place.
func (c *Catalog) WithOverlay(o Overlay, payload any) *Catalog {
	next := &Catalog{
		base:     c.base,
		overlays: make([]Overlay, 0, len(c.overlays)+1),
		payload:  make(map[string]any, len(c.payload)+1),
	}
	replaced := false
	for _, cur := range c.overlays {
		if cur.ID == o.ID {
			next.overlays = append(next.overlays, o)
			replaced = true
			continue
		}
		next.overlays = append(next.overlays, cur)
	}
	if !replaced {
		next.overlays = append(next.overlays, o)
	}
	for k, v := range c.payload {
		next.payload[k] = v
	}
	next.payload[o.ID] = payload
	return next
}

// Inputs are the data sets a catalogue is built from. Nil data sets leave
// their overlays out.
type Inputs struct {
	Config     *mapconfig.Config
	Terrain    *geojson.FeatureCollection
	Ignitions  *ignition.Index
	Boundaries map[string]*geojson.FeatureCollection // by boundary ID
	Log        logrus.FieldLogger
}

// LayerHref returns the data endpoint of an overlay.
func LayerHref(id string) string {
	return "/api/v1/layers/" + id
}

// IgnitionLayerID returns the overlay ID of one ignition year.
func IgnitionLayerID(year int) string {
	return fmt.Sprintf("ignitions-%d", year)
}

// BuildCatalog builds the catalogue once at startup. Overlay order:
// boundaries, places, cluster, ignition years, heatmap, density, terrain.
func BuildCatalog(in Inputs) (*Catalog, error) {
	cfg := in.Config
	log := in.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	c := &Catalog{payload: map[string]any{}}
	for _, b := range cfg.BaseMaps {
		c.base = append(c.base, BaseLayer{
			ID: b.ID, Name: b.Name, URL: b.URL, Attribution: b.Attribution, Default: b.Default,
		})
	}
	add := func(o Overlay, payload any) {
		o.Href = LayerHref(o.ID)
		c.overlays = append(c.overlays, o)
		c.payload[o.ID] = payload
	}

	for _, b := range cfg.Boundaries {
		fc, ok := in.Boundaries[b.ID]
		if !ok {
			continue
		}
		add(BoundaryOverlay(b, fc))
	}

	if len(cfg.Places.Items) > 0 {
		add(Overlay{ID: cfg.Places.ID, Name: cfg.Places.Name, Kind: KindPlaces, Features: len(cfg.Places.Items)},
			placesLayer(cfg.Places))
	}

	if ix := in.Ignitions; ix != nil {
		ic := cfg.Ignitions
		if ic.ClusterYear != 0 {
			fc := ix.ClusterLayer()
			add(Overlay{
				ID:       fmt.Sprintf("cluster-%d", ic.ClusterYear),
				Name:     fmt.Sprintf("🔥 Cluster de Ignições %d", ic.ClusterYear),
				Kind:     KindCluster,
				Year:     ic.ClusterYear,
				Features: len(fc.Features),
			}, fc)
		}
		for _, y := range ix.Years() {
			fc := ix.YearLayer(y)
			add(Overlay{
				ID:       IgnitionLayerID(y),
				Name:     fmt.Sprintf("Pontos de Ignição de %d", y),
				Kind:     KindIgnitions,
				Year:     y,
				Features: len(fc.Features),
			}, fc)
		}

		gradient, err := color.ParseGradient(ic.Heatmap.Gradient)
		if err != nil {
			return nil, fmt.Errorf("heatmap gradient: %w", err)
		}
		heat := ix.Heatmap()
		points := make([][3]float64, len(heat))
		for i, p := range heat {
			points[i] = p
		}
		add(Overlay{ID: "heatmap", Name: "Heatmap de Ignição", Kind: KindHeatmap, Features: len(points)},
			HeatmapData{
				Points:   points,
				Radius:   ic.Heatmap.Radius,
				Blur:     ic.Heatmap.Blur,
				MaxZoom:  ic.Heatmap.MaxZoom,
				Gradient: gradient.Map(),
			})

		density, err := ix.DensityLayer(ic.DensitySquareSize, gradient)
		if err != nil {
			return nil, fmt.Errorf("ignition density: %w", err)
		}
		add(Overlay{ID: "density", Name: "Densidade de Ignições", Kind: KindDensity, Features: len(density.Features)},
			density)
	}

	if in.Terrain != nil {
		tc := cfg.Terrain
		points := raster.FromFeatureCollection(in.Terrain)
		popups := popup.New(tc.Popup, cfg.NotAvailable)
		r := raster.New(color.NewResolver(log), popups.Build)
		for _, m := range tc.Metrics {
			res, err := r.Rasterize(points, m.ColorAttribute, tc.SquareSize)
			if err != nil {
				return nil, fmt.Errorf("rasterizing %s: %w", m.ID, err)
			}
			log.WithFields(logrus.Fields{
				"metric":  m.ID,
				"cells":   len(res.Cells),
				"dropped": res.Dropped,
				"skipped": res.Skipped,
			}).Debug("terrain grid built")
			add(Overlay{ID: m.ID, Name: m.Name, Kind: KindTerrain, Features: len(res.Cells)},
				res.FeatureCollection())
		}
	}

	return c, nil
}

// BoundaryOverlay styles a boundary collection as an unfilled outline.
func BoundaryOverlay(b mapconfig.Boundary, fc *geojson.FeatureCollection) (Overlay, *geojson.FeatureCollection) {
	style := map[string]any{
		"color":       b.Color,
		"weight":      b.Weight,
		"fillColor":   "transparent",
		"fillOpacity": 0,
	}
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		clone := geojson.NewFeature(f.Geometry)
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		clone.Properties["style"] = style
		out.Append(clone)
	}
	return Overlay{
		ID:       b.ID,
		Name:     b.Name,
		Kind:     KindBoundary,
		Visible:  b.Visible,
		Features: len(out.Features),
		Href:     LayerHref(b.ID),
	}, out
}

func placesLayer(p mapconfig.Places) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, item := range p.Items {
		f := geojson.NewFeature(orb.Point{item.Lng, item.Lat})
		f.Properties["name"] = item.Name
		f.Properties["popup"] = item.Popup
		f.Properties["maxWidth"] = item.MaxWidth
		fc.Append(f)
	}
	return fc
}
