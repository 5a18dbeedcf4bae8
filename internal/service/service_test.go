package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-fire/internal/ignition"
	"github.com/joeblew999/plat-fire/internal/mapconfig"
	"github.com/joeblew999/plat-fire/internal/tiler/gotiler"
)

func terrainFC() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, c := range []string{"rgb(56, 168, 0)", "rgb(255,0,0)", "bogus"} {
		f := geojson.NewFeature(orb.Point{-8.5 + float64(i)*0.001, 41.9})
		f.Properties["altitude"] = 100.0 + float64(i)
		for _, attr := range []string{"cor_mdt", "cor_slope", "cor_aspect", "cor_copas", "cor_mod"} {
			f.Properties[attr] = c
		}
		fc.Append(f)
	}
	return fc
}

func ignitionFC() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, y := range []float64{2003, 2003, 2023} {
		f := geojson.NewFeature(orb.Point{-8.4, 41.8})
		f.Properties["anos"] = y
		fc.Append(f)
	}
	return fc
}

func boundaryFC() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	b := orb.Bound{Min: orb.Point{-9, 41.5}, Max: orb.Point{-8, 42.2}}
	f := geojson.NewFeature(b.ToPolygon())
	f.Properties["name"] = "Minho"
	fc.Append(f)
	return fc
}

func buildTestCatalog(t *testing.T) (*Catalog, *mapconfig.Config) {
	t.Helper()
	cfg, err := mapconfig.Default()
	require.NoError(t, err)
	log, _ := test.NewNullLogger()

	c, err := BuildCatalog(Inputs{
		Config:     cfg,
		Terrain:    terrainFC(),
		Ignitions:  ignition.New(ignitionFC(), cfg.Ignitions, cfg.NotAvailable),
		Boundaries: map[string]*geojson.FeatureCollection{"minho": boundaryFC()},
		Log:        log,
	})
	require.NoError(t, err)
	return c, cfg
}

func TestBuildCatalog(t *testing.T) {
	c, _ := buildTestCatalog(t)

	assert.Len(t, c.BaseMaps(), 3)
	assert.True(t, c.BaseMaps()[0].Default)

	overlays := c.Overlays()
	// minho, lugares, cluster, 21 years, heatmap, density, 5 terrain metrics.
	require.Len(t, overlays, 31)
	assert.Equal(t, "minho", overlays[0].ID)
	assert.True(t, overlays[0].Visible)
	assert.Equal(t, "lugares", overlays[1].ID)
	assert.Equal(t, "cluster-2023", overlays[2].ID)
	assert.Equal(t, 1, overlays[2].Features)
	assert.Equal(t, IgnitionLayerID(2003), overlays[3].ID)
	assert.Equal(t, 2, overlays[3].Features)
	assert.Equal(t, "heatmap", overlays[24].ID)
	assert.Equal(t, 3, overlays[24].Features)
	assert.Equal(t, "density", overlays[25].ID)
	assert.Equal(t, "hipsometria", overlays[26].ID)
	assert.Equal(t, 3, overlays[26].Features)

	for _, o := range overlays {
		assert.Equal(t, LayerHref(o.ID), o.Href)
	}
}

func TestCatalogPayloads(t *testing.T) {
	c, _ := buildTestCatalog(t)

	_, payload, ok := c.Layer("heatmap")
	require.True(t, ok)
	heat := payload.(HeatmapData)
	assert.Equal(t, 20, heat.Radius)
	assert.Equal(t, [3]float64{41.8, -8.4, 0.5}, heat.Points[0])
	assert.Equal(t, "#ff0000", heat.Gradient["1"])

	_, payload, ok = c.Layer("declives")
	require.True(t, ok)
	fc := payload.(*geojson.FeatureCollection)
	require.Len(t, fc.Features, 3)
	style := fc.Features[0].Properties["style"].(map[string]any)
	assert.Equal(t, "rgb(56, 168, 0)", style["fillColor"])
	style = fc.Features[2].Properties["style"].(map[string]any)
	assert.Equal(t, "rgb(255,255,255)", style["fillColor"])

	_, payload, ok = c.Layer("minho")
	require.True(t, ok)
	style = payload.(*geojson.FeatureCollection).Features[0].Properties["style"].(map[string]any)
	assert.Equal(t, "#000000", style["color"])
	assert.Equal(t, "transparent", style["fillColor"])

	_, _, ok = c.Layer("concelhos")
	assert.False(t, ok, "boundary without data is absent")
}

func TestBuildCatalogWithoutData(t *testing.T) {
	cfg, err := mapconfig.Default()
	require.NoError(t, err)

	c, err := BuildCatalog(Inputs{Config: cfg})
	require.NoError(t, err)
	require.Len(t, c.Overlays(), 1)
	assert.Equal(t, KindPlaces, c.Overlays()[0].Kind)
}

func TestWithOverlayLeavesOriginal(t *testing.T) {
	c, cfg := buildTestCatalog(t)
	before := len(c.Overlays())

	o, payload := BoundaryOverlay(cfg.Boundaries[3], boundaryFC())
	next := c.WithOverlay(o, payload)

	assert.Len(t, c.Overlays(), before)
	_, _, ok := c.Layer("santa-comba")
	assert.False(t, ok)

	require.Len(t, next.Overlays(), before+1)
	assert.Equal(t, "santa-comba", next.Overlays()[before].ID)

	// Same ID replaces in place.
	again := next.WithOverlay(Overlay{ID: "santa-comba", Name: "again"}, nil)
	assert.Len(t, again.Overlays(), before+1)
	assert.Equal(t, "again", again.Overlays()[before].Name)
}

func TestLayerServiceAdd(t *testing.T) {
	c, cfg := buildTestCatalog(t)
	bus := NewEventBus()
	s := NewLayerService(c, bus)
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	snapshot := s.Catalog()
	o, payload := BoundaryOverlay(cfg.Boundaries[3], boundaryFC())
	require.NoError(t, s.Add(o, payload))

	select {
	case e := <-ch:
		assert.Equal(t, ActionAdded, e.Action)
		assert.Equal(t, "santa-comba", e.Overlay.ID)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	_, _, ok := s.Get("santa-comba")
	assert.True(t, ok)
	_, _, ok = snapshot.Layer("santa-comba")
	assert.False(t, ok, "earlier snapshots are unchanged")

	assert.Error(t, s.Add(Overlay{}, nil))
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	assert.Equal(t, 0, bus.Publish(Event{Action: ActionAdded}))

	a := bus.Subscribe()
	b := bus.Subscribe()
	assert.Equal(t, 2, bus.Len())
	assert.Equal(t, 2, bus.Publish(Event{Action: ActionAdded}))
	<-a

	bus.Unsubscribe(a)
	bus.Unsubscribe(a)
	assert.Equal(t, 1, bus.Len())
	_, open := <-a
	assert.False(t, open)

	// A full subscriber misses events instead of blocking the publisher.
	for i := 0; i < 32; i++ {
		bus.Publish(Event{Action: ActionAdded})
	}
	assert.Len(t, b, cap(b))
	bus.Unsubscribe(b)
}

func TestSourceService(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sources")
	require.NoError(t, os.MkdirAll(src, 0755))
	data, err := boundaryFC().MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(src, "minho.geojson"), data, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "broken.json"), []byte("{"), 0644))

	s := NewSourceService(dir)
	files, err := s.List()
	require.NoError(t, err)
	require.Len(t, files, 2)

	fc, err := s.Load("minho.geojson")
	require.NoError(t, err)
	assert.Len(t, fc.Features, 1)

	_, err = s.Load("broken.json")
	assert.Error(t, err)
	_, err = s.Load("../secret.geojson")
	assert.Error(t, err)
	_, err = s.Load("missing.geojson")
	assert.True(t, os.IsNotExist(err))

	empty, err := NewSourceService(filepath.Join(dir, "nope")).List()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.0 KB", formatSize(1024))
	assert.Equal(t, "1.5 MB", formatSize(1536*1024))
}

func TestExportAndList(t *testing.T) {
	c, _ := buildTestCatalog(t)
	dir := t.TempDir()
	layers := NewLayerService(c, nil)
	ts := NewTilerService(dir, layers, gotiler.New())

	var steps []int
	path, err := ts.Export(context.Background(), ExportOptions{LayerID: "minho", MaxZoom: 4},
		func(p int, _ string) { steps = append(steps, p) })
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tiles", "minho.pmtiles"), path)
	assert.Equal(t, []int{10, 100}, steps)

	files, err := NewTileService(dir).List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "minho.pmtiles", files[0].Name)
	assert.Equal(t, 4, files[0].MaxZoom)

	_, err = ts.Export(context.Background(), ExportOptions{LayerID: "heatmap"}, nil)
	assert.Error(t, err)
	_, err = ts.Export(context.Background(), ExportOptions{LayerID: "nope"}, nil)
	assert.Error(t, err)
	_, err = ts.Export(context.Background(), ExportOptions{LayerID: "minho", OutputName: "../x"}, nil)
	assert.Error(t, err)
}
