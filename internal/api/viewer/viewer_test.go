package viewer

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-fire/internal/mapconfig"
	"github.com/joeblew999/plat-fire/internal/service"
	"github.com/joeblew999/plat-fire/internal/templates"
	"github.com/joeblew999/plat-fire/internal/tiler/gotiler"
)

type fixture struct {
	srv    *httptest.Server
	layers *service.LayerService
	hook   *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg, err := mapconfig.Default()
	require.NoError(t, err)
	cfg.Animation.Interval = time.Millisecond

	log, hook := test.NewNullLogger()
	c, err := service.BuildCatalog(service.Inputs{Config: cfg, Log: log})
	require.NoError(t, err)
	layers := service.NewLayerService(c, service.NewEventBus())

	renderer, err := templates.New()
	require.NoError(t, err)

	dir := t.TempDir()
	h := New(renderer, cfg, layers, service.NewTileService(dir),
		service.NewTilerService(dir, layers, gotiler.New()), log)

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("viewer", "1.0.0"))
	h.RegisterRoutes(api)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, layers: layers, hook: hook}
}

func (f *fixture) get(t *testing.T, path string) string {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestLayers(t *testing.T) {
	f := newFixture(t)

	body := f.get(t, "/api/v1/viewer/layers")
	assert.Contains(t, body, "event: datastar-patch-elements")
	assert.Contains(t, body, "selector #layer-list")
	assert.Contains(t, body, `id="layer-lugares"`)
	assert.Contains(t, body, `value="osm"`)
}

func TestStep(t *testing.T) {
	f := newFixture(t)

	body := f.get(t, "/api/v1/viewer/timeline/next?year=2010")
	assert.Contains(t, body, "event: datastar-patch-signals")
	assert.Contains(t, body, `"year":2011`)

	body = f.get(t, "/api/v1/viewer/timeline/toggle?year=2010&playing=true")
	assert.Contains(t, body, `"playing":false`)

	body = f.get(t, "/api/v1/viewer/timeline/next?year=2023")
	assert.Contains(t, body, `"finished":true`)

	resp, err := http.Get(f.srv.URL + "/api/v1/viewer/timeline/jump?year=2010")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlay(t *testing.T) {
	f := newFixture(t)

	body := f.get(t, "/api/v1/viewer/play?year=2021")
	events := strings.Count(body, "event: datastar-patch-signals")
	// 2021 on start, then 2022, 2023 and the finishing step.
	assert.Equal(t, 4, events)
	assert.Contains(t, body, `"year":2022`)
	assert.Contains(t, body, `"playing":false,"finished":true`)
}

func TestEvents(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/v1/viewer/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return f.layers.Bus().Len() == 1 }, time.Second, 5*time.Millisecond)

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{-8.4, 41.8}))
	santa := service.Overlay{ID: "santa-comba", Name: "Santa Comba", Kind: service.KindBoundary, Visible: true}
	require.NoError(t, f.layers.Add(santa, fc))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	next := func() string {
		var seen []string
		for scanner.Scan() {
			line := scanner.Text()
			seen = append(seen, line)
			if strings.Contains(line, EventLayerAdded) {
				break
			}
		}
		return strings.Join(seen, "\n")
	}

	out := next()
	assert.Contains(t, out, `<label id="layer-santa-comba">`)
	assert.Contains(t, out, "selector #overlay-list")
	assert.Contains(t, out, "mode append")
	assert.NotContains(t, out, "layer-lugares", "other entries are left alone")
	assert.Contains(t, out, "layer-added")
	assert.Contains(t, out, `santa-comba`)

	// A replaced overlay is morphed in place by its id.
	require.NoError(t, f.layers.Add(santa, fc))
	out = next()
	assert.Contains(t, out, `<label id="layer-santa-comba">`)
	assert.NotContains(t, out, "selector #overlay-list")

	cancel()
	assert.Eventually(t, func() bool { return f.layers.Bus().Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestExport(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/api/v1/viewer/tiles/export", "application/json",
		strings.NewReader(`{"layer":"lugares","minzoom":0,"maxzoom":3}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, `"progress":10`)
	assert.Contains(t, body, `"progress":100`)
	assert.Contains(t, body, "selector #tile-list")
	assert.Contains(t, body, `href="/tiles/lugares.pmtiles"`)

	var info bool
	for _, e := range f.hook.AllEntries() {
		if e.Message == "tiles exported" {
			info = true
		}
	}
	assert.True(t, info)

	body = f.get(t, "/api/v1/viewer/tiles")
	assert.Contains(t, body, "lugares.pmtiles")
}

func TestExportErrors(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/api/v1/viewer/tiles/export", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(f.srv.URL+"/api/v1/viewer/tiles/export", "application/json",
		strings.NewReader(`{"layer":"nope"}`))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(raw), `layer \"nope\" not found`)
}
