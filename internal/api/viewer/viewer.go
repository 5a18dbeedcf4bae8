// Package viewer streams the fire map viewer over Datastar SSE: the layer
// control, the year slider and its animation, catalogue events and PMTiles
// exports.
package viewer

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-fire/internal/humastar"
	"github.com/joeblew999/plat-fire/internal/mapconfig"
	"github.com/joeblew999/plat-fire/internal/service"
	"github.com/joeblew999/plat-fire/internal/templates"
	"github.com/joeblew999/plat-fire/internal/timeline"
)

// EventLayerAdded is the browser event dispatched for each overlay added
// after startup. Its detail is the overlay.
const EventLayerAdded = "layer-added"

// Handler serves the viewer SSE endpoints.
type Handler struct {
	humastar.Handler
	cfg    *mapconfig.Config
	layers *service.LayerService
	tiles  *service.TileService
	tiler  *service.TilerService
	log    logrus.FieldLogger
}

// New creates the viewer handler. tiles and tiler may be nil.
func New(r *templates.Renderer, cfg *mapconfig.Config, layers *service.LayerService,
	tiles *service.TileService, tiler *service.TilerService, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Handler: humastar.Handler{Renderer: r},
		cfg:     cfg,
		layers:  layers,
		tiles:   tiles,
		tiler:   tiler,
		log:     log.WithField("component", "viewer"),
	}
}

// RegisterRoutes registers the viewer routes. They share the "viewer" tag so
// the link set leaves them out.
func (h *Handler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("viewer")
	huma.Get(api, "/api/v1/viewer/layers", h.Layers, tags)
	huma.Get(api, "/api/v1/viewer/events", h.Events, tags)
	huma.Get(api, "/api/v1/viewer/play", h.Play, tags)
	huma.Get(api, "/api/v1/viewer/timeline/{action}", h.Step, tags)
	huma.Get(api, "/api/v1/viewer/tiles", h.Tiles, tags)
	huma.Post(api, "/api/v1/viewer/tiles/export", h.Export, tags)
}

// StepInput carries the slider position the browser is showing.
type StepInput struct {
	Year    int  `query:"year" doc:"Current year" example:"2003"`
	Playing bool `query:"playing" doc:"Whether the animation is running"`
}

func (h *Handler) state(in *StepInput) timeline.State {
	s := timeline.New(h.cfg.Ignitions.FirstYear, h.cfg.Ignitions.LastYear)
	if in.Year != 0 {
		s = s.Set(in.Year)
	}
	s.Playing = in.Playing
	return s
}

func (h *Handler) patchLayers(sse humastar.SSE) {
	c := h.layers.Catalog()
	sse.Patch(h.Render("layer-control", map[string]any{
		"BaseMaps": c.BaseMaps(),
		"Overlays": c.Overlays(),
	}), "#layer-list")
}

func (h *Handler) patchTiles(sse humastar.SSE) {
	files := []service.TileFile{}
	if h.tiles != nil {
		if list, err := h.tiles.List(); err == nil {
			files = list
		} else {
			h.log.WithError(err).Warn("listing tiles failed")
		}
	}
	sse.Patch(h.Render("tile-list", files), "#tile-list")
}

// Layers renders the layer control.
func (h *Handler) Layers(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(h.patchLayers), nil
}

// patchOverlay morphs the entry of an overlay already listed, or appends a
// new one. Other entries keep whatever the user toggled.
func (h *Handler) patchOverlay(sse humastar.SSE, o service.Overlay, existed bool) {
	html := h.Render("overlay-item", o)
	if existed {
		sse.PatchElements(html)
		return
	}
	sse.Append(html, "#overlay-list")
}

// Events streams catalogue changes until the browser disconnects. Each added
// overlay is patched into the layer control and dispatched as EventLayerAdded.
func (h *Handler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	bus := h.layers.Bus()
	if bus == nil {
		return nil, huma.Error503ServiceUnavailable("layer events not available")
	}
	return h.Stream(func(sse humastar.SSE) {
		listed := map[string]bool{}
		for _, o := range h.layers.Catalog().Overlays() {
			listed[o.ID] = true
		}
		ch := bus.Subscribe()
		defer bus.Unsubscribe(ch)

		for {
			select {
			case <-sse.Context().Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				h.log.WithFields(logrus.Fields{"action": e.Action, "layer": e.Overlay.ID}).Debug("layer event")
				o := e.Overlay
				if cur, _, ok := h.layers.Get(o.ID); ok {
					o = cur
				}
				h.patchOverlay(sse, o, listed[o.ID])
				listed[o.ID] = true
				if err := sse.DispatchCustomEvent(EventLayerAdded, o); err != nil {
					return
				}
			}
		}
	}), nil
}

// Play runs the slider animation from the given year. Every step is sent as
// signals. Pausing closes the request, which stops the animation.
func (h *Handler) Play(ctx context.Context, input *StepInput) (*huma.StreamResponse, error) {
	s := h.state(input)
	if s.Year == s.Last {
		s = s.Reset()
	}
	interval := h.cfg.Animation.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return h.Stream(func(sse humastar.SSE) {
		final := timeline.Play(sse.Context(), s, interval, func(st timeline.State) {
			sse.Signals(st)
		})
		h.log.WithFields(logrus.Fields{"year": final.Year, "finished": final.Finished}).Debug("animation stopped")
	}), nil
}

// Step applies one slider action and sends the new state.
func (h *Handler) Step(ctx context.Context, input *struct {
	Action string `path:"action" doc:"Slider action: next, prev, reset or toggle"`
	StepInput
}) (*huma.StreamResponse, error) {
	next, ok := h.state(&input.StepInput).Apply(input.Action)
	if !ok {
		return nil, huma.Error400BadRequest("unknown timeline action " + input.Action)
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(next)
	}), nil
}

// Tiles renders the PMTiles list.
func (h *Handler) Tiles(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(h.patchTiles), nil
}

// Export tiles the overlay named by the "layer" signal, streaming progress
// and finally the refreshed tile list.
func (h *Handler) Export(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	if h.tiler == nil {
		return nil, huma.Error503ServiceUnavailable("tiler not available")
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	opts := service.ExportOptions{
		LayerID:    signals.String("layer"),
		OutputName: signals.String("output"),
		MinZoom:    signals.Int("minzoom"),
		MaxZoom:    signals.Int("maxzoom"),
	}
	if opts.LayerID == "" {
		return nil, huma.Error400BadRequest("layer is required")
	}

	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{"progress": 0, "status": "Exporting " + opts.LayerID + "..."})
		path, err := h.tiler.Export(sse.Context(), opts, func(progress int, status string) {
			sse.Signals(map[string]any{"progress": progress, "status": status})
		})
		if err != nil {
			h.log.WithError(err).WithField("layer", opts.LayerID).Warn("tile export failed")
			sse.Error(err.Error())
			return
		}
		h.log.WithFields(logrus.Fields{"layer": opts.LayerID, "path": path}).Info("tiles exported")
		sse.Success("Exported " + opts.LayerID)
		h.patchTiles(sse)
	}), nil
}
