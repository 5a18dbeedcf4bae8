// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-fire/internal/humastar"
	"github.com/joeblew999/plat-fire/internal/ignition"
	"github.com/joeblew999/plat-fire/internal/mapconfig"
	"github.com/joeblew999/plat-fire/internal/service"
	"github.com/joeblew999/plat-fire/internal/timeline"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Config    *mapconfig.Config
	Layers    *service.LayerService
	Ignitions *ignition.Index
	Sources   *service.SourceService
	Tiles     *service.TileService
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Overlay ID" example:"ignitions-2003"`
}

type PageInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Index of the first overlay"`
	Limit  int `query:"limit" minimum:"0" default:"0" doc:"Page size, 0 for all overlays"`
}

type LayersBody struct {
	BaseMaps []service.BaseLayer `json:"baseMaps" doc:"Base layers"`
	Total    int                 `json:"total" doc:"Total number of overlays"`
	Offset   int                 `json:"offset" doc:"Current offset"`
	Limit    int                 `json:"limit" doc:"Page size"`
	Data     []service.Overlay   `json:"data" doc:"Overlays on this page"`
}

func layersBody(base []service.BaseLayer, p humastar.PageBody[service.Overlay]) LayersBody {
	return LayersBody{BaseMaps: base, Total: p.Total, Offset: p.Offset, Limit: p.Limit, Data: p.Data}
}

// PaginationLinks implements humastar.Pager.
func (b LayersBody) PaginationLinks(basePath string) []string {
	return humastar.PageBody[service.Overlay]{Total: b.Total, Offset: b.Offset, Limit: b.Limit}.PaginationLinks(basePath)
}

type LayersOutput struct {
	Body LayersBody
}

type PayloadOutput struct {
	Body any
}

type YearInput struct {
	Year int `query:"year" doc:"Ignition year" example:"2003"`
}

type StatsBody struct {
	Total   int            `json:"total" doc:"Indexed ignitions"`
	Skipped int            `json:"skipped" doc:"Features without a point or a readable year"`
	Years   map[int]int    `json:"years" doc:"Ignitions per year in range"`
	Range   timeline.State `json:"range" doc:"Selectable year range"`
}

type TimelineInput struct {
	Action   string `path:"action" doc:"Slider action: next, prev, reset or toggle"`
	Year     int    `query:"year" doc:"Current year" example:"2003"`
	Playing  bool   `query:"playing" doc:"Whether the animation is running"`
	Finished bool   `query:"finished" doc:"Whether the last year was passed"`
}

// TimelineBody is a slider state with the actions valid from it.
type TimelineBody struct {
	First    int  `json:"first" doc:"First selectable year" example:"2003"`
	Last     int  `json:"last" doc:"Last selectable year" example:"2023"`
	Year     int  `json:"year" doc:"Selected year" example:"2003"`
	Playing  bool `json:"playing" doc:"Whether the animation is running"`
	Finished bool `json:"finished" doc:"Whether the last year was passed (reset is offered)"`
}

func timelineBody(s timeline.State) TimelineBody {
	return TimelineBody{First: s.First, Last: s.Last, Year: s.Year, Playing: s.Playing, Finished: s.Finished}
}

// Actions offers the slider steps as POST links.
func (b TimelineBody) Actions() []humastar.Action {
	href := func(action string) string {
		return fmt.Sprintf("/api/v1/timeline/%s?year=%d&playing=%t&finished=%t", action, b.Year, b.Playing, b.Finished)
	}
	var actions []humastar.Action
	if b.Year > b.First {
		actions = append(actions, humastar.Action{Rel: "prev", Href: href("prev"), Method: http.MethodPost, Title: "Previous year"})
	}
	if b.Year < b.Last {
		actions = append(actions, humastar.Action{Rel: "next", Href: href("next"), Method: http.MethodPost, Title: "Next year"})
	}
	title := "Play"
	if b.Playing {
		title = "Pause"
	}
	actions = append(actions, humastar.Action{Rel: "toggle", Href: href("toggle"), Method: http.MethodPost, Title: title})
	if b.Finished {
		actions = append(actions, humastar.Action{Rel: "reset", Href: href("reset"), Method: http.MethodPost, Title: "Reset"})
	}
	return actions
}

type TimelineOutput struct {
	Body TimelineBody
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers the catalogue routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
}

// RegisterTerrain registers the terrain grid routes.
func (h *APIHandler) RegisterTerrain(api huma.API) {
	huma.Get(api, "/api/v1/terrain/{metric}", h.GetTerrain, huma.OperationTags("terrain"))
}

// RegisterIgnitions registers the ignition routes.
func (h *APIHandler) RegisterIgnitions(api huma.API) {
	huma.Get(api, "/api/v1/ignitions", h.GetIgnitions, huma.OperationTags("ignitions"))
	huma.Get(api, "/api/v1/ignitions/heatmap", h.GetHeatmap, huma.OperationTags("ignitions"))
	huma.Get(api, "/api/v1/ignitions/density", h.GetDensity, huma.OperationTags("ignitions"))
	huma.Get(api, "/api/v1/ignitions/stats", h.GetStats, huma.OperationTags("ignitions"))
}

// RegisterTimeline registers the stateless slider routes.
func (h *APIHandler) RegisterTimeline(api huma.API) {
	huma.Get(api, "/api/v1/timeline", h.GetTimeline, huma.OperationTags("timeline"))
	huma.Post(api, "/api/v1/timeline/{action}", h.StepTimeline, huma.OperationTags("timeline"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// RegisterTiles registers tile listing routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *PageInput) (*LayersOutput, error) {
	if h.svc == nil || h.svc.Layers == nil {
		return &LayersOutput{Body: layersBody([]service.BaseLayer{}, humastar.Page([]service.Overlay{}, 0, 0))}, nil
	}
	c := h.svc.Layers.Catalog()
	return &LayersOutput{Body: layersBody(c.BaseMaps(), humastar.Page(c.Overlays(), input.Offset, input.Limit))}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*PayloadOutput, error) {
	if h.svc == nil || h.svc.Layers == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	_, payload, ok := h.svc.Layers.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &PayloadOutput{Body: payload}, nil
}

func (h *APIHandler) GetTerrain(ctx context.Context, input *struct {
	Metric string `path:"metric" doc:"Terrain metric" example:"hipsometria"`
}) (*PayloadOutput, error) {
	if h.svc == nil || h.svc.Config == nil || h.svc.Layers == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	if _, ok := h.svc.Config.Metric(input.Metric); !ok {
		return nil, huma.Error404NotFound("unknown terrain metric " + input.Metric)
	}
	o, payload, ok := h.svc.Layers.Get(input.Metric)
	if !ok || o.Kind != service.KindTerrain {
		return nil, huma.Error404NotFound("terrain data not loaded")
	}
	return &PayloadOutput{Body: payload}, nil
}

func (h *APIHandler) ignitions() (*ignition.Index, error) {
	if h.svc == nil || h.svc.Ignitions == nil {
		return nil, huma.Error503ServiceUnavailable("ignition data not loaded")
	}
	return h.svc.Ignitions, nil
}

func (h *APIHandler) GetIgnitions(ctx context.Context, input *YearInput) (*PayloadOutput, error) {
	ix, err := h.ignitions()
	if err != nil {
		return nil, err
	}
	if !ix.InRange(input.Year) {
		return nil, huma.Error400BadRequest(fmt.Sprintf("year %d is outside the configured range", input.Year))
	}
	return &PayloadOutput{Body: ix.YearLayer(input.Year)}, nil
}

func (h *APIHandler) GetHeatmap(ctx context.Context, input *struct{}) (*PayloadOutput, error) {
	return h.kindPayload(service.KindHeatmap)
}

func (h *APIHandler) GetDensity(ctx context.Context, input *struct{}) (*PayloadOutput, error) {
	return h.kindPayload(service.KindDensity)
}

// kindPayload returns the payload of the first overlay of kind.
func (h *APIHandler) kindPayload(kind service.LayerKind) (*PayloadOutput, error) {
	if h.svc == nil || h.svc.Layers == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	for _, o := range h.svc.Layers.List() {
		if o.Kind == kind {
			_, payload, _ := h.svc.Layers.Get(o.ID)
			return &PayloadOutput{Body: payload}, nil
		}
	}
	return nil, huma.Error404NotFound(string(kind) + " layer not loaded")
}

func (h *APIHandler) GetStats(ctx context.Context, input *struct{}) (*struct{ Body StatsBody }, error) {
	ix, err := h.ignitions()
	if err != nil {
		return nil, err
	}
	return &struct{ Body StatsBody }{Body: StatsBody{
		Total:   ix.Len(),
		Skipped: ix.Skipped(),
		Years:   ix.Counts(),
		Range:   h.initialState(),
	}}, nil
}

func (h *APIHandler) initialState() timeline.State {
	ic := h.svc.Config.Ignitions
	return timeline.New(ic.FirstYear, ic.LastYear)
}

func (h *APIHandler) GetTimeline(ctx context.Context, input *struct{}) (*TimelineOutput, error) {
	if h.svc == nil || h.svc.Config == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	return &TimelineOutput{Body: timelineBody(h.initialState())}, nil
}

func (h *APIHandler) StepTimeline(ctx context.Context, input *TimelineInput) (*TimelineOutput, error) {
	if h.svc == nil || h.svc.Config == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	s := h.initialState()
	if input.Year != 0 {
		s = s.Set(input.Year)
	}
	s.Playing = input.Playing
	s.Finished = input.Finished
	next, ok := s.Apply(input.Action)
	if !ok {
		return nil, huma.Error400BadRequest("unknown timeline action " + input.Action)
	}
	return &TimelineOutput{Body: timelineBody(next)}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Sources.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc == nil || h.svc.Tiles == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tiles.List()
	if err != nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}
