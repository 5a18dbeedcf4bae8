package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir string
	dbOK    bool
	svc     *Services
}

func NewInfoHandler(dataDir string, dbOK bool, svc *Services) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, svc: svc}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name      string   `json:"name" doc:"Service name"`
	Title     string   `json:"title" doc:"Map title"`
	Version   string   `json:"version" doc:"Service version"`
	DataDir   string   `json:"data_dir" doc:"Data directory path"`
	DB        bool     `json:"db" doc:"Whether database is available"`
	Overlays  int      `json:"overlays" doc:"Overlays in the catalogue"`
	Ignitions int      `json:"ignitions" doc:"Indexed ignition points"`
	Features  []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     "plat-fire",
		Version:  "0.1.0",
		DataDir:  h.dataDir,
		DB:       h.dbOK,
		Features: []string{"terrain", "ignitions", "heatmap", "density", "timeline", "pmtiles"},
	}
	if h.dbOK {
		body.Features = append(body.Features, "duckdb")
	}
	if h.svc != nil {
		if h.svc.Config != nil {
			body.Title = h.svc.Config.Title
		}
		if h.svc.Layers != nil {
			body.Overlays = len(h.svc.Layers.List())
		}
		if h.svc.Ignitions != nil {
			body.Ignitions = h.svc.Ignitions.Len()
		}
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
