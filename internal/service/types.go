// Package service contains the layer catalogue and data access of plat-fire.
package service

// LayerKind classifies overlay layers. The viewer picks a renderer per kind.
type LayerKind string

const (
	KindBoundary  LayerKind = "boundary"
	KindPlaces    LayerKind = "places"
	KindCluster   LayerKind = "cluster"
	KindIgnitions LayerKind = "ignitions"
	KindHeatmap   LayerKind = "heatmap"
	KindDensity   LayerKind = "density"
	KindTerrain   LayerKind = "terrain"
)

// BaseLayer is a tile layer of the base layer switcher.
type BaseLayer struct {
	ID          string `json:"id" doc:"Base layer identifier" example:"osm"`
	Name        string `json:"name" doc:"Display name" example:"Mapa Base (OSM)"`
	URL         string `json:"url" doc:"XYZ tile URL template"`
	Attribution string `json:"attribution" doc:"Attribution shown on the map"`
	Default     bool   `json:"default" doc:"Whether the layer is active on load"`
}

// Overlay describes one toggleable overlay of the layer control.
type Overlay struct {
	ID       string    `json:"id" doc:"Overlay identifier" example:"ignitions-2003"`
	Name     string    `json:"name" doc:"Display name" example:"Pontos de Ignição de 2003"`
	Kind     LayerKind `json:"kind" enum:"boundary,places,cluster,ignitions,heatmap,density,terrain" doc:"Renderer kind"`
	Year     int       `json:"year,omitempty" doc:"Ignition year for ignitions and cluster overlays"`
	Visible  bool      `json:"visible" doc:"Whether the overlay is shown on load"`
	Features int       `json:"features" doc:"Number of features or heat points"`
	Href     string    `json:"href" doc:"Data endpoint of the overlay" example:"/api/v1/layers/ignitions-2003"`
}

// HeatmapData is the payload of a heatmap overlay.
type HeatmapData struct {
	Points   [][3]float64      `json:"points" doc:"[lat, lng, intensity] triples"`
	Radius   int               `json:"radius" doc:"Point radius in pixels" example:"20"`
	Blur     int               `json:"blur" doc:"Blur radius in pixels" example:"15"`
	MaxZoom  int               `json:"maxZoom" doc:"Zoom at which points reach full intensity" example:"12"`
	Gradient map[string]string `json:"gradient" doc:"Offset to color stops"`
}

// SourceFile represents a source data file (GeoJSON, etc.).
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"ignicoes.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
}

// TileFile represents a PMTiles file.
type TileFile struct {
	Name    string `json:"name" doc:"PMTiles file name" example:"hipsometria.pmtiles"`
	Size    string `json:"size" doc:"Human-readable file size" example:"5.4 MB"`
	MinZoom int    `json:"minZoom" doc:"Shallowest zoom in the archive"`
	MaxZoom int    `json:"maxZoom" doc:"Deepest zoom in the archive"`
	Tiles   int    `json:"tiles" doc:"Number of tiles"`
}
