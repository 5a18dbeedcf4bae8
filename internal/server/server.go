// Package server assembles the fire map HTTP server: the Huma REST API, the
// Datastar viewer and the static source and tile files.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-fire/internal/api"
	"github.com/joeblew999/plat-fire/internal/api/viewer"
	"github.com/joeblew999/plat-fire/internal/boundary"
	"github.com/joeblew999/plat-fire/internal/db"
	"github.com/joeblew999/plat-fire/internal/humastar"
	"github.com/joeblew999/plat-fire/internal/ignition"
	"github.com/joeblew999/plat-fire/internal/mapconfig"
	"github.com/joeblew999/plat-fire/internal/service"
	"github.com/joeblew999/plat-fire/internal/templates"
	"github.com/joeblew999/plat-fire/internal/tiler/gotiler"
)

// Config holds the server configuration.
type Config struct {
	Host      string
	Port      string
	DataDir   string
	MapConfig string // YAML catalogue, empty for the built-in one
	WebDir    string // optional directory of templates overriding the embedded ones
	Log       logrus.FieldLogger
}

// Server is the fire map HTTP server.
type Server struct {
	config     Config
	log        logrus.FieldLogger
	mux        *http.ServeMux
	humaAPI    huma.API
	db         *sql.DB
	mapCfg     *mapconfig.Config
	services   *api.Services
	renderer   *templates.Renderer
	boundaries *boundary.Loader
}

// New loads the data sets, builds the catalogue and registers every route.
// Missing data files leave their overlays out; an invalid catalogue is an
// error.
func New(cfg Config) (*Server, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	mapCfg, err := mapconfig.Load(cfg.MapConfig)
	if err != nil {
		return nil, err
	}

	sources := service.NewSourceService(cfg.DataDir)
	var ix *ignition.Index
	if fc := loadSource(sources, mapCfg.Ignitions.File, log); fc != nil {
		ix = ignition.New(fc, mapCfg.Ignitions, mapCfg.NotAvailable)
		log.WithFields(logrus.Fields{"ignitions": ix.Len(), "skipped": ix.Skipped()}).Info("ignitions indexed")
	}
	terrain := loadSource(sources, mapCfg.Terrain.File, log)

	loader := boundary.New(sources, &http.Client{Timeout: boundary.DefaultTimeout}, log)
	catalog, err := service.BuildCatalog(service.Inputs{
		Config:     mapCfg,
		Terrain:    terrain,
		Ignitions:  ix,
		Boundaries: loader.LoadLocal(mapCfg.Boundaries),
		Log:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("building catalogue: %w", err)
	}
	layers := service.NewLayerService(catalog, service.NewEventBus())

	renderer, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	if cfg.WebDir != "" {
		if err := renderer.Reload(os.DirFS(cfg.WebDir)); err != nil {
			log.WithError(err).WithField("dir", cfg.WebDir).Warn("templates not reloaded, using embedded")
		}
	}

	mux := http.NewServeMux()
	links := humastar.NewLinkSet("viewer")

	humaConfig := huma.DefaultConfig("plat-fire API", "1.0.0")
	humaConfig.Info.Description = "Wildfire ignition and terrain map of Minho: layer catalogue, ignition years, heatmap, density grid and PMTiles export."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	s := &Server{
		config:     cfg,
		log:        log,
		mux:        mux,
		humaAPI:    humago.New(mux, humaConfig),
		mapCfg:     mapCfg,
		renderer:   renderer,
		boundaries: loader,
		services: &api.Services{
			Config:    mapCfg,
			Layers:    layers,
			Ignitions: ix,
			Sources:   sources,
			Tiles:     service.NewTileService(cfg.DataDir),
		},
	}

	conn, err := db.Open(db.Config{DataDir: cfg.DataDir, Sealed: true, Log: log})
	if err != nil {
		log.WithError(err).Warn("duckdb not available")
	} else {
		s.db = conn
		if ix != nil {
			n, err := db.ImportIgnitions(context.Background(), conn, ix)
			if err != nil {
				log.WithError(err).Warn("ignitions not imported into duckdb")
			} else {
				log.WithField("rows", n).Info("ignitions imported into duckdb")
			}
		}
	}

	s.routes(links)
	return s, nil
}

func loadSource(sources *service.SourceService, name string, log logrus.FieldLogger) *geojson.FeatureCollection {
	if name == "" {
		return nil
	}
	fc, err := sources.Load(name)
	if err != nil {
		log.WithError(err).WithField("file", name).Warn("source not loaded")
		return nil
	}
	return fc
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Layers returns the layer catalogue service.
func (s *Server) Layers() *service.LayerService {
	return s.services.Layers
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Start listens on Host:Port and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, s.config.Port))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. URL-backed boundaries are fetched
// once the listener is up, so relative URLs can point at this server.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	base := baseURL(ln.Addr())
	s.log.WithField("url", base.String()).Info("server listening")
	s.boundaries.FetchAsync(ctx, base, s.mapCfg.Boundaries, s.services.Layers)

	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("shutdown incomplete")
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// baseURL is the URL this process can reach itself on.
func baseURL(addr net.Addr) *url.URL {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return &url.URL{Scheme: "http", Host: addr.String()}
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return &url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)}
}

func (s *Server) routes(links *humastar.LinkSet) {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.services).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)

	// Register viewer SSE routes using Huma + Datastar SDK
	tilerSvc := service.NewTilerService(s.config.DataDir, s.services.Layers, gotiler.New())
	viewer.New(s.renderer, s.mapCfg, s.services.Layers, s.services.Tiles, tilerSvc, s.log).
		RegisterRoutes(s.humaAPI)

	links.Build(s.humaAPI)

	// Static files
	s.mux.Handle("/sources/", http.StripPrefix("/sources/", http.FileServer(http.Dir(s.services.Sources.SourcesDir()))))
	s.mux.Handle("/tiles/", http.StripPrefix("/tiles/", s.handleTiles(s.services.Tiles.TilesDir())))

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-fire",
		"status":  "running",
		"viewer":  "/viewer",
		"docs":    "/docs",
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	ic := s.mapCfg.Ignitions
	data := map[string]any{
		"Title": s.mapCfg.Title,
		"Map": map[string]any{
			"center":   s.mapCfg.Center,
			"zoom":     s.mapCfg.Zoom,
			"baseMaps": s.services.Layers.Catalog().BaseMaps(),
		},
		"Timeline": map[string]int{"Year": ic.FirstYear, "First": ic.FirstYear, "Last": ic.LastYear},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Execute(w, "viewer", data); err != nil {
		s.log.WithError(err).Error("viewer page not rendered")
		http.Error(w, "viewer not available", http.StatusInternalServerError)
	}
}

func (s *Server) handleTiles(tilesDir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		http.FileServer(http.Dir(tilesDir)).ServeHTTP(w, r)
	})
}
