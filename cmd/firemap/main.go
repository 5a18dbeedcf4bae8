package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-fire/internal/color"
	"github.com/joeblew999/plat-fire/internal/mapconfig"
	"github.com/joeblew999/plat-fire/internal/popup"
	"github.com/joeblew999/plat-fire/internal/raster"
	"github.com/joeblew999/plat-fire/internal/server"
	"github.com/joeblew999/plat-fire/internal/service"
	"github.com/joeblew999/plat-fire/internal/tiler/gotiler"
)

// Options defines all CLI flags and env vars for the fire map server.
// Flags: --host, --port, --data-dir, --map-config, --web-dir, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_MAP_CONFIG, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir   string `doc:"Directory holding sources/ and tiles/" default:".data"`
	MapConfig string `doc:"YAML map catalogue, built-in if empty"`
	WebDir    string `doc:"Directory of templates overriding the embedded ones"`
	LogLevel  string `doc:"Log level: debug, info, warn, error" default:"info"`
}

func newLogger(opts *Options) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		log.WithField("level", opts.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func newServer(opts *Options, log logrus.FieldLogger) (*server.Server, error) {
	return server.New(server.Config{
		Host:      opts.Host,
		Port:      strconv.Itoa(opts.Port),
		DataDir:   opts.DataDir,
		MapConfig: opts.MapConfig,
		WebDir:    opts.WebDir,
		Log:       log,
	})
}

func fatal(log logrus.FieldLogger, err error, msg string) {
	log.WithError(err).Error(msg)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log := newLogger(opts)
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			srv, err := newServer(opts, log)
			if err != nil {
				fatal(log, err, "server not created")
			}
			defer srv.Close()

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-fire map server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := srv.Start(ctx); err != nil {
				fatal(log, err, "server error")
			}
		})
		hooks.OnStop(cancel)
	})

	cli.Root().Use = "firemap"
	cli.Root().Short = "Wildfire ignition and terrain map of Minho"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := newLogger(opts)
			log.SetLevel(logrus.ErrorLevel)
			srv, err := newServer(opts, log)
			if err != nil {
				fatal(log, err, "server not created")
			}
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(srv.OpenAPI())
			} else {
				output, err = json.MarshalIndent(srv.OpenAPI(), "", "  ")
			}
			if err != nil {
				fatal(log, err, "spec not marshaled")
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// rasterize subcommand: build one terrain grid offline
	rasterizeCmd := &cobra.Command{
		Use:   "rasterize <metric>",
		Short: "Rasterize the terrain points of one metric into a GeoJSON grid",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := newLogger(opts)
			cfg, err := mapconfig.Load(opts.MapConfig)
			if err != nil {
				fatal(log, err, "map config not loaded")
			}
			metric, ok := cfg.Metric(args[0])
			if !ok {
				fatal(log, fmt.Errorf("unknown metric %q", args[0]), "rasterize failed")
			}
			fc, err := service.NewSourceService(opts.DataDir).Load(cfg.Terrain.File)
			if err != nil {
				fatal(log, err, "terrain not loaded")
			}

			r := raster.New(color.NewResolver(log), popup.New(cfg.Terrain.Popup, cfg.NotAvailable).Build)
			res, err := r.Rasterize(raster.FromFeatureCollection(fc), metric.ColorAttribute, cfg.Terrain.SquareSize)
			if err != nil {
				fatal(log, err, "rasterize failed")
			}
			data, err := res.FeatureCollection().MarshalJSON()
			if err != nil {
				fatal(log, err, "grid not marshaled")
			}

			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				os.Stdout.Write(data)
				return
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				fatal(log, err, "grid not written")
			}
			log.WithFields(logrus.Fields{
				"metric":  metric.ID,
				"cells":   len(res.Cells),
				"dropped": res.Dropped,
				"skipped": res.Skipped,
				"output":  out,
			}).Info("grid written")
		}),
	}
	rasterizeCmd.Flags().StringP("output", "o", "", "Output file, stdout if empty")
	cli.Root().AddCommand(rasterizeCmd)

	// export-tiles subcommand: tile one catalogue overlay into PMTiles
	exportCmd := &cobra.Command{
		Use:   "export-tiles <layer>",
		Short: "Export a catalogue overlay as a PMTiles archive under data-dir/tiles",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := newLogger(opts)
			srv, err := newServer(opts, log)
			if err != nil {
				fatal(log, err, "server not created")
			}
			defer srv.Close()

			minZoom, _ := cmd.Flags().GetInt("min-zoom")
			maxZoom, _ := cmd.Flags().GetInt("max-zoom")
			name, _ := cmd.Flags().GetString("output")

			tiler := service.NewTilerService(opts.DataDir, srv.Layers(), gotiler.New())
			path, err := tiler.Export(context.Background(), service.ExportOptions{
				LayerID:    args[0],
				OutputName: name,
				MinZoom:    minZoom,
				MaxZoom:    maxZoom,
			}, func(progress int, status string) {
				log.WithField("progress", progress).Info(status)
			})
			if err != nil {
				srv.Close()
				fatal(log, err, "export failed")
			}
			fmt.Println(path)
		}),
	}
	exportCmd.Flags().Int("min-zoom", 0, "Minimum zoom level")
	exportCmd.Flags().Int("max-zoom", 12, "Maximum zoom level")
	exportCmd.Flags().StringP("output", "o", "", "Output name, defaults to the layer ID")
	cli.Root().AddCommand(exportCmd)

	cli.Run()
}
