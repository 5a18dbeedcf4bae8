// Package boundary loads administrative boundary overlays, from files at
// startup or from a URL in the background.
package boundary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-fire/internal/mapconfig"
	"github.com/joeblew999/plat-fire/internal/service"
)

// DefaultTimeout bounds one boundary fetch.
const DefaultTimeout = 30 * time.Second

// maxBody caps the size of a fetched boundary document.
const maxBody = 64 << 20

// Loader reads boundary collections.
type Loader struct {
	sources *service.SourceService
	client  *http.Client
	log     logrus.FieldLogger
}

// New creates a loader. A nil client gets DefaultTimeout; a nil log uses the
// standard logger.
func New(sources *service.SourceService, client *http.Client, log logrus.FieldLogger) *Loader {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loader{sources: sources, client: client, log: log}
}

// LoadLocal reads every file-backed boundary. Boundaries that fail to load
// are logged and left out of the result.
func (l *Loader) LoadLocal(bs []mapconfig.Boundary) map[string]*geojson.FeatureCollection {
	out := make(map[string]*geojson.FeatureCollection)
	for _, b := range bs {
		if b.File == "" {
			continue
		}
		fc, err := l.sources.Load(b.File)
		if err != nil {
			l.log.WithFields(logrus.Fields{"layer": b.ID, "file": b.File}).WithError(err).
				Error("boundary file not loaded")
			continue
		}
		out[b.ID] = fc
	}
	return out
}

// Resolve makes a relative boundary URL absolute against base.
func Resolve(base *url.URL, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if base == nil {
		return "", fmt.Errorf("relative boundary url %q without a base", raw)
	}
	return base.ResolveReference(u).String(), nil
}

// Fetch downloads a GeoJSON FeatureCollection.
func (l *Loader) Fetch(ctx context.Context, rawURL string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-OK HTTP status %d from %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", rawURL, err)
	}
	return fc, nil
}

// FetchAsync fetches every URL-backed boundary in the background and adds
// each one to layers when it arrives. Failures are logged and the overlay
// stays absent. The returned channel is closed once all fetches are done.
func (l *Loader) FetchAsync(ctx context.Context, base *url.URL, bs []mapconfig.Boundary, layers *service.LayerService) <-chan struct{} {
	done := make(chan struct{})
	var pending []mapconfig.Boundary
	for _, b := range bs {
		if b.File == "" && b.URL != "" {
			pending = append(pending, b)
		}
	}

	go func() {
		defer close(done)
		for _, b := range pending {
			log := l.log.WithFields(logrus.Fields{"layer": b.ID, "url": b.URL})
			target, err := Resolve(base, b.URL)
			if err != nil {
				log.WithError(err).Error("boundary url invalid")
				continue
			}
			fc, err := l.Fetch(ctx, target)
			if err != nil {
				log.WithError(err).Error("boundary fetch failed")
				continue
			}
			o, payload := service.BoundaryOverlay(b, fc)
			if err := layers.Add(o, payload); err != nil {
				log.WithError(err).Error("boundary not registered")
				continue
			}
			log.WithField("features", o.Features).Info("boundary loaded")
		}
	}()
	return done
}
