package service

import (
	"fmt"
	"sync"
)

// LayerService holds the current catalogue. Readers get a snapshot that is
// never mutated; Add swaps in a new one and tells the viewers about it.
type LayerService struct {
	mu      sync.RWMutex
	catalog *Catalog
	bus     *EventBus
}

// NewLayerService wraps a catalogue built at startup. bus may be nil.
func NewLayerService(c *Catalog, bus *EventBus) *LayerService {
	if c == nil {
		c = &Catalog{payload: map[string]any{}}
	}
	return &LayerService{catalog: c, bus: bus}
}

// Catalog returns the current snapshot.
func (s *LayerService) Catalog() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// List returns the overlays of the current snapshot.
func (s *LayerService) List() []Overlay {
	return s.Catalog().Overlays()
}

// Get returns an overlay and its payload by ID.
func (s *LayerService) Get(id string) (Overlay, any, bool) {
	return s.Catalog().Layer(id)
}

// Add registers an overlay after startup and publishes ActionAdded.
func (s *LayerService) Add(o Overlay, payload any) error {
	if o.ID == "" {
		return fmt.Errorf("overlay has no id")
	}
	if o.Href == "" {
		o.Href = LayerHref(o.ID)
	}

	s.mu.Lock()
	s.catalog = s.catalog.WithOverlay(o, payload)
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(Event{Action: ActionAdded, Overlay: o})
	}
	return nil
}

// Bus returns the event bus, or nil.
func (s *LayerService) Bus() *EventBus {
	return s.bus
}
