package color

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/lucasb-eyer/go-colorful"
)

// Stop is one gradient stop. Offset lies in [0,1].
type Stop struct {
	Offset float64
	Color  colorful.Color
}

// Gradient is a sorted list of stops.
type Gradient []Stop

// ParseGradient builds a gradient from offset -> "#rrggbb" pairs.
func ParseGradient(stops map[float64]string) (Gradient, error) {
	if len(stops) == 0 {
		return nil, fmt.Errorf("gradient has no stops")
	}
	g := make(Gradient, 0, len(stops))
	for offset, hex := range stops {
		if offset < 0 || offset > 1 {
			return nil, fmt.Errorf("gradient offset %v out of range [0,1]", offset)
		}
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, fmt.Errorf("gradient stop %v: %w", offset, err)
		}
		g = append(g, Stop{Offset: offset, Color: c})
	}
	sort.Slice(g, func(i, j int) bool { return g[i].Offset < g[j].Offset })
	return g, nil
}

// At returns the color at t as "#rrggbb". Values outside the stop range take
// the color of the nearest stop.
func (g Gradient) At(t float64) string {
	if len(g) == 0 {
		return "#ffffff"
	}
	if t <= g[0].Offset {
		return g[0].Color.Hex()
	}
	for i := 1; i < len(g); i++ {
		lo, hi := g[i-1], g[i]
		if t == hi.Offset {
			return hi.Color.Hex()
		}
		if t < hi.Offset {
			f := (t - lo.Offset) / (hi.Offset - lo.Offset)
			return lo.Color.BlendHcl(hi.Color, f).Clamped().Hex()
		}
	}
	return g[len(g)-1].Color.Hex()
}

// Map returns the gradient as offset -> hex, the shape heat layers expect.
// Offsets are formatted as strings so the map encodes as a JSON object.
func (g Gradient) Map() map[string]string {
	m := make(map[string]string, len(g))
	for _, s := range g {
		m[strconv.FormatFloat(s.Offset, 'f', -1, 64)] = s.Color.Hex()
	}
	return m
}
