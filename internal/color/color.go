// Package color resolves the pre-rendered colors carried by raster features
// and blends the gradients used by density layers.
package color

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/sirupsen/logrus"
)

// Default is returned for every color that cannot be resolved.
const Default = "rgb(255,255,255)"

// Resolver turns "rgb(r, g, b)" strings into canonical CSS colors.
type Resolver struct {
	log logrus.FieldLogger
}

// NewResolver creates a resolver that reports malformed colors to log.
func NewResolver(log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{log: log}
}

var std = NewResolver(nil)

// Resolve resolves raw with the package resolver.
func Resolve(raw any) string {
	return std.Resolve(raw)
}

// Resolve returns raw as "rgb(r, g, b)". It never fails: absent, non-string
// and malformed values resolve to Default, the malformed ones with a warning.
func (r *Resolver) Resolve(raw any) string {
	s, ok := raw.(string)
	if !ok || s == "" {
		return Default
	}
	ch, ok := channels(s)
	if !ok {
		r.log.WithField("value", s).Warn("invalid color value")
		return Default
	}
	return fmt.Sprintf("rgb(%d, %d, %d)", ch[0], ch[1], ch[2])
}

// Parse returns raw as a colorful.Color. ok is false wherever Resolve would
// fall back to Default.
func Parse(raw any) (c colorful.Color, ok bool) {
	s, isString := raw.(string)
	if !isString {
		return colorful.Color{}, false
	}
	ch, ok := channels(s)
	if !ok {
		return colorful.Color{}, false
	}
	return colorful.Color{
		R: float64(ch[0]) / 255,
		G: float64(ch[1]) / 255,
		B: float64(ch[2]) / 255,
	}, true
}

// Hex returns raw as "#rrggbb", or the hex form of Default.
func Hex(raw any) string {
	c, ok := Parse(raw)
	if !ok {
		return "#ffffff"
	}
	return c.Hex()
}

// channels strips every "rgb(" and ")" from s and parses the remaining
// comma separated integers.
func channels(s string) ([3]int, bool) {
	var out [3]int
	s = strings.ReplaceAll(s, "rgb(", "")
	s = strings.ReplaceAll(s, ")", "")
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, false
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return out, false
		}
		out[i] = v
	}
	return out, true
}
