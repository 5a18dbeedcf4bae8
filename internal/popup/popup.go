// Package popup renders the attribute popups bound to map features.
package popup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"time"
)

// NotAvailable is the default marker for attributes a feature does not carry.
const NotAvailable = "Não disponível"

// Row is one "Label: value" line of a popup.
type Row struct {
	Label     string `yaml:"label" json:"label" validate:"required" doc:"Row label"`
	Attribute string `yaml:"attribute" json:"attribute" validate:"required" doc:"Feature property shown on this row"`
	Format    string `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=date" doc:"Value format (date)"`
}

var rowsTmpl = template.Must(template.New("popup").Parse(
	`{{range .}}<strong>{{.Label}}:</strong> {{.Value}}<br>{{end}}`,
))

type line struct {
	Label string
	Value string
}

// Builder renders a fixed set of rows for any attribute map.
type Builder struct {
	rows    []Row
	missing string
}

// New creates a popup builder. An empty missing marker means NotAvailable.
func New(rows []Row, missing string) *Builder {
	if missing == "" {
		missing = NotAvailable
	}
	return &Builder{rows: rows, missing: missing}
}

// Build renders the popup HTML for attrs. Rows whose attribute is absent, null
// or unparseable show the missing marker instead of being dropped.
func (b *Builder) Build(attrs map[string]any) string {
	lines := make([]line, len(b.rows))
	for i, row := range b.rows {
		v, ok := format(attrs[row.Attribute], row.Format)
		if !ok {
			v = b.missing
		}
		lines[i] = line{Label: row.Label, Value: v}
	}

	var buf bytes.Buffer
	if err := rowsTmpl.Execute(&buf, lines); err != nil {
		return ""
	}
	return buf.String()
}

func format(v any, kind string) (string, bool) {
	if kind == "date" {
		t, ok := ParseTime(v)
		if !ok {
			return "", false
		}
		return t.Format("02/01/2006"), true
	}
	return Value(v)
}

// Value renders a GeoJSON property value as text. ok is false for nil.
func Value(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case json.Number:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp encodings found in ignition exports:
// ISO strings and epoch milliseconds.
func ParseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	case float64:
		return time.UnixMilli(int64(x)).UTC(), true
	case int64:
		return time.UnixMilli(x).UTC(), true
	}
	return time.Time{}, false
}
