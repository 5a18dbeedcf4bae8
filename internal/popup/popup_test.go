package popup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild(t *testing.T) {
	b := New([]Row{
		{Label: "Hipsometria", Attribute: "altitude"},
		{Label: "Declives", Attribute: "declive"},
		{Label: "Modelo de Combustível", Attribute: "mod"},
	}, "")

	got := b.Build(map[string]any{"altitude": float64(120), "declive": 12.5})
	assert.Equal(t,
		"<strong>Hipsometria:</strong> 120<br>"+
			"<strong>Declives:</strong> 12.5<br>"+
			"<strong>Modelo de Combustível:</strong> Não disponível<br>",
		got)
}

func TestBuildNilAndCustomMarker(t *testing.T) {
	b := New([]Row{{Label: "A", Attribute: "a"}, {Label: "B", Attribute: "b"}}, "n/a")
	assert.Equal(t, "<strong>A:</strong> n/a<br><strong>B:</strong> n/a<br>", b.Build(nil))
	assert.Equal(t, "<strong>A:</strong> <br><strong>B:</strong> n/a<br>",
		b.Build(map[string]any{"a": "", "b": nil}))
}

func TestBuildEscapes(t *testing.T) {
	b := New([]Row{{Label: "Descrição", Attribute: "d"}}, "")
	assert.Equal(t, "<strong>Descrição:</strong> &lt;script&gt;<br>",
		b.Build(map[string]any{"d": "<script>"}))
}

func TestDateFormat(t *testing.T) {
	b := New([]Row{{Label: "Data", Attribute: "when", Format: "date"}}, "")

	var tests = []struct {
		in   any
		want string
	}{
		0: {in: "2017-10-15T14:30:00", want: "15/10/2017"},
		1: {in: "2017-10-15T14:30:00Z", want: "15/10/2017"},
		2: {in: "2017-10-15", want: "15/10/2017"},
		3: {in: float64(1508077800000), want: "15/10/2017"},
		4: {in: "yesterday", want: NotAvailable},
		5: {in: nil, want: NotAvailable},
	}
	for k, test := range tests {
		got := b.Build(map[string]any{"when": test.in})
		assert.Equal(t, "<strong>Data:</strong> "+test.want+"<br>", got, "test %d", k)
	}
}

func TestValue(t *testing.T) {
	v, ok := Value(int64(7))
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	v, ok = Value(true)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	_, ok = Value(nil)
	assert.False(t, ok)
}
