package humastar

import (
	"context"
	"math"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p := Page(items, 2, 2)
	assert.Equal(t, []int{3, 4}, p.Data)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, []string{
		`</x?offset=0&limit=2>; rel="first"`,
		`</x?offset=0&limit=2>; rel="prev"`,
		`</x?offset=4&limit=2>; rel="next"`,
		`</x?offset=4&limit=2>; rel="last"`,
	}, p.PaginationLinks("/x"))

	assert.Equal(t, items, Page(items, 0, 0).Data)
	assert.Empty(t, Page(items, 9, 2).Data)
	assert.Equal(t, []int{5}, Page(items, 4, 10).Data)

	p = Page(items, 1, math.MaxInt)
	assert.Equal(t, []int{2, 3, 4, 5}, p.Data)
	assert.Equal(t, math.MaxInt, p.Limit)
	for _, l := range p.PaginationLinks("/x") {
		assert.NotContains(t, l, `rel="next"`)
	}
	assert.Empty(t, Page(items, math.MaxInt, math.MaxInt).Data)
}

func TestActionLinkHeader(t *testing.T) {
	a := Action{Rel: "next", Href: "/api/v1/timeline/next?year=2003", Method: http.MethodPost, Title: "Next year"}
	assert.Equal(t, `</api/v1/timeline/next?year=2003>; rel="next"; method="POST"; title="Next year"`, a.LinkHeader())
	assert.Equal(t, `</a>; rel="up"`, Action{Rel: "up", Href: "/a"}.LinkHeader())
}

func TestSignals(t *testing.T) {
	in := &SignalsInput{RawBody: []byte(`{"layer":"hipsometria","maxzoom":12,"go":true}`)}
	s, err := in.MustParse()
	require.NoError(t, err)
	assert.Equal(t, "hipsometria", s.String("layer"))
	assert.Equal(t, 12, s.Int("maxzoom"))
	assert.True(t, s.Bool("go"))
	assert.False(t, s.Has("minzoom"))
	assert.Equal(t, 0, s.Int("minzoom"))

	_, err = (&SignalsInput{RawBody: []byte("{")}).MustParse()
	assert.Error(t, err)
}

type itemsBody struct {
	Body PageBody[string]
}

type stateBody struct {
	Body state
}

type state struct {
	Year int `json:"year"`
}

func (s state) Actions() []Action {
	return []Action{{Rel: "next", Href: "/api/v1/state/next", Method: http.MethodPost}}
}

func TestLinkSet(t *testing.T) {
	links := NewLinkSet("viewer")
	cfg := huma.DefaultConfig("test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, links.Transformer())
	_, api := humatest.New(t, cfg)

	huma.Get(api, "/health", func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		return &struct{}{}, nil
	}, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/items", func(ctx context.Context, _ *struct{}) (*itemsBody, error) {
		return &itemsBody{Body: Page([]string{"a", "b", "c"}, 0, 2)}, nil
	}, huma.OperationTags("items"))
	huma.Get(api, "/api/v1/items/{id}", func(ctx context.Context, _ *struct {
		ID string `path:"id"`
	}) (*stateBody, error) {
		return &stateBody{Body: state{Year: 2003}}, nil
	}, huma.OperationTags("items"))
	huma.Get(api, "/api/v1/viewer/play", func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		return &struct{}{}, nil
	}, huma.OperationTags("viewer"))
	links.Build(api)

	assert.Contains(t, links.For("/health"), `</api/v1/items>; rel="items"`)
	assert.NotContains(t, links.For("/health"), `</api/v1/viewer/play>; rel="play"`)
	assert.Contains(t, links.For("/api/v1/items"), `</api/v1/items/{id}>; rel="item"`)
	assert.Contains(t, links.For("/api/v1/items/{id}"), `</api/v1/items>; rel="collection"`)

	resp := api.Get("/api/v1/items")
	require.Equal(t, http.StatusOK, resp.Code)
	got := resp.Header().Values("Link")
	assert.Contains(t, got, `</health>; rel="up"`)
	assert.Contains(t, got, `</api/v1/items?offset=2&limit=2>; rel="next"`)

	resp = api.Get("/api/v1/items/x")
	got = resp.Header().Values("Link")
	assert.Contains(t, got, `</api/v1/items/x>; rel="self"`)
	assert.Contains(t, got, `</api/v1/state/next>; rel="next"; method="POST"`)
}
