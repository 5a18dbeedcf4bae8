package humastar

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// LinkSet holds RFC 8288 Link headers keyed by operation path. Create it
// before the API so its Transformer can be configured, then call Build once
// every route is registered.
type LinkSet struct {
	mu    sync.RWMutex
	links map[string][]string
	skip  []string
}

// NewLinkSet returns an empty set. Operations tagged with any of skipTags
// (SSE endpoints) get no links.
func NewLinkSet(skipTags ...string) *LinkSet {
	return &LinkSet{links: map[string][]string{}, skip: skipTags}
}

// Build walks the OpenAPI document and derives the links:
//   - item -> collection (rel="collection", rel="up")
//   - collection -> item template (rel="item"), entry point (rel="up")
//   - collections sharing a tag link to each other by last path segment
//   - /health links to every collection and to the OpenAPI document
func (ls *LinkSet) Build(api huma.API) {
	oapi := api.OpenAPI()

	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.links = map[string][]string{}

	type pathInfo struct {
		path string
		tags []string
	}
	var collections, items []pathInfo
	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if ls.skipped(tags) {
			continue
		}
		info := pathInfo{path: p, tags: tags}
		if strings.Contains(p, "{") {
			items = append(items, info)
		} else {
			collections = append(collections, info)
		}
	}

	for _, item := range items {
		parent := path.Dir(item.path)
		if _, ok := oapi.Paths[parent]; ok {
			ls.add(item.path, parent, "collection")
			ls.add(item.path, parent, "up")
		}
	}
	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item.path) == coll.path {
				ls.add(coll.path, item.path, "item")
			}
		}
		if coll.path != "/health" {
			ls.add(coll.path, "/health", "up")
		}
	}
	for i, a := range collections {
		for j, b := range collections {
			if i != j && sharedTag(a.tags, b.tags) {
				ls.add(a.path, b.path, lastSegment(b.path))
			}
		}
	}

	for _, coll := range collections {
		if coll.path != "/health" {
			ls.add("/health", coll.path, lastSegment(coll.path))
		}
	}
	ls.add("/health", "/openapi.json", "service-desc")
	ls.add("/health", "/docs", "service-doc")
	ls.add("/health", "/viewer", "alternate")
}

func (ls *LinkSet) skipped(tags []string) bool {
	for _, t := range tags {
		for _, s := range ls.skip {
			if t == s {
				return true
			}
		}
	}
	return false
}

func (ls *LinkSet) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	for _, existing := range ls.links[from] {
		if existing == val {
			return
		}
	}
	ls.links[from] = append(ls.links[from], val)
}

// For returns the links of an operation path.
func (ls *LinkSet) For(opPath string) []string {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return append([]string(nil), ls.links[opPath]...)
}

// Transformer returns a Huma Transformer that writes the links, a self link
// for item endpoints, and any pagination or action links of the body.
func (ls *LinkSet) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range ls.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func sharedTag(a, b []string) bool {
	for _, at := range a {
		for _, bt := range b {
			if at == bt {
				return true
			}
		}
	}
	return false
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}
