package adapter

import (
	"net/url"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aluiziolira/go-harvest/models"
)

// ContextExtractor derives brands and the category tree from the URLs of a
// browse sitemap. Brand pages live under BrandSegment (default "brands");
// every other URL contributes its path to the category tree.
type ContextExtractor struct {
	BrandSegment string
	MaxDepth     int
}

// Extract builds the harvest context for urls.
func (e ContextExtractor) Extract(urls []string) models.HarvestContext {
	brandSegment := e.BrandSegment
	if brandSegment == "" {
		brandSegment = "brands"
	}
	maxDepth := e.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}

	hctx := models.HarvestContext{
		Brands:     make(map[string]models.Brand),
		Categories: make(map[string]models.CategoryNode),
	}
	for _, raw := range urls {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || parsed.Host == "" {
			continue
		}
		segments := pathSegments(parsed.Path)
		if len(segments) == 0 {
			continue
		}
		if i := indexOf(segments, brandSegment); i >= 0 {
			if i+1 < len(segments) {
				name := displayName(segments[i+1])
				hctx.Brands[strings.ToLower(name)] = models.Brand{Name: name, URL: raw}
			}
			continue
		}
		if len(segments) > maxDepth {
			segments = segments[:maxDepth]
		}
		root := hctx.Categories[segments[0]]
		hctx.Categories[segments[0]] = insertPath(root, parsed, segments, 0)
	}
	return hctx
}

// CategoryList flattens the category map into a slice ordered by name.
func CategoryList(categories map[string]models.CategoryNode) []models.CategoryNode {
	out := make([]models.CategoryNode, 0, len(categories))
	for _, node := range categories {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BrandList returns brands ordered by name.
func BrandList(brands map[string]models.Brand) []models.Brand {
	out := make([]models.Brand, 0, len(brands))
	for _, b := range brands {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func insertPath(node models.CategoryNode, base *url.URL, segments []string, depth int) models.CategoryNode {
	if node.Name == "" {
		node.Name = displayName(segments[depth])
		node.ID = segments[depth]
		node.URL = prefixURL(base, segments[:depth+1])
	}
	if depth+1 >= len(segments) {
		return node
	}
	next := segments[depth+1]
	for i, child := range node.Children {
		if child.ID == next {
			node.Children[i] = insertPath(child, base, segments, depth+1)
			return node
		}
	}
	node.Children = append(node.Children, insertPath(models.CategoryNode{}, base, segments, depth+1))
	return node
}

func prefixURL(base *url.URL, segments []string) string {
	u := url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/" + strings.Join(segments, "/")}
	return u.String()
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func indexOf(segments []string, want string) int {
	for i, s := range segments {
		if s == want {
			return i
		}
	}
	return -1
}

// displayName turns a slug like "smart-watches" into "Smart Watches".
func displayName(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
