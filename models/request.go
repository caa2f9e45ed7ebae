// Package models defines data structures shared by the harvest engine.
package models

import (
	"net/http"
	"net/url"
	"strings"
)

// Category namespaces cached content and selects per-category caching.
type Category string

const (
	CategorySitemap  Category = "sitemap"
	CategoryCategory Category = "category"
	CategoryProduct  Category = "product"
	CategoryGeneric  Category = "generic"
)

// Categories lists every known content category.
var Categories = []Category{CategorySitemap, CategoryCategory, CategoryProduct, CategoryGeneric}

// ParseCategory maps a name to a Category. Unknown names map to CategoryGeneric.
func ParseCategory(name string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(name))) {
	case CategorySitemap:
		return CategorySitemap
	case CategoryCategory:
		return CategoryCategory
	case CategoryProduct:
		return CategoryProduct
	default:
		return CategoryGeneric
	}
}

// Method is the HTTP verb of a FetchRequest.
type Method string

const (
	MethodGet  Method = http.MethodGet
	MethodPost Method = http.MethodPost
)

// FetchRequest describes a single network retrieval. Treat it as immutable.
type FetchRequest struct {
	URL      string
	Category Category
	Method   Method
	Headers  http.Header
	Params   url.Values
	Body     []byte
}

// NewGet builds a GET request for url in the given category.
func NewGet(rawURL string, category Category) FetchRequest {
	return FetchRequest{URL: rawURL, Category: category, Method: MethodGet}
}

// FullURL returns URL with Params merged into its query string.
func (r FetchRequest) FullURL() string {
	if len(r.Params) == 0 {
		return r.URL
	}
	parsed, err := url.Parse(r.URL)
	if err != nil {
		sep := "?"
		if strings.Contains(r.URL, "?") {
			sep = "&"
		}
		return r.URL + sep + r.Params.Encode()
	}
	query := parsed.Query()
	for key, values := range r.Params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// CacheKey identifies the cache entry for the request.
func (r FetchRequest) CacheKey() string {
	return r.FullURL()
}

// HTTPMethod returns the request verb, defaulting to GET.
func (r FetchRequest) HTTPMethod() string {
	if r.Method == MethodPost {
		return http.MethodPost
	}
	return http.MethodGet
}
