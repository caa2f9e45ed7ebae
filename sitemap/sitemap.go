// Package sitemap turns sitemap and feed documents into ordered URL lists.
package sitemap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/mmcdole/gofeed"

	"github.com/aluiziolira/go-harvest/models"
)

// Namespace is the sitemaps.org schema namespace.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// ListFile is the name of the resolved URL list written under the output dir.
const ListFile = "sitemap.txt"

// Fetcher retrieves a document body.
type Fetcher interface {
	Fetch(ctx context.Context, req models.FetchRequest) (string, error)
}

// ParseError reports a document that could not be parsed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Resolver fetches sitemaps and extracts their <loc> entries.
type Resolver struct {
	fetcher     Fetcher
	outputDir   string
	followIndex bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOutputDir persists every resolved list to dir/sitemap.txt.
func WithOutputDir(dir string) Option {
	return func(r *Resolver) { r.outputDir = dir }
}

// WithFollowIndex expands <sitemapindex> documents into their child sitemaps.
func WithFollowIndex(follow bool) Option {
	return func(r *Resolver) { r.followIndex = follow }
}

// NewResolver returns a Resolver backed by f.
func NewResolver(f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{fetcher: f}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the URLs listed in the sitemap at sitemapURL in document
// order. Failures are logged and yield an empty list.
func (r *Resolver) Resolve(ctx context.Context, sitemapURL string) []string {
	urls := r.resolve(ctx, sitemapURL, map[string]bool{})
	r.save(urls)
	return urls
}

// ResolveAll resolves every sitemap and concatenates the results in input order.
func (r *Resolver) ResolveAll(ctx context.Context, sitemapURLs []string) []string {
	urls := []string{}
	for _, u := range sitemapURLs {
		if ctx.Err() != nil {
			break
		}
		urls = append(urls, r.resolve(ctx, u, map[string]bool{})...)
	}
	r.save(urls)
	return urls
}

// ResolveFeed returns the entry links of an RSS or Atom feed in feed order.
func (r *Resolver) ResolveFeed(ctx context.Context, feedURL string) []string {
	slog.Info("fetching feed", slog.String("url", feedURL))
	body, err := r.fetcher.Fetch(ctx, models.NewGet(feedURL, models.CategorySitemap))
	if err != nil {
		slog.Error("feed fetch failed", slog.String("url", feedURL), slog.Any("error", err))
		return []string{}
	}
	urls, err := ParseFeed(body)
	if err != nil {
		slog.Error("feed parse failed", slog.Any("error", &ParseError{URL: feedURL, Err: err}))
		return []string{}
	}
	r.save(urls)
	return urls
}

func (r *Resolver) resolve(ctx context.Context, sitemapURL string, seen map[string]bool) []string {
	if seen[sitemapURL] {
		return nil
	}
	seen[sitemapURL] = true

	slog.Info("fetching sitemap", slog.String("url", sitemapURL))
	body, err := r.fetcher.Fetch(ctx, models.NewGet(sitemapURL, models.CategorySitemap))
	if err != nil {
		slog.Error("sitemap fetch failed", slog.String("url", sitemapURL), slog.Any("error", err))
		return []string{}
	}

	doc, err := Parse(body)
	if err != nil {
		slog.Error("sitemap parse failed", slog.Any("error", &ParseError{URL: sitemapURL, Err: err}))
		return []string{}
	}

	if !doc.Index || !r.followIndex {
		slog.Info("resolved sitemap", slog.String("url", sitemapURL), slog.Int("urls", len(doc.Locs)))
		return doc.Locs
	}

	urls := []string{}
	for _, child := range doc.Locs {
		if ctx.Err() != nil {
			break
		}
		urls = append(urls, r.resolve(ctx, child, seen)...)
	}
	return urls
}

func (r *Resolver) save(urls []string) {
	if r.outputDir == "" {
		return
	}
	path := filepath.Join(r.outputDir, ListFile)
	if err := SaveURLList(path, urls); err != nil {
		slog.Warn("failed to save sitemap list", slog.String("path", path), slog.Any("error", err))
		return
	}
	slog.Info("saved sitemap list", slog.String("path", path), slog.Int("urls", len(urls)))
}

// Document is a parsed sitemap.
type Document struct {
	Locs  []string
	Index bool
}

// Parse extracts <loc> values from a sitemap or sitemap index. Elements in
// the sitemaps.org namespace take precedence; when none exist, un-namespaced
// <loc> elements are used instead.
func Parse(body string) (*Document, error) {
	root, err := xmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	var namespaced, bare []string
	isIndex := false
	var walk func(n *xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			switch c.Data {
			case "sitemapindex":
				isIndex = true
			case "loc":
				value := strings.TrimSpace(c.InnerText())
				if value != "" {
					switch c.NamespaceURI {
					case Namespace:
						namespaced = append(namespaced, value)
					case "":
						bare = append(bare, value)
					}
				}
				continue
			}
			walk(c)
		}
	}
	walk(root)

	doc := &Document{Locs: namespaced, Index: isIndex}
	if len(namespaced) == 0 {
		doc.Locs = bare
	}
	if doc.Locs == nil {
		doc.Locs = []string{}
	}
	return doc, nil
}

// ParseFeed returns the item links of an RSS, Atom or JSON feed.
func ParseFeed(body string) ([]string, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" && len(item.Links) > 0 {
			link = strings.TrimSpace(item.Links[0])
		}
		if link != "" {
			urls = append(urls, link)
		}
	}
	return urls, nil
}
