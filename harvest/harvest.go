// Package harvest runs the end-to-end workflow: resolve sitemaps, build the
// site context, drain product URLs through the worker pool and summarise.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-harvest/adapter"
	"github.com/aluiziolira/go-harvest/config"
	"github.com/aluiziolira/go-harvest/models"
	"github.com/aluiziolira/go-harvest/pipeline"
	"github.com/aluiziolira/go-harvest/sitemap"
)

// Files written under the output directory.
const (
	ProductURLsFile    = "product_urls.txt"
	CategoriesTextFile = "categories.txt"
	CategoriesJSONFile = "categories.json"
	BrandsJSONFile     = "brands.json"
)

// URLResolver expands sitemap URLs into page URLs. It never fails.
type URLResolver interface {
	ResolveAll(ctx context.Context, sitemapURLs []string) []string
}

// ContextBuilder derives brands and categories from browse URLs.
type ContextBuilder interface {
	Extract(urls []string) models.HarvestContext
}

// Binder produces the per-URL process function for a harvest context.
type Binder interface {
	Bind(hctx *models.HarvestContext) adapter.ProcessFunc
}

// Runner drains a URL list. *pipeline.Pool satisfies it.
type Runner interface {
	Run(ctx context.Context, urls []string, fn pipeline.ProcessFunc) (*models.RunResult, error)
}

// Compactor deduplicates existing output before a run.
type Compactor interface {
	Compact() error
}

// Targets names the sitemaps of one run.
type Targets struct {
	ProductSitemaps []string
	BrowseSitemap   string
}

// Harvester wires the workflow stages together.
type Harvester struct {
	cfg       *config.Config
	resolver  URLResolver
	extractor ContextBuilder
	adapter   Binder
	runner    Runner
	compactor Compactor
}

// New returns a Harvester. compactor may be nil.
func New(cfg *config.Config, resolver URLResolver, extractor ContextBuilder, binder Binder, runner Runner, compactor Compactor) *Harvester {
	return &Harvester{
		cfg:       cfg,
		resolver:  resolver,
		extractor: extractor,
		adapter:   binder,
		runner:    runner,
		compactor: compactor,
	}
}

// Run executes one harvest. Only a failure to create the output directory
// aborts it; every other stage logs and carries on.
func (h *Harvester) Run(ctx context.Context, targets Targets) (*models.RunResult, error) {
	slog.Info("starting harvest",
		slog.String("source", h.cfg.SourceName),
		slog.Int("workers", h.cfg.Workers),
		slog.Bool("products_only", h.cfg.ProductsOnly),
	)
	if err := os.MkdirAll(h.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", h.cfg.OutputDir, err)
	}

	if h.cfg.Deduplicate && h.compactor != nil {
		if err := h.compactor.Compact(); err != nil {
			slog.Error("deduplicating existing output failed", slog.Any("error", err))
		}
	}

	hctx := models.HarvestContext{
		Brands:     map[string]models.Brand{},
		Categories: map[string]models.CategoryNode{},
	}
	var urls []string
	if h.cfg.ProductsOnly {
		urls = h.loadProductURLs()
	} else {
		if targets.BrowseSitemap != "" {
			hctx = h.buildContext(ctx, targets.BrowseSitemap)
		}
		urls = h.resolver.ResolveAll(ctx, targets.ProductSitemaps)
		if len(urls) > 0 && h.cfg.SaveLocal {
			path := filepath.Join(h.cfg.OutputDir, ProductURLsFile)
			if err := sitemap.SaveURLList(path, urls); err != nil {
				slog.Warn("saving product urls failed", slog.Any("error", err))
			} else {
				slog.Info("saved product urls", slog.Int("count", len(urls)), slog.String("path", path))
			}
		}
	}

	if h.cfg.TestLimit > 0 && len(urls) > h.cfg.TestLimit {
		urls = urls[:h.cfg.TestLimit]
	}
	if len(urls) == 0 {
		slog.Error("no product urls to process")
		now := time.Now()
		return &models.RunResult{StartTime: now, EndTime: now}, nil
	}

	return h.runner.Run(ctx, urls, pipeline.ProcessFunc(h.adapter.Bind(&hctx)))
}

func (h *Harvester) loadProductURLs() []string {
	path := filepath.Join(h.cfg.OutputDir, ProductURLsFile)
	slog.Info("products-only mode, loading product urls", slog.String("path", path))
	urls, err := sitemap.LoadURLList(path)
	if err != nil {
		slog.Warn("loading product urls failed", slog.Any("error", err))
		return nil
	}
	return urls
}

func (h *Harvester) buildContext(ctx context.Context, browseSitemap string) models.HarvestContext {
	empty := models.HarvestContext{Brands: map[string]models.Brand{}, Categories: map[string]models.CategoryNode{}}
	browseURLs := h.resolver.ResolveAll(ctx, []string{browseSitemap})
	if len(browseURLs) == 0 {
		slog.Warn("browse sitemap yielded no urls, continuing without context", slog.String("url", browseSitemap))
		return empty
	}
	if h.extractor == nil {
		return empty
	}
	hctx := h.extractor.Extract(browseURLs)
	slog.Info("built harvest context",
		slog.Int("categories", len(hctx.Categories)),
		slog.Int("brands", len(hctx.Brands)),
	)
	if h.cfg.SaveLocal {
		if err := h.saveContext(hctx); err != nil {
			slog.Warn("saving harvest context failed", slog.Any("error", err))
		}
	}
	return hctx
}

func (h *Harvester) saveContext(hctx models.HarvestContext) error {
	categories := adapter.CategoryList(hctx.Categories)
	if len(categories) > 0 {
		var b strings.Builder
		for _, c := range categories {
			fmt.Fprintf(&b, "%s|%s\n", c.Name, c.URL)
		}
		path := filepath.Join(h.cfg.OutputDir, CategoriesTextFile)
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := writeJSON(filepath.Join(h.cfg.OutputDir, CategoriesJSONFile), categories); err != nil {
			return err
		}
	}
	if brands := adapter.BrandList(hctx.Brands); len(brands) > 0 {
		if err := writeJSON(filepath.Join(h.cfg.OutputDir, BrandsJSONFile), brands); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
