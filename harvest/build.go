package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-harvest/adapter"
	"github.com/aluiziolira/go-harvest/config"
	"github.com/aluiziolira/go-harvest/fetcher"
	"github.com/aluiziolira/go-harvest/metrics"
	"github.com/aluiziolira/go-harvest/models"
	"github.com/aluiziolira/go-harvest/pipeline"
	"github.com/aluiziolira/go-harvest/sitemap"
)

// Engine holds the components wired for one run.
type Engine struct {
	Fetcher   *fetcher.Fetcher
	Resolver  *sitemap.Resolver
	Sink      *pipeline.Sink
	Pool      *pipeline.Pool
	Harvester *Harvester

	closers []func()
}

// Build wires fetcher, resolver, sink, pool and the reference product
// adapter from cfg. observer may be nil.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, observer pipeline.ProgressObserver) (*Engine, error) {
	f, err := fetcher.New(cfg, fetcher.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	var resolverOpts []sitemap.Option
	if cfg.SaveLocal {
		resolverOpts = append(resolverOpts, sitemap.WithOutputDir(cfg.OutputDir))
	}
	resolverOpts = append(resolverOpts, sitemap.WithFollowIndex(cfg.FollowSitemapIndex))
	resolver := sitemap.NewResolver(f, resolverOpts...)

	sink, closeSink, err := OpenSink(ctx, cfg, m, time.Now())
	if err != nil {
		return nil, err
	}

	poolOpts := []pipeline.PoolOption{pipeline.WithPoolMetrics(m)}
	if observer != nil {
		poolOpts = append(poolOpts, pipeline.WithObserver(observer))
	}
	pool := pipeline.NewPool(cfg, sink, poolOpts...)

	var productOpts []adapter.ProductOption
	if cfg.VariantEndpoint != "" {
		productOpts = append(productOpts, adapter.WithVariantPricing(cfg.VariantEndpoint))
	}
	h := New(cfg, resolver, adapter.ContextExtractor{},
		adapter.NewProductAdapter(f, cfg.SourceName, productOpts...), pool, sink)

	return &Engine{
		Fetcher:   f,
		Resolver:  resolver,
		Sink:      sink,
		Pool:      pool,
		Harvester: h,
		closers:   []func(){closeSink},
	}, nil
}

// Close releases database connections.
func (e *Engine) Close() {
	for _, c := range e.closers {
		c()
	}
}

// OpenSink builds the output sink: the CSV file, the dated pipe-delimited
// file and, when a DSN is configured, the Postgres table. The returned
// func closes any database pool.
func OpenSink(ctx context.Context, cfg *config.Config, m *metrics.Metrics, day time.Time) (*pipeline.Sink, func(), error) {
	schema := models.StandardSchema
	stores := []pipeline.Store{
		pipeline.NewTabularStore(cfg.OutputPath(), schema),
		pipeline.NewDelimitedStore(cfg.DelimitedPath(day), schema),
	}
	closeFn := func() {}

	if cfg.PostgresDSN != "" {
		pg, err := pipeline.OpenPostgresStore(ctx, cfg.PostgresDSN, cfg.PostgresTable, schema)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		slog.Info("postgres output enabled", slog.String("table", cfg.PostgresTable))
		stores = append(stores, pg)
		closeFn = pg.Close
	}

	sink, err := pipeline.NewSink(schema, m, stores...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return sink, closeFn, nil
}
