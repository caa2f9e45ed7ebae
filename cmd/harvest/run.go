package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-harvest/config"
	"github.com/aluiziolira/go-harvest/harvest"
	"github.com/aluiziolira/go-harvest/metrics"
	"github.com/aluiziolira/go-harvest/models"
	"github.com/aluiziolira/go-harvest/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		targets    harvest.Targets
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve sitemaps and harvest every product page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(targets.ProductSitemaps) == 0 && !a.cfg.ProductsOnly {
				return fmt.Errorf("at least one --sitemap is required unless --products-only is set")
			}
			return runHarvest(cmd.Context(), a.cfg, targets, !noProgress && isTerminal(os.Stderr))
		},
	}
	cmd.Flags().StringSliceVar(&targets.ProductSitemaps, "sitemap", nil, "Product sitemap URL (repeatable)")
	cmd.Flags().StringVar(&targets.BrowseSitemap, "browse-sitemap", "", "Browse sitemap URL used to build categories and brands")
	cmd.Flags().Bool("products-only", false, "Harvest the saved product_urls.txt instead of resolving sitemaps")
	cmd.Flags().Int("workers", 3, "Requested worker count (capped by hard_worker_cap)")
	cmd.Flags().Int("test-limit", 0, "Process only the first N URLs (0 = all)")
	cmd.Flags().String("source-name", "generic", "Value written to the source column")
	cmd.Flags().String("output-dir", "", "Directory for output files")
	cmd.Flags().String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	cmd.Flags().String("variant-endpoint", "", "GraphQL endpoint used to price product variants")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func runHarvest(parent context.Context, cfg *config.Config, targets harvest.Targets, showBar bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, acknowledging remaining work")
	}()

	m := metrics.New()
	metricsServer := startMetricsServer(cfg.MetricsAddr, m)

	var observer pipeline.ProgressObserver
	var bar *barObserver
	if showBar {
		bar = newBarObserver()
		observer = bar
	}

	engine, err := harvest.Build(ctx, cfg, m, observer)
	if err != nil {
		slog.Error("initialising harvest", slog.Any("error", err))
		return err
	}
	defer engine.Close()

	result, err := engine.Harvester.Run(ctx, targets)
	if bar != nil {
		bar.Finish()
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}
	if result != nil {
		printSummary(result, cfg)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("harvest failed", slog.Any("error", err))
		return err
	}
	return nil
}

func startMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	if addr == "" || m == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(result *models.RunResult, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Harvest complete")
	if result.RunID != "" {
		fmt.Printf("  Run ID:        %s\n", result.RunID)
	}
	fmt.Printf("  URLs:          %d\n", result.Enqueued)
	fmt.Printf("  Workers:       %d\n", result.Workers)
	fmt.Printf("  Records:       %d\n", result.Emitted)
	fmt.Printf("  Empty pages:   %d\n", result.Empty)
	fmt.Printf("  Failed:        %d\n", result.Failed)
	if result.Skipped > 0 {
		fmt.Printf("  Skipped:       %d\n", result.Skipped)
	}
	duration := result.Duration()
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	if duration.Seconds() > 0 {
		fmt.Printf("  Records/sec:   %.2f\n", float64(result.Emitted)/duration.Seconds())
	}
	fmt.Printf("  Output file:   %s\n", cfg.OutputPath())
	fmt.Println(separator)
}
