// Command storesight runs the retail detection pipeline: it ingests the
// sensor data set (or a live replay stream), evaluates every detector,
// and writes the event stream plus a run summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
	"github.com/storesight/storesight/internal/infrastructure/ingest"
	"github.com/storesight/storesight/internal/infrastructure/sink"
	"github.com/storesight/storesight/internal/infrastructure/stream"
	"github.com/storesight/storesight/internal/infrastructure/telemetry"
	"github.com/storesight/storesight/internal/metrics"
	"github.com/storesight/storesight/internal/service/engine"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		dataDir     = flag.String("data-dir", "", "override input data directory")
		eventsOut   = flag.String("events-out", "", "override events output path")
		summaryOut  = flag.String("summary-out", "", "override summary output path")
		streamMode  = flag.Bool("stream", false, "consume the live replay stream instead of files")
		streamLimit = flag.Int("stream-limit", 0, "stop after this many stream records (0 = unlimited)")
	)
	flag.Parse()

	if err := run(*configPath, *dataDir, *eventsOut, *summaryOut, *streamMode, *streamLimit); err != nil {
		fmt.Fprintf(os.Stderr, "storesight: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dataDir, eventsOut, summaryOut string, streamMode bool, streamLimit int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dataDir != "" {
		cfg.Data.Dir = dataDir
	}
	if eventsOut != "" {
		cfg.Output.EventsFile = eventsOut
	}
	if summaryOut != "" {
		cfg.Output.SummaryFile = summaryOut
	}
	if streamLimit > 0 {
		cfg.Stream.Limit = streamLimit
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	slog.SetDefault(logger)

	provider, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "storesight",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	registry, err := metrics.NewRegistry(telemetry.Meter("storesight"))
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	logger.InfoContext(ctx, "storesight starting",
		"version", version,
		"environment", cfg.Environment,
		"mode", mode(streamMode))

	if streamMode {
		return runStream(ctx, cfg, logger, registry)
	}
	return runBatch(ctx, cfg, logger, registry)
}

func runBatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metrics.Registry) error {
	loader := ingest.NewLoader(cfg.Data, logger, registry)
	batch, err := loader.LoadAll(ctx)
	if err != nil {
		return err
	}

	eng := engine.New(cfg, batch.Products, logger, registry, telemetry.Tracer("storesight"))
	result, err := eng.Run(ctx, batch)
	if err != nil {
		return err
	}

	writer, err := sink.NewEventWriter(cfg.Output.EventsFile)
	if err != nil {
		return err
	}
	for _, ev := range result.Events {
		if err := writer.Write(ctx, ev); err != nil {
			writer.Close()
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := sink.WriteSummary(cfg.Output.SummaryFile, result.Summary); err != nil {
		return err
	}

	if err := persist(ctx, cfg, logger, result); err != nil {
		return err
	}

	logger.InfoContext(ctx, "run complete",
		"run_id", result.RunID,
		"events", len(result.Events),
		"events_file", cfg.Output.EventsFile,
		"summary_file", cfg.Output.SummaryFile)
	return nil
}

func runStream(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metrics.Registry) error {
	products, err := ingest.LoadProducts(cfg.Data.Dir + "/" + cfg.Data.ProductsFile)
	if err != nil {
		return fmt.Errorf("loading product catalog: %w", err)
	}
	customers, err := ingest.LoadCustomers(cfg.Data.Dir + "/" + cfg.Data.CustomersFile)
	if err != nil {
		return fmt.Errorf("loading customer data: %w", err)
	}

	writer, err := sink.NewEventWriter(cfg.Output.EventsFile)
	if err != nil {
		return err
	}
	defer writer.Close()

	eng := engine.New(cfg, products, logger, registry, telemetry.Tracer("storesight"))
	proc := engine.NewStreamProcessor(eng, products, customers,
		cfg.Detection, writer.Write, logger)

	client := stream.NewClient(cfg.Stream, logger, registry)
	err = client.Run(ctx, func(ctx context.Context, r *record.Record) error {
		return proc.Ingest(ctx, r)
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	// Flush with a fresh context so a Ctrl-C still produces a summary.
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	summary, err := proc.Flush(flushCtx)
	if err != nil {
		return err
	}
	if err := sink.WriteSummary(cfg.Output.SummaryFile, summary); err != nil {
		return err
	}

	logger.InfoContext(ctx, "stream run complete",
		"run_id", summary.RunID,
		"events", summary.TotalEvents)
	return nil
}

// persist stores the run in Postgres when a database URL is configured.
func persist(ctx context.Context, cfg *config.Config, logger *slog.Logger, result *engine.Result) error {
	if cfg.Database.URL == "" {
		return nil
	}
	repo, err := sink.NewEventRepository(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer repo.Close()
	return repo.StoreBatch(ctx, result.RunID, result.Events)
}

func mode(streaming bool) string {
	if streaming {
		return "stream"
	}
	return "batch"
}
