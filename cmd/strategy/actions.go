package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rxtech-lab/argo-strategy/internal/config"
	"github.com/rxtech-lab/argo-strategy/internal/datasource"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/metrics"
	"github.com/rxtech-lab/argo-strategy/internal/node"
	"github.com/rxtech-lab/argo-strategy/internal/strategy"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/version"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/rxtech-lab/argo-strategy/pkg/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

func newLogger(level string) (*logger.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return logger.NewLoggerWithLevel(parsed)
}

// runAction replays a strategy step by step and writes the stats and the
// ledger tables into results/<run id>.
func runAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd.String("log-level"))
	if err != nil {
		return err
	}

	defer func() { _ = log.Sync() }()

	cfg, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	source, err := datasource.NewDuckDBSource(cmd.String("data"), log)
	if err != nil {
		return fmt.Errorf("failed to open market data: %w", err)
	}

	defer source.Close()

	registry := prometheus.NewRegistry()

	if addr := cmd.String("metrics-addr"); addr != "" {
		server := serveMetrics(addr, registry, log)
		defer server.Close()
	}

	engine := strategy.NewEngine(strategy.Options{
		History: source,
		Logger:  log,
		Metrics: metrics.New(registry),
	})

	defer func() {
		if err := engine.Close(context.Background()); err != nil {
			log.Warn("failed to stop strategies", zap.Error(err))
		}
	}()

	s, err := engine.Load(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load strategy %s: %w", cfg.Name, err)
	}

	total := s.TotalSteps()
	if limit := int(cmd.Int("steps")); limit > 0 && limit < total {
		total = limit
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(fmt.Sprintf("Replaying %s", cfg.Name)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	start := time.Now()

	for i := 0; i < total; i++ {
		if _, err := s.Step(ctx); err != nil {
			if errors.HasCode(err, errors.ErrCodeStrategyFinished) {
				break
			}

			return fmt.Errorf("play index %d failed: %w", s.PlayIndex()+1, err)
		}

		_ = bar.Add(1)
	}

	_ = bar.Finish()

	runDir := filepath.Join(cmd.String("results"), s.RunID())

	files, err := s.Export(ctx, runDir)
	if err != nil {
		return fmt.Errorf("failed to export ledger: %w", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}

	stats.Files = files

	if err := types.WriteRunStats(filepath.Join(runDir, "stats.yaml"), stats); err != nil {
		return err
	}

	log.Info("replay completed",
		zap.Int64("play_index", s.PlayIndex()),
		zap.Duration("took", time.Since(start)),
		zap.String("results", runDir),
	)

	return printYAML(cmd.Root().Writer, stats)
}

func serveMetrics(addr string, registry *prometheus.Registry, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()

	return server
}

// validateAction parses the config and builds its graph without loading any
// history.
func validateAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return err
	}

	s, err := strategy.New(cfg, strategy.Options{DisableLedger: true})
	if err != nil {
		return err
	}

	defer func() { _ = s.Stop(context.Background()) }()

	_, err = fmt.Fprintf(cmd.Root().Writer, "%s (id %d) is valid: %d nodes, %d edges\n", cfg.Name, cfg.ID, len(cfg.Nodes), len(cfg.Edges))

	return err
}

func schemaAction(_ context.Context, cmd *cli.Command) error {
	schema, err := renderSchema(cmd.String("node"))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if path := cmd.String("output"); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		return os.WriteFile(path, []byte(schema), 0644)
	}

	_, err = fmt.Fprintln(cmd.Root().Writer, schema)

	return err
}

func renderSchema(kind string) (string, error) {
	if kind == "" {
		return config.GenerateSchemaJSON()
	}

	spec, err := node.NewSpec(node.Kind(kind))
	if err != nil {
		return "", err
	}

	return utils.GetSchemaFromConfig(spec)
}

func versionAction(cmd *cli.Command) error {
	_, err := fmt.Fprintln(cmd.Root().Writer, version.GetVersion())

	return err
}

func printYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}

	_, err = w.Write(data)

	return err
}
