package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/infrastructure"
	"github.com/Ul012/FOM.tft-timeseries/internal/operations"
	"github.com/Ul012/FOM.tft-timeseries/internal/validation"
	"github.com/Ul012/FOM.tft-timeseries/pkg/contracts"
)

// options are the command line flags
type options struct {
	configPath  string
	step        string
	input       string
	format      string
	metricsAddr string
	version     bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet(config.AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml (defaults to config.yaml or configs/config.yaml)")
	fs.StringVar(&opts.step, "step", config.StepFullPipeline, "step to run: clean, features, dataset, spec or full_pipeline")
	fs.StringVar(&opts.input, "input", "", "raw panel to clean (defaults to paths.raw_file)")
	fs.StringVar(&opts.format, "format", "", "artifact format: parquet or csv (overrides pipeline.format)")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	fs.BoolVar(&opts.version, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch opts.step {
	case config.StepClean, config.StepFeatures, config.StepDataset, config.StepSpec, config.StepFullPipeline:
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unknown step %q", opts.step), nil)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if opts.version {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		slog.Error("tftprep failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run loads the configuration and executes the requested step
func run(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.format != "" {
		cfg.Pipeline.Format = opts.format
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	paths := cfg.ResolvePaths()
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}
	paths.LogPathResolution()

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create pipeline metrics: %w", err)
	}
	if opts.metricsAddr != "" && providers.PrometheusHTTP != nil {
		srv := serveMetrics(opts.metricsAddr, providers.PrometheusHTTP, logger)
		defer srv.Close()
	}

	stageOpts := &operations.StageOptions{
		Config:    cfg,
		Paths:     paths,
		Metrics:   metrics,
		Validator: validation.NewArtifactValidator(logger),
		Logger:    logger,
	}
	manager := operations.NewManager(operations.NewRegistry(), operations.NewConfig())
	for _, step := range operations.NewPipelineStages(stageOpts) {
		if err := manager.RegisterStage(step); err != nil {
			return err
		}
	}
	manager.SetTracer(operations.NewOperationTracer(providers, metrics))

	runID := infrastructure.NewRunID()
	ctx = infrastructure.WithRunID(ctx, runID)
	logger.InfoContext(ctx, "run_start",
		slog.String("run_id", runID),
		slog.String("step", opts.step),
		slog.String("version", contracts.Version),
		slog.String("format", cfg.Pipeline.Format))

	resp, runErr := manager.Execute(ctx, operations.OperationRequest{
		Step:      opts.step,
		InputPath: opts.input,
		Parameters: map[string]interface{}{
			operations.ContextKeyFormat: cfg.Pipeline.Format,
		},
	})
	if resp != nil && resp.Manifest != nil {
		if err := resp.Manifest.SaveToFile(paths.ManifestFile); err != nil {
			logger.ErrorContext(ctx, "manifest_save_failed", slog.String("error", err.Error()))
		}
	}
	if runErr != nil {
		logger.ErrorContext(ctx, "run_failed",
			slog.String("run_id", runID),
			slog.String("error_type", string(apperrors.TypeOf(runErr))),
			slog.String("error", runErr.Error()))
		return runErr
	}

	logger.InfoContext(ctx, "run_complete",
		slog.String("run_id", runID),
		slog.Duration("duration", resp.Duration),
		slog.String("manifest", paths.ManifestFile))
	return nil
}

// serveMetrics exposes the Prometheus handler until the returned server is closed
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics_server_started", slog.String("addr", addr))
	return srv
}
