package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"multimodal-pipeline/internal/api"
	"multimodal-pipeline/internal/config"
	"multimodal-pipeline/internal/health"
	"multimodal-pipeline/internal/logging"
	"multimodal-pipeline/internal/mcp"
	"multimodal-pipeline/internal/metrics"
	"multimodal-pipeline/internal/pipeline"
	"multimodal-pipeline/internal/registry"
	"multimodal-pipeline/internal/services"
	"multimodal-pipeline/internal/store"
	"multimodal-pipeline/pkg/models"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Multimodal multi-stage workflow orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./config.yaml or ./config/config.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and MCP endpoints",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "workflows",
			Short: "Print the endpoint and workflow catalog as YAML",
			RunE: func(cmd *cobra.Command, args []string) error {
				return printCatalog(cmd.OutOrStdout(), configPath)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Probe every model backend once and exit non-zero when degraded",
			RunE: func(cmd *cobra.Command, args []string) error {
				return check(cmd.Context(), cmd.OutOrStdout(), configPath)
			},
		},
	)
	return root
}

// app bundles the wired components.
type app struct {
	cfg          *config.Config
	logger       *logging.Logger
	registry     *registry.Registry
	catalog      *registry.Catalog
	store        *store.Store
	metrics      *metrics.Recorder
	orchestrator *pipeline.Orchestrator
	reporter     *health.Reporter
}

func newApp(configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)

	reg, cat, err := registry.Load(cfg.Catalog.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	rec := metrics.New()
	st := store.New(cfg.Pipeline.HistoryCapacity)
	invoker := services.NewInvoker(
		services.NewHTTPModelClient(&http.Client{}),
		services.WithBackoffUnit(cfg.Pipeline.BackoffUnit),
		services.WithLogger(logger.With("component", "invoker")),
		services.WithMetrics(rec),
	)
	orch := pipeline.NewOrchestrator(reg, cat, invoker, st,
		pipeline.WithLogger(logger.With("component", "orchestrator")),
		pipeline.WithMetrics(rec),
		pipeline.WithStrictWorkflows(cfg.Pipeline.StrictWorkflows),
		pipeline.WithDefaults(cfg.Pipeline.DefaultMaxStages, cfg.Pipeline.DefaultTimeout),
	)
	reporter := health.NewReporter(reg, st,
		health.WithTimeout(cfg.Health.Timeout),
		health.WithMetrics(rec),
	)

	return &app{
		cfg:          cfg,
		logger:       logger,
		registry:     reg,
		catalog:      cat,
		store:        st,
		metrics:      rec,
		orchestrator: orch,
		reporter:     reporter,
	}, nil
}

// handler builds the echo server with the REST API, metrics and MCP mounted.
func (a *app) handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("multimodal-pipeline"))

	api.NewServer(a.orchestrator, a.registry, a.catalog, a.reporter, a.metrics.Handler()).Register(e)

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(a.orchestrator, a.catalog, a.reporter)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	return e
}

func serve(ctx context.Context, configPath string) error {
	a, err := newApp(configPath, os.Stdout)
	if err != nil {
		return err
	}
	logger := a.logger

	logger.Info("Starting multimodal pipeline",
		"address", a.cfg.Server.Address,
		"endpoints", a.registry.Len(),
		"workflows", len(a.catalog.Workflows()),
		"history_capacity", a.store.Capacity(),
		"strict_workflows", a.cfg.Pipeline.StrictWorkflows,
	)

	server := &http.Server{
		Addr:         a.cfg.Server.Address,
		Handler:      a.handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully", "in_flight", a.store.InFlight())
	}
	return nil
}

func printCatalog(out io.Writer, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	reg, cat, err := registry.Load(cfg.Catalog.File)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	data, err := registry.Marshal(reg, cat)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func check(ctx context.Context, out io.Writer, configPath string) error {
	a, err := newApp(configPath, io.Discard)
	if err != nil {
		return err
	}

	report := a.reporter.Health(ctx)
	for _, ep := range a.registry.Endpoints() {
		h := report.Models[ep.Name]
		line := fmt.Sprintf("%-16s %-10s %5dms", ep.Name, h.Status, h.ResponseTimeMS)
		if h.Error != "" {
			line += "  " + h.Error
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "pipeline: %s\n", report.PipelineStatus)

	if report.PipelineStatus != models.HealthHealthy {
		return &exitError{code: 2}
	}
	return nil
}
