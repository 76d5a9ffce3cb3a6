package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/modrefresh"
	"github.com/GoCodeAlone/modrefresh/admin"
	"github.com/GoCodeAlone/modrefresh/configwatch"
	"github.com/GoCodeAlone/modrefresh/engine"
	"github.com/GoCodeAlone/modrefresh/hostsim"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// RunOptions holds the flags of the run command
type RunOptions struct {
	ConfigFile      string
	LogLevel        string
	Modules         int
	RefreshDelay    time.Duration
	UpdateInterval  time.Duration
	ShutdownTimeout time.Duration
}

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the installation engine against an in-memory module host",
		Long: `Run installs a set of demo modules into an in-memory host, then
periodically updates random modules. Every update marks the module for refresh;
the refresh coordinator batches the requests of a cycle and refreshes them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "Configuration file (yaml, toml or json)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().IntVar(&opts.Modules, "modules", 8, "Number of demo modules to install")
	cmd.Flags().DurationVar(&opts.RefreshDelay, "refresh-delay", 250*time.Millisecond, "Simulated host refresh duration")
	cmd.Flags().DurationVar(&opts.UpdateInterval, "update-interval", 2*time.Second, "Interval between simulated module updates (0 disables)")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "Time allowed for graceful shutdown")

	return cmd
}

// Run wires the coordinator, engine, admin server and config watcher and
// blocks until ctx ends.
func Run(ctx context.Context, opts *RunOptions) error {
	logger, err := newLogger(opts.LogLevel)
	if err != nil {
		return err
	}

	cfg, err := modrefresh.LoadConfig(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	host := hostsim.New(hostsim.WithRefreshDelay(opts.RefreshDelay), hostsim.WithLogger(logger))
	self := host.Install("refreshd", "log/slog")
	if cfg.SelfModule == "" {
		cfg.SelfModule = self.ID().String()
	}
	demo := installDemoModules(host, opts.Modules)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := modrefresh.NewMetrics(registry)
	if err != nil {
		return err
	}

	coordinator, err := modrefresh.NewCoordinatorFromConfig(host, cfg,
		modrefresh.WithLogger(logger), modrefresh.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	if err := coordinator.RegisterObserver(modrefresh.NewFunctionalObserver("refreshd-log",
		func(_ context.Context, event cloudevents.Event) error {
			logger.Debug("Refresh event", "type", event.Type(), "id", event.ID(), "data", string(event.Data()))
			return nil
		})); err != nil {
		return err
	}

	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithDetachedWorkers(cfg.DetachedWorkers),
		engine.WithCycleSchedule(cfg.CycleSchedule),
	)
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	server := admin.New(coordinator, eng, admin.WithGatherer(registry), admin.WithLogger(logger))
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe(cfg.AdminAddr)
	}()

	var watcher *configwatch.Watcher
	if opts.ConfigFile != "" {
		watcher = configwatch.New(opts.ConfigFile, coordinator.SetConfig, configwatch.WithLogger(logger))
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("Config hot reload disabled", "error", err)
			watcher = nil
		}
	}

	if opts.UpdateInterval > 0 && len(demo) > 0 {
		go simulateUpdates(ctx, eng, coordinator, demo, opts.UpdateInterval)
	}

	logger.Info("refreshd started", "modules", len(demo), "self", self.ID(), "admin", cfg.AdminAddr)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		if runErr != nil {
			runErr = fmt.Errorf("admin server failed: %w", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, runErr)
	if watcher != nil {
		errs = append(errs, watcher.Stop())
	}
	errs = append(errs, server.Shutdown(shutdownCtx))
	errs = append(errs, eng.Stop(shutdownCtx))
	errs = append(errs, host.Wait(shutdownCtx))

	logger.Info("refreshd stopped")
	return errors.Join(errs...)
}

func newLogger(level string) (modrefresh.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return modrefresh.NewSlogLogger(slog.New(handler)), nil
}

func installDemoModules(host *hostsim.Host, n int) []*hostsim.Module {
	modules := make([]*hostsim.Module, 0, n)
	for i := range n {
		var caps []modrefresh.Capability
		// Every fourth module serves HTTP, so some batches go detached.
		if i%4 == 3 {
			caps = append(caps, "net/http")
		}
		modules = append(modules, host.Install(fmt.Sprintf("demo-module-%d", i), caps...))
	}
	return modules
}

// simulateUpdates queues an update task for a random module on every tick.
// The update marks its module for refresh from inside the cycle.
func simulateUpdates(ctx context.Context, eng *engine.Engine, c *modrefresh.Coordinator, modules []*hostsim.Module, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := modules[rand.IntN(len(modules))]
			eng.Enqueue(engine.NewTask("update "+m.Name(), engine.SortKeyUpdate,
				func(_ context.Context, ic modrefresh.InstallContext) error {
					ic.Log("Updated module", "module", m.Name())
					c.MarkForRefresh(ic, m)
					return nil
				}))
		}
	}
}
