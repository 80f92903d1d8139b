package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/bringup/internal/config"
	"github.com/loykin/bringup/internal/history"
	hfactory "github.com/loykin/bringup/internal/history/factory"
	"github.com/loykin/bringup/internal/metrics"
	"github.com/loykin/bringup/internal/server"
	"github.com/loykin/bringup/internal/store"
	sfactory "github.com/loykin/bringup/internal/store/factory"
	"github.com/loykin/bringup/internal/supervisor"
)

// createUpCommand creates the up subcommand.
func createUpCommand(global *GlobalFlags, flags *UpFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start every configured service and supervise until signalled",
		Long: `Up reclaims declared ports when enabled, launches every service in
config order with settle delays between them, prints a status summary, and
blocks until SIGINT or SIGTERM, then stops all children within the grace
timeout.

With --detach the supervisor re-executes itself into its own session,
writes its PID to the configured pid_file, and returns; use "bringup down"
to stop it.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runUp(global, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Detach, "detach", false, "run the supervisor in the background (requires pid_file)")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "log file for the detached supervisor's own output")
	return cmd
}

func runUp(global *GlobalFlags, flags *UpFlags) error {
	c, err := config.Load(global.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if flags.Detach {
		if c.PidFile == "" {
			return fmt.Errorf("--detach requires pid_file in %s", global.ConfigPath)
		}
		return daemonize(c.PidFile, flags.LogFile)
	}

	slogger := c.SlogConfig().NewSlogger()
	slog.SetDefault(slogger)

	envv, err := c.BuildEnv()
	if err != nil {
		return err
	}

	if c.PidFile != "" {
		if err := writePidFile(c.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer func() { _ = removePidFile(c.PidFile) }()
	}

	st, sink, err := openRecorders(c, slogger)
	if err != nil {
		return err
	}
	if st != nil {
		defer func() { _ = st.Close() }()
	}

	sup := supervisor.New(supervisor.Options{
		Specs:             c.Specs(),
		Env:               envv,
		SettleDelay:       c.SettleDelay,
		GraceTimeout:      c.GraceTimeout,
		ReclaimPorts:      c.ReclaimPorts,
		ExtraReclaimPorts: c.ExtraReclaimPorts,
		OnLaunchFailure:   c.OnLaunchFailure,
		Logger:            slogger,
		Store:             st,
		History:           sink,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			slogger.Warn("metrics registration failed", "err", err)
		} else {
			startMetrics(ctx, c.Metrics.Listen, sup, slogger)
		}
	}

	if c.Server.Enabled {
		srv, err := server.NewServer(c.Server.Listen, c.Server.BasePath, sup.Registry(),
			func() string { return string(sup.State()) })
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		slogger.Info("status API listening", "addr", c.Server.Listen, "base", c.Server.BasePath)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return sup.Run(ctx)
}

// openRecorders opens the optional state store and history sink.
func openRecorders(c *config.Config, slogger *slog.Logger) (store.Store, history.Sink, error) {
	var st store.Store
	if c.Store.Enabled {
		s, err := sfactory.NewFromDSN(c.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = s.EnsureSchema(ctx)
		cancel()
		if err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("store schema: %w", err)
		}
		st = s
	}
	var sink history.Sink
	if c.History.Enabled {
		h, err := hfactory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			if st != nil {
				_ = st.Close()
			}
			return nil, nil, fmt.Errorf("open history sink: %w", err)
		}
		sink = h
	}
	if st != nil {
		slogger.Info("state store enabled", "dsn", c.Store.DSN)
	}
	if sink != nil {
		slogger.Info("history sink enabled", "dsn", c.History.DSN)
	}
	return st, sink, nil
}

// startMetrics serves /metrics and keeps per-service resource gauges fresh
// while the context lives.
func startMetrics(ctx context.Context, addr string, sup *supervisor.Supervisor, slogger *slog.Logger) {
	sampler := metrics.NewSampler(5*time.Second, func() []metrics.Target {
		var targets []metrics.Target
		for _, st := range sup.Registry().Statuses() {
			if st.Running {
				targets = append(targets, metrics.Target{Name: st.Name, PID: st.PID})
			}
		}
		return targets
	})
	go sampler.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	slogger.Info("metrics listening", "addr", addr)
}

// createDownCommand creates the down subcommand.
func createDownCommand(global *GlobalFlags, flags *DownFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop a detached supervisor via its pid file",
		Long: `Down reads the supervisor PID from the configured pid_file, sends it
SIGTERM, and waits for it to exit. The supervisor then runs its normal
shutdown sequence for every managed service.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDown(global, flags)
		},
	}
	cmd.Flags().DurationVar(&flags.Wait, "wait", 15*time.Second, "how long to wait for the supervisor to exit")
	return cmd
}

func runDown(global *GlobalFlags, flags *DownFlags) error {
	c, err := config.Load(global.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.PidFile == "" {
		return fmt.Errorf("pid_file not set in %s; down only works for detached runs", global.ConfigPath)
	}
	pid, err := readPidFile(c.PidFile)
	if err != nil {
		return fmt.Errorf("read pid file: %w", err)
	}
	if !pidAlive(pid) {
		fmt.Printf("supervisor (pid %d) is not running; removing stale pid file\n", pid)
		_ = removePidFile(c.PidFile)
		return nil
	}

	fmt.Printf("stopping supervisor (pid %d)\n", pid)
	if err := terminatePid(pid); err != nil {
		return fmt.Errorf("signal supervisor: %w", err)
	}

	deadline := time.Now().Add(flags.Wait)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			fmt.Println("supervisor stopped")
			_ = removePidFile(c.PidFile)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("supervisor (pid %d) still running after %s", pid, flags.Wait)
}
