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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/chat"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/config"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/dashboard"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/intake"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/notify"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/orchestrator"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/telemetry"
)

const version = "1.0.0"

const usage = `usage: taskrelay <bot|worker|all>

  bot     chat intake and sheet change announcements
  worker  watch the sheet and run local actions for WORKER_ID
  all     both in one process`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	mode, err := config.ParseMode(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n%s\n", err, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(telemetry.NewLogHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
	slog.SetDefault(logger)

	if err := cfg.Validate(mode); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	instanceID := uuid.NewString()
	slog.Info("starting taskrelay",
		"version", version,
		"mode", mode,
		"worker_id", cfg.Pipeline.WorkerID,
		"instance_id", instanceID,
		"store", cfg.Store.Backend)

	if err := run(mode, cfg, instanceID); err != nil {
		slog.Error("taskrelay failed", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func run(mode config.Mode, cfg *config.Config, instanceID string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	telemetryOpts := telemetry.Options{
		ServiceName: "taskrelay",
		InstanceID:  instanceID,
		WorkerID:    cfg.Pipeline.WorkerID,
	}
	if cfg.OTelStdout {
		telemetryOpts.SpanWriter = os.Stderr
	}
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetryOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("failed to flush spans", "error", err)
		}
	}()

	st, closeStore, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := orchestrator.NewMetrics(reg)
	feed := orchestrator.NewFeed(500)

	// Workers only post outcomes; only the bot reads the channel
	discordOpts := []chat.DiscordOption{chat.WithChannels(cfg.DiscordChannelID)}
	if mode == config.ModeWorker {
		discordOpts = append(discordOpts, chat.SendOnly())
	}
	discord, err := chat.OpenDiscord(cfg.DiscordToken, discordOpts...)
	if err != nil {
		return err
	}
	defer discord.Close()

	notifier := notify.New(discord, cfg.DiscordChannelID,
		notify.WithAllFields(cfg.NotifyAllFields),
		notify.WithFailureHook(metrics.NotificationFailed))

	opts := []orchestrator.ServerOption{
		orchestrator.WithNotifier(notifier, mode == config.ModeBot || mode == config.ModeAll),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithFeed(feed),
	}
	if pg, ok := st.(*store.Postgres); ok {
		wake, err := pg.Listen(ctx)
		if err != nil {
			slog.Warn("row notifications unavailable, polling only", "error", err)
		} else {
			opts = append(opts, orchestrator.WithWake(wake))
		}
	}
	server := orchestrator.NewServer(st, cfg.Pipeline, opts...)

	if mode == config.ModeWorker || mode == config.ModeAll {
		if err := registerActions(server, cfg.ActionsFile); err != nil {
			return err
		}
	}

	errCh := make(chan error, 3)

	if mode == config.ModeBot || mode == config.ModeAll {
		adapter := intake.New(discord, server.Writer(), st, intake.WithRegisterer(reg))
		go func() {
			if err := adapter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("chat intake: %w", err)
			}
		}()
	}

	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("dispatcher: %w", err)
		}
	}()

	// Start dashboard, metrics and health endpoints
	svc := dashboard.NewService(st, server.Writer(), feed, server.GetHandlers)
	httpServer := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: dashboard.NewRouter(dashboard.NewHandler(svc), reg, dashboard.HealthInfo{
			Mode:       string(mode),
			WorkerID:   cfg.Pipeline.WorkerID,
			InstanceID: instanceID,
			Version:    version,
			Store:      cfg.Store.Backend,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("dashboard and metrics server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case runErr = <-errCh:
		slog.Error("component failed, shutting down", "error", runErr)
		cancel()
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("dispatcher shutdown: %w", err))
	}
	return runErr
}

// registerActions binds categories to local actions. Without an actions file
// only the built-in "note" category is handled.
func registerActions(server *orchestrator.Server, path string) error {
	if path == "" {
		server.HandleFunc("note", orchestrator.LogHandler)
		return nil
	}

	actions, err := config.LoadActions(path)
	if err != nil {
		return err
	}
	for _, a := range actions {
		actionConfig := orchestrator.DefaultActionConfig()
		if a.Timeout > 0 {
			actionConfig.Timeout = a.Timeout
		}

		if a.Builtin == "log" {
			server.HandleFunc(a.Category, orchestrator.LogHandler, actionConfig)
			continue
		}
		server.HandleFunc(a.Category, orchestrator.CommandHandler(orchestrator.CommandSpec{
			Command: a.Argv(),
			Dir:     a.Dir,
			Env:     a.EnvList(),
		}), actionConfig)
	}
	slog.Info("actions registered", "file", path, "categories", server.GetHandlers())
	return nil
}
