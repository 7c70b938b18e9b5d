// Command corebit runs the network topology manager and monitoring server:
// the probe scheduler, status engine, notification dispatcher, realtime
// bus and HTTP API all wired from one process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/corebit/corebit-server/internal/api"
	"github.com/corebit/corebit-server/internal/config"
	"github.com/corebit/corebit-server/internal/license"
	"github.com/corebit/corebit-server/internal/linkstats"
	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/notify"
	"github.com/corebit/corebit-server/internal/pipeline"
	"github.com/corebit/corebit-server/internal/probe"
	"github.com/corebit/corebit-server/internal/realtime"
	"github.com/corebit/corebit-server/internal/repository/inmemory"
	"github.com/corebit/corebit-server/internal/resolver"
	"github.com/corebit/corebit-server/internal/scanner"
	"github.com/corebit/corebit-server/internal/scheduler"
	"github.com/corebit/corebit-server/internal/status"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "corebit",
	Short: "CoreBit network topology manager and monitoring server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("corebit %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	store := inmemory.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err = config.ApplySettings(ctx, cfg, store)
	if err != nil {
		log.Warn().Err(err).Msg("failed to apply persisted settings, continuing with environment config")
	}

	watcher, err := config.NewWatcher("license.json", ".env", func(data []byte) {
		lf, err := license.ParseFile(data)
		if err != nil {
			log.Warn().Err(err).Msg("failed to parse reloaded license file")
			return
		}
		store.SetLicenseFile(lf)
		log.Info().Msg("license file reloaded")
	}, func() {
		log.Info().Msg(".env changed, restart to apply")
	}, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("failed to start config watcher, hot-reload disabled")
	} else {
		defer watcher.Stop()
	}

	hub := realtime.NewHub(log.Logger)

	gate := license.NewGate(store)

	statusEngine := status.New(status.Thresholds{OfflineThreshold: cfg.OfflineThreshold}, cfg.PollingInterval, store, log.Logger)
	differencer := linkstats.New(linkstats.Config{StaleGap: 3 * cfg.PollingInterval}, store, log.Logger)
	connResolver := resolver.New(store, log.Logger)

	dispatcher := notify.New(store, log.Logger)
	statusEngine.OnTransition(dispatcher.HandleTransition)

	sink := pipeline.NewSink(store, statusEngine, differencer, connResolver, log.Logger)

	sched := scheduler.New(scheduler.Config{
		Interval:       cfg.PollingInterval,
		MaxConcurrency: cfg.MaxProbeConcurrency,
	}, store, probe.Default(), sink, log.Logger)
	sched.SetCredentialResolver(func(ctx context.Context, device *models.Device) map[string]string {
		if device.CredentialProfileID == "" {
			return device.CustomCredentials
		}
		profile, err := store.GetCredentialProfile(ctx, device.CredentialProfileID)
		if err != nil {
			return device.CustomCredentials
		}
		return models.MergeCredentials(profile.Credentials, device.CustomCredentials)
	})
	sched.Start(ctx)
	defer sched.Stop()

	go func() {
		ticker := time.NewTicker(cfg.PollingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if devices, err := store.ListDevices(ctx); err == nil {
					statusEngine.Sweep(ctx, devices)
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := store.PurgeOlderThan(ctx, cfg.MetricsRetention); err != nil {
					log.Warn().Err(err).Msg("metrics retention sweep failed")
				}
			}
		}
	}()

	if dataDir := os.Getenv("COREBIT_DATA_DIR"); dataDir != "" {
		snapshotter, err := inmemory.NewHistorySnapshotter(store, dataDir, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize notification history snapshot, continuing without it")
		} else {
			snapshotter.Start()
			defer snapshotter.Stop()
		}
	}

	scan := scanner.New(store, log.Logger)
	server := api.New(store, gate, scan, hub, log.Logger)

	httpServer := &http.Server{
		Addr:         ":8080",
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	startMetricsServer(metricsCtx, ":9090")

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	cancel()
	log.Info().Msg("server stopped")
}
