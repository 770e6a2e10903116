package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/voicebridge/internal/history"
	"github.com/msto63/voicebridge/internal/server"
	"github.com/msto63/voicebridge/pkg/core/logging"
	"github.com/msto63/voicebridge/pkg/core/version"
)

const pruneInterval = time.Hour

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the voicebridge HTTP and websocket API.

Routes:
  GET  /health
  GET  /api/v1/status
  POST /api/v1/tts/synthesize
  POST /api/v1/stt/transcribe
  POST /api/v1/stt/detect-language
  GET  /api/v1/history
  GET  /api/v1/ws

An engine that fails to initialize is logged and its routes answer 503.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := appConfig
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger := logging.New("serve")
	deps := server.Deps{Logger: logging.New("server")}

	store, err := newCache(ctx, cfg.Cache)
	if err != nil {
		logger.Warn("Audio cache unavailable, continuing without", "backend", cfg.Cache.Backend, "error", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	hist, err := openHistory(cfg.History)
	if err != nil {
		logger.Warn("History unavailable", "path", cfg.History.Path, "error", err)
		hist = nil
	}
	if hist != nil {
		defer hist.Close()
		deps.History = hist
		go pruneHistory(ctx, hist, cfg.History.Retention.Duration, logger)
	}

	if p, err := newTTS(ctx, cfg, store); err != nil {
		logger.Error("TTS unavailable", "error", err)
	} else {
		deps.TTS = p
	}

	if p, cleanup, err := newSTT(ctx, cfg); err != nil {
		logger.Error("STT unavailable", "error", err)
	} else {
		defer cleanup()
		deps.STT = p
	}

	deps.Health = newHealthRegistry(cfg, store, hist)
	logger.Info("Startup health", "summary", deps.Health.CheckWithTimeout(ctx, cfg.TTS.ProbeTimeout.Duration).String())

	srv := server.New(server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout.Duration,
		WriteTimeout:   cfg.Server.WriteTimeout.Duration,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Version:        version.Platform,
	}, deps)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Fprintf(os.Stderr, "voicebridge listening on http://%s\n", srv.Address())

	select {
	case <-sigCh:
		logger.Info("Shutting down")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// pruneHistory deletes entries past the retention period until ctx is done
func pruneHistory(ctx context.Context, store *history.Store, retention time.Duration, logger *logging.Logger) {
	if retention <= 0 {
		return
	}

	prune := func() {
		removed, err := store.Prune(ctx, retention)
		if err != nil {
			logger.Warn("History pruning failed", "error", err)
			return
		}
		if removed > 0 {
			logger.Info("Pruned history", "removed", removed)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
