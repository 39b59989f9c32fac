package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/gemini-mind/internal/appconfig"
	"github.com/Sternrassler/gemini-mind/pkg/client"
	"github.com/Sternrassler/gemini-mind/pkg/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "gemini-proxy: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	// Configuration from environment
	cfg, err := appconfig.Load(configFile)
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging)
	logger := logging.NewLogger(logging.ComponentProxy)

	// Create Gemini client
	geminiClient, err := client.New(cfg.Client)
	if err != nil {
		return fmt.Errorf("create Gemini client: %w", err)
	}
	defer geminiClient.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newMux(geminiClient, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("model", cfg.Client.DefaultModel).
			Bool("cache_enabled", cfg.Client.CacheEnabled).
			Msg("Starting Gemini proxy server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("Gemini proxy stopped")
	return nil
}
