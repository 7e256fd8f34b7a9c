package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-composer/internal/api"
	"github.com/heimdex/heimdex-composer/internal/config"
	"github.com/heimdex/heimdex-composer/internal/db"
	"github.com/heimdex/heimdex-composer/internal/logging"
	"github.com/heimdex/heimdex-composer/internal/project"
	"github.com/heimdex/heimdex-composer/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		port     int
		noWarmer bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the project over the loopback HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = cfg.Port()
			}
			return runServe(cmd.Context(), ctx, cfg, port, !noWarmer)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on (127.0.0.1 only)")
	cmd.Flags().BoolVar(&noWarmer, "no-warmer", false, "Do not build pending items in the background")
	return cmd
}

func runServe(parent context.Context, cc *commandContext, cfg *config.EnvConfig, port int, warm bool) error {
	startTime := time.Now()
	logger := cc.logger()
	logger.Info("starting composer", "version", config.Version, "data_dir", cfg.DataDir(), "config", cfg.Source())

	lock, err := cc.lockProject(true)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := store.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(parent, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	session := newSession(cfg, repo, logger)
	defer session.Close()

	loaded, err := session.Load(parent)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	out := os.Stdout
	fmt.Fprintln(out)
	fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintf(out, "║  %-57s║\n", "HEIMDEX COMPOSER v"+config.Version)
	fmt.Fprintln(out, "╠═══════════════════════════════════════════════════════════╣")
	fmt.Fprintf(out, "║  API URL:    http://127.0.0.1:%-28d║\n", port)
	fmt.Fprintf(out, "║  Auth Token: %-45s║\n", authToken)
	fmt.Fprintf(out, "║  Items:      %-45d║\n", loaded)
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var warmer *project.Warmer
	if warm {
		warmer = project.NewWarmer(session, cfg.WarmInterval(), logging.WithComponent(logger, "warmer"))
		go warmer.Start(ctx)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:       port,
		Session:    session,
		Repository: repo,
		Warmer:     warmer,
		Logger:     logging.WithComponent(logger, "api"),
		StartTime:  startTime,
		Version:    config.Version,
		ExportDir:  cfg.ExportDir(),
		ExportFPS:  cfg.ExportFPS(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			cancel()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(ctx context.Context, repo store.Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, store.KeyAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, store.KeyAuthToken, token); err != nil {
		return "", err
	}

	return token, nil
}
