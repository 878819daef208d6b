package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/classroomgames/tugquiz/internal/config"
	"github.com/classroomgames/tugquiz/internal/logging"
	"github.com/classroomgames/tugquiz/internal/session"
	"github.com/classroomgames/tugquiz/internal/statestore"
	"github.com/classroomgames/tugquiz/internal/storage"
	"github.com/classroomgames/tugquiz/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Session Engine daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	ctx := context.Background()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	if cfg.JWTSigningKey == "" {
		return errors.New("jwt signing key is required (--jwt-signing-key or TUGQUIZ_JWT_SIGNING_KEY)")
	}

	if err := storage.Migrate(ctx, cfg.PostgresDSN); err != nil {
		return err
	}

	pool, err := storage.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := storage.New(pool)

	rdb, err := statestore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	stateStore := statestore.New(rdb)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := session.NewManager(rootCtx, store, stateStore, cfg.IdleHibernateTimeout, log)
	go manager.RunIdleSweeper(rootCtx, cfg.IdleSweepInterval)

	server := transport.New(cfg, manager, log)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
