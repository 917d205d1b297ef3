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

	"github.com/spf13/cobra"

	handler "recognition-review-backend/api"
	"recognition-review-backend/pkg/config"
	"recognition-review-backend/pkg/database"
	"recognition-review-backend/pkg/logging"
	"recognition-review-backend/pkg/models"
	"recognition-review-backend/pkg/telemetry"
	"recognition-review-backend/pkg/utils"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	tokenRole      string
	tokenOwnerKind string
	tokenOwnerID   string
	tokenName      string

	rootCmd = &cobra.Command{
		Use:           "reviewd",
		Short:         "Recognition and event approval review service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger = logging.New(os.Stdout, cfg.LogLevel, cfg.IsProduction())
			slog.SetDefault(logger)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE:  runMigrate,
	}

	recomputeCmd = &cobra.Command{
		Use:   "recompute [owner-id...]",
		Short: "Re-derive and store recognition status for the given owners",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRecompute,
	}

	tokenCmd = &cobra.Command{
		Use:   "token [actor-id]",
		Short: "Issue an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
)

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(models.RoleCompliance), "reviewer role (officer, adviser, compliance)")
	tokenCmd.Flags().StringVar(&tokenOwnerKind, "owner-kind", "organization", "kind of the owner the actor is bound to")
	tokenCmd.Flags().StringVar(&tokenOwnerID, "owner-id", "", "owner the actor is bound to")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")

	rootCmd.AddCommand(serveCmd, migrateCmd, recomputeCmd, tokenCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "recognition-review",
		Environment: cfg.Environment,
		Stdout:      cfg.TraceStdout,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	store, err := database.GetDatabase(ctx, handler.DatabaseConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer database.CloseDatabase()

	app, err := handler.NewApp(cfg, store, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required for migrate")
	}
	store, err := database.NewPostgresStore(cmd.Context(), cfg.PostgresDSN, cfg.ReviewLockTimeout)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := database.Migrate(cmd.Context(), store.DB()); err != nil {
		return err
	}
	logger.Info("schema migrated")
	return nil
}

func runRecompute(cmd *cobra.Command, args []string) error {
	store, err := database.NewDatabase(cmd.Context(), handler.DatabaseConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	app, err := handler.NewApp(cfg, store, logger)
	if err != nil {
		return err
	}
	var failed int
	for _, ownerID := range args {
		status, err := app.Service.RecomputeRecognition(cmd.Context(), ownerID)
		if err != nil {
			failed++
			logger.Error("recompute failed", "owner_id", ownerID, "error", err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ownerID, status)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d owners failed to recompute", failed, len(args))
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.IsProduction() {
		return errors.New("token issuing is disabled in production")
	}
	actor := &models.Actor{ID: args[0], Name: tokenName, Role: models.ReviewRole(tokenRole)}
	switch actor.Role {
	case models.RoleOfficer, models.RoleAdviser, models.RoleCompliance:
	default:
		return fmt.Errorf("unknown role %q", tokenRole)
	}
	if tokenOwnerID != "" {
		kind, err := models.ParseOwnerKind(tokenOwnerKind)
		if err != nil {
			return err
		}
		actor.Owner = models.OwnerRef{Kind: kind, ID: tokenOwnerID}
	}

	token, expiresIn, err := utils.NewJWTService(cfg.JWTSecret, cfg.TokenTTL).GenerateAccessToken(actor)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	logger.Debug("token issued", "actor_id", actor.ID, "role", actor.Role, "expires_in", expiresIn)
	return nil
}
