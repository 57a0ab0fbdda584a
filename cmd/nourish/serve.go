package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/nourish/internal/api"
	"github.com/Veraticus/nourish/internal/inference"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve diet recommendations over HTTP",
		Long: `Load the trained bundle and answer POST /predict/recommendation.

The listen address comes from --addr, server.addr, or the PORT environment
variable, in that order. Predictions are recorded to the history database
unless database.enabled is false.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default :8000 or :$PORT)")
	cmd.Flags().StringSlice("cors-origin", nil, "allowed CORS origin (repeatable, default *)")
	cmd.Flags().Bool("no-history", false, "do not record predictions")

	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.cors_origins", cmd.Flags().Lookup("cors-origin"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	noHistory, _ := cmd.Flags().GetBool("no-history")

	s, err := loadSettings()
	if err != nil {
		return err
	}

	ictx, err := loadModel(s)
	if err != nil {
		return err
	}

	var (
		svcOpts []inference.Option
		apiOpts = []api.Option{api.WithCORSOrigins(s.Server.CORSOrigins...)}
	)
	if s.Database.Enabled && !noHistory {
		store, err := initStorage(ctx, s)
		if err != nil {
			return fmt.Errorf("failed to open prediction history: %w", err)
		}
		defer func() { _ = store.Close() }()
		svcOpts = append(svcOpts, inference.WithRecorder(store))
		apiOpts = append(apiOpts, api.WithStore(store))
	}

	svc := inference.NewService(ictx, svcOpts...)
	srv := &http.Server{
		Addr:              s.Server.Addr,
		Handler:           api.NewRouter(api.NewHandler(svc, apiOpts...)),
		ReadTimeout:       s.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	interrupts.SetHint("Finishing in-flight requests...")
	slog.Info("🥗 Serving diet recommendations",
		"addr", s.Server.Addr,
		"model_version", ictx.ModelVersion(),
		"features", ictx.Schema().Len(),
		"history", s.Database.Enabled && !noHistory)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	snap := ictx.Diagnostics().Snapshot()
	slog.Info("Server stopped",
		"predictions", snap.Predictions,
		"failures", snap.Failures,
		"unrecorded", snap.Unrecorded)
	return nil
}
