package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/config"
	"github.com/Veraticus/nourish/internal/inference"
	"github.com/Veraticus/nourish/internal/storage"
)

func loadSettings() (*config.Settings, error) {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("Invalid configuration", err)
	}
	return s, nil
}

// initStorage opens the prediction history database and brings its schema up
// to date.
func initStorage(ctx context.Context, s *config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(s.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Opened prediction history", "path", store.Path())
	return store, nil
}

// loadModel builds the inference context from the configured bundle.
func loadModel(s *config.Settings, opts ...inference.ContextOption) (*inference.Context, error) {
	opts = append([]inference.ContextOption{inference.WithHeightUnit(s.HeightUnit)}, opts...)
	ictx, err := inference.Load(s.Artifacts, opts...)
	if err != nil {
		if errors.Is(err, common.ErrModelUnavailable) {
			return nil, common.NewUserError(
				fmt.Sprintf("No usable model bundle in %s; run `nourish train` first", s.Artifacts), err)
		}
		return nil, err
	}
	return ictx, nil
}
