// Package testutil provides shared fixtures for nourish tests: synthetic
// training data, small trained bundles and migrated prediction stores.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/nourish/internal/model"
	"github.com/Veraticus/nourish/internal/service"
	"github.com/Veraticus/nourish/internal/storage"
)

// TestDB wraps an in-memory prediction store.
type TestDB struct {
	Storage service.PredictionStore
	t       testing.TB
}

// SetupTestDB creates a migrated in-memory prediction store that is closed
// when the test finishes.
func SetupTestDB(t testing.TB) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.PredictionStore) error
	Seed           []*model.StoredPrediction
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t testing.TB, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	for _, p := range opts.Seed {
		if err := store.SavePrediction(ctx, p); err != nil {
			t.Fatalf("failed to seed prediction %q: %v", p.ID, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Storage: store, t: t}
}

// MustList returns every stored prediction for a user, newest first.
func (db *TestDB) MustList(userID string) []model.StoredPrediction {
	db.t.Helper()
	got, err := db.Storage.ListPredictions(context.Background(), service.PredictionFilter{
		UserID: userID,
		Limit:  storage.MaxHistoryLimit,
	})
	if err != nil {
		db.t.Fatalf("failed to list predictions: %v", err)
	}
	return got
}

// StoredPrediction builds a valid prediction row for seeding.
func StoredPrediction(id, userID string, at time.Time) *model.StoredPrediction {
	profile := model.NewHealthProfile().Set("age", model.Number(40))
	profile.UserID = userID
	return &model.StoredPrediction{
		Prediction: model.Prediction{
			ID:           id,
			UserID:       userID,
			CreatedAt:    at,
			MealPlan:     MealPlanBalanced,
			ModelVersion: "test",
			Calories:     2000,
			Protein:      80,
			Carbs:        250,
			Fats:         65,
		},
		Profile: *profile,
	}
}
