// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/nourish/internal/model"
)

// DefaultHistoryLimit caps history queries that do not set a limit.
const DefaultHistoryLimit = 50

// PredictionFilter defines filtering options for prediction history queries.
type PredictionFilter struct {
	Since  *time.Time
	Until  *time.Time
	UserID string
	Limit  int
	Offset int
}

// PredictionStore defines the contract for the prediction history layer.
type PredictionStore interface {
	// Prediction operations
	SavePrediction(ctx context.Context, p *model.StoredPrediction) error
	GetPrediction(ctx context.Context, id string) (*model.StoredPrediction, error)
	ListPredictions(ctx context.Context, filter PredictionFilter) ([]model.StoredPrediction, error)
	CountPredictions(ctx context.Context, filter PredictionFilter) (int, error)

	// Maintenance
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
