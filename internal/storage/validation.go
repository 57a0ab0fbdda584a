package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/nourish/internal/model"
	"github.com/Veraticus/nourish/internal/service"
)

// MaxHistoryLimit caps a single history page.
const MaxHistoryLimit = 1000

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrInvalidDateRange  = errors.New("start date must be before end date")
	ErrInvalidPrediction = errors.New("invalid prediction")
	ErrInvalidFilter     = errors.New("invalid prediction filter")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validatePrediction validates a prediction before it is stored.
func validatePrediction(p *model.StoredPrediction) error {
	if p == nil {
		return fmt.Errorf("%w: prediction", ErrNilParameter)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidPrediction)
	}
	if strings.TrimSpace(p.MealPlan) == "" {
		return fmt.Errorf("%w: missing meal plan", ErrInvalidPrediction)
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing creation time", ErrInvalidPrediction)
	}

	// SQLite stores NaN as NULL, which the NOT NULL columns reject.
	for name, v := range map[string]float64{
		"calories": p.Calories,
		"protein":  p.Protein,
		"carbs":    p.Carbs,
		"fats":     p.Fats,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidPrediction, name)
		}
	}
	return nil
}

// validateFilter validates a history query.
func validateFilter(f service.PredictionFilter) error {
	if f.Limit < 0 || f.Limit > MaxHistoryLimit {
		return fmt.Errorf("%w: limit must be between 0 and %d", ErrInvalidFilter, MaxHistoryLimit)
	}
	if f.Offset < 0 {
		return fmt.Errorf("%w: offset cannot be negative", ErrInvalidFilter)
	}
	if f.Since != nil && f.Until != nil && f.Until.Before(*f.Since) {
		return fmt.Errorf("%w: until %v is before since %v", ErrInvalidDateRange, *f.Until, *f.Since)
	}
	return nil
}
