package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/model"
	"github.com/Veraticus/nourish/internal/service"
)

const predictionColumns = `id, request_id, user_id, meal_plan, meal_plan_code,
	calories, protein, carbs, fats, profile, model_version, created_at`

// SavePrediction inserts a prediction and the profile that produced it.
// Lock contention is reported as a retryable error.
func (s *SQLiteStorage) SavePrediction(ctx context.Context, p *model.StoredPrediction) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := validatePrediction(p); err != nil {
		return err
	}

	profile, err := json.Marshal(p.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO predictions (`+predictionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		nullString(p.RequestID),
		nullString(p.UserID),
		p.MealPlan,
		p.MealPlanCode,
		p.Calories,
		p.Protein,
		p.Carbs,
		p.Fats,
		string(profile),
		p.ModelVersion,
		p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", classify(err))
	}
	return nil
}

// GetPrediction returns one prediction by ID.
func (s *SQLiteStorage) GetPrediction(ctx context.Context, id string) (*model.StoredPrediction, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = ?`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prediction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPredictions returns predictions newest first.
func (s *SQLiteStorage) ListPredictions(ctx context.Context, filter service.PredictionFilter) ([]model.StoredPrediction, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	where, args := filterClause(filter)
	limit := filter.Limit
	if limit == 0 {
		limit = service.DefaultHistoryLimit
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions`+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var out []model.StoredPrediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return out, nil
}

// CountPredictions counts the predictions matching the filter's user and time
// window. Limit and offset are ignored.
func (s *SQLiteStorage) CountPredictions(ctx context.Context, filter service.PredictionFilter) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	if err := validateFilter(service.PredictionFilter{Since: filter.Since, Until: filter.Until}); err != nil {
		return 0, err
	}

	where, args := filterClause(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", classify(err))
	}
	return n, nil
}

func filterClause(filter service.PredictionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if filter.Until != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.Until.UTC())
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row scanner) (*model.StoredPrediction, error) {
	var (
		p         model.StoredPrediction
		requestID sql.NullString
		userID    sql.NullString
		profile   string
		createdAt time.Time
	)
	err := row.Scan(
		&p.ID,
		&requestID,
		&userID,
		&p.MealPlan,
		&p.MealPlanCode,
		&p.Calories,
		&p.Protein,
		&p.Carbs,
		&p.Fats,
		&profile,
		&p.ModelVersion,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan prediction: %w", err)
	}

	p.RequestID = requestID.String
	p.UserID = userID.String
	p.CreatedAt = createdAt.UTC()
	if err := json.Unmarshal([]byte(profile), &p.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile for prediction %s: %w", p.ID, err)
	}
	// The user ID lives in its own column.
	p.Profile.UserID = p.UserID
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
