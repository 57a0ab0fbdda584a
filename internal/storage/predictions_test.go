package storage

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/model"
	"github.com/Veraticus/nourish/internal/service"
)

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func samplePrediction(id, userID string, at time.Time) *model.StoredPrediction {
	profile := model.NewHealthProfile().
		Set("age", model.Number(34)).
		Set("preferred_cuisine", model.Text("Indian")).
		Set("allergies", model.Null())
	profile.UserID = userID

	return &model.StoredPrediction{
		Prediction: model.Prediction{
			ID:           id,
			RequestID:    "req-" + id,
			UserID:       userID,
			CreatedAt:    at,
			MealPlan:     "Balanced Diet",
			MealPlanCode: 0,
			ModelVersion: "abc123",
			Calories:     2100.5,
			Protein:      84,
			Carbs:        262.5,
			Fats:         70,
		},
		Profile: *profile,
	}
}

func TestSQLiteStorage_SaveAndGetPrediction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	want := samplePrediction("p1", "user-1", baseTime)
	require.NoError(t, store.SavePrediction(ctx, want))

	got, err := store.GetPrediction(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, want.Prediction, got.Prediction)
	assert.Equal(t, "user-1", got.Profile.UserID)
	age, ok := got.Profile.Get("age")
	require.True(t, ok)
	assert.True(t, age.IsNumeric())
	assert.Equal(t, "34", age.String())
	allergies, ok := got.Profile.Get("allergies")
	require.True(t, ok)
	assert.False(t, allergies.IsSet())
}

func TestSQLiteStorage_AnonymousPrediction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	p := samplePrediction("anon", "", baseTime)
	p.RequestID = ""
	require.NoError(t, store.SavePrediction(ctx, p))

	got, err := store.GetPrediction(ctx, "anon")
	require.NoError(t, err)
	assert.Empty(t, got.UserID)
	assert.Empty(t, got.RequestID)
}

func TestSQLiteStorage_GetPredictionNotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetPrediction(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_DuplicateID(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.SavePrediction(ctx, samplePrediction("p1", "u", baseTime)))
	err := store.SavePrediction(ctx, samplePrediction("p1", "u", baseTime))
	require.Error(t, err)
	assert.False(t, common.IsRetryable(err), "constraint violations are permanent")
}

func TestSQLiteStorage_ListPredictions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	for i, user := range []string{"alice", "bob", "alice", "alice", "bob"} {
		p := samplePrediction(string(rune('a'+i)), user, baseTime.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.SavePrediction(ctx, p))
	}

	since := baseTime.Add(2 * time.Hour)
	until := baseTime.Add(4 * time.Hour)

	tests := []struct {
		name    string
		filter  service.PredictionFilter
		wantIDs []string
	}{
		{
			name:    "all newest first",
			filter:  service.PredictionFilter{},
			wantIDs: []string{"e", "d", "c", "b", "a"},
		},
		{
			name:    "by user",
			filter:  service.PredictionFilter{UserID: "alice"},
			wantIDs: []string{"d", "c", "a"},
		},
		{
			name:    "limit and offset",
			filter:  service.PredictionFilter{Limit: 2, Offset: 1},
			wantIDs: []string{"d", "c"},
		},
		{
			name:    "time window",
			filter:  service.PredictionFilter{Since: &since, Until: &until},
			wantIDs: []string{"d", "c"},
		},
		{
			name:    "unknown user",
			filter:  service.PredictionFilter{UserID: "carol"},
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListPredictions(ctx, tt.filter)
			require.NoError(t, err)

			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	counts := []struct {
		name   string
		filter service.PredictionFilter
		want   int
	}{
		{name: "all", filter: service.PredictionFilter{}, want: 5},
		{name: "by user", filter: service.PredictionFilter{UserID: "alice"}, want: 3},
		{name: "time window", filter: service.PredictionFilter{Since: &since, Until: &until}, want: 2},
		{name: "user and window", filter: service.PredictionFilter{UserID: "alice", Since: &since}, want: 2},
		{name: "paging is ignored", filter: service.PredictionFilter{Limit: 1, Offset: 4}, want: 5},
	}
	for _, tt := range counts {
		t.Run("count "+tt.name, func(t *testing.T) {
			n, err := store.CountPredictions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	_, err := store.CountPredictions(ctx, service.PredictionFilter{Since: &until, Until: &since})
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestSQLiteStorage_ListPredictionsInvalidFilter(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	later := baseTime.Add(time.Hour)

	_, err := store.ListPredictions(ctx, service.PredictionFilter{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = store.ListPredictions(ctx, service.PredictionFilter{Limit: MaxHistoryLimit + 1})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = store.ListPredictions(ctx, service.PredictionFilter{Offset: -3})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = store.ListPredictions(ctx, service.PredictionFilter{Since: &later, Until: &baseTime})
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestValidatePrediction(t *testing.T) {
	tests := []struct {
		mutate  func(p *model.StoredPrediction)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*model.StoredPrediction) {}},
		{name: "missing id", mutate: func(p *model.StoredPrediction) { p.ID = " " }, wantErr: true},
		{name: "missing meal plan", mutate: func(p *model.StoredPrediction) { p.MealPlan = "" }, wantErr: true},
		{name: "zero time", mutate: func(p *model.StoredPrediction) { p.CreatedAt = time.Time{} }, wantErr: true},
		{name: "nan calories", mutate: func(p *model.StoredPrediction) { p.Calories = math.NaN() }, wantErr: true},
		{name: "infinite fats", mutate: func(p *model.StoredPrediction) { p.Fats = math.Inf(1) }, wantErr: true},
		{name: "negative values are stored", mutate: func(p *model.StoredPrediction) { p.Fats = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePrediction("p", "u", baseTime)
			tt.mutate(p)
			err := validatePrediction(p)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePrediction() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := validatePrediction(nil); err == nil {
		t.Error("validatePrediction(nil) should fail")
	}
}

func TestValidateContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	if err := validateContext(nil); err == nil {
		t.Error("validateContext(nil) should fail")
	}
	if err := validateContext(context.Background()); err != nil {
		t.Errorf("validateContext() error = %v", err)
	}
}
