package inference

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/encoding"
	"github.com/Veraticus/nourish/internal/features"
	"github.com/Veraticus/nourish/internal/forest"
	"github.com/Veraticus/nourish/internal/model"
	"github.com/Veraticus/nourish/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	err error
	out []float64
}

func (m stubModel) Predict([]float64) ([]float64, error) {
	return m.out, m.err
}

type memoryRecorder struct {
	err   error
	saved []*model.StoredPrediction
	calls int
	mu    sync.Mutex
}

func (r *memoryRecorder) SavePrediction(_ context.Context, p *model.StoredPrediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, p)
	return nil
}

func quiet() ContextOption {
	return WithObserver(encoding.ObserverFunc(func(encoding.Event) {}))
}

func stubContext(t *testing.T, m forest.Regressor) *Context {
	t.Helper()
	plans, err := encoding.NewCategoricalEncoder(encoding.MealPlanField,
		[]string{"Balanced Diet", "High-Protein Diet", "Low-Carb Diet", "Low-Fat Diet"}, "Balanced Diet")
	require.NoError(t, err)
	cuisine, err := encoding.Fit(features.PreferredCuisine, []string{"Indian", "Western", "Indian"})
	require.NoError(t, err)
	reg, err := encoding.NewRegistry(plans, cuisine)
	require.NoError(t, err)
	schema, err := features.NewSchema([]string{features.Age, features.PreferredCuisine}, nil, nil)
	require.NoError(t, err)

	ictx, err := NewContext(reg, schema, m, quiet())
	require.NoError(t, err)
	return ictx
}

func bundleContext(t *testing.T) *Context {
	t.Helper()
	ictx, err := FromBundle(testutil.NewBundle(t), quiet())
	require.NoError(t, err)
	return ictx
}

// scenarioProfile is the request shape the web client sends: snake_case
// names, height in feet, no chronic disease.
func scenarioProfile() *model.HealthProfile {
	p := model.NewHealthProfile().
		Set("age", model.Number(34)).
		Set("gender", model.Text("Male")).
		Set("height", model.Number(5.5)).
		Set("weight", model.Number(70)).
		Set("blood_pressure_systolic", model.Number(120)).
		Set("blood_pressure_diastolic", model.Number(80)).
		Set("cholesterol_level", model.Number(180)).
		Set("blood_sugar_level", model.Number(95)).
		Set("genetic_risk_factor", model.Text("No")).
		Set("allergies", model.Null()).
		Set("daily_steps", model.Number(8000)).
		Set("exercise_frequency", model.Text("Moderate")).
		Set("sleep_hours", model.Number(7)).
		Set("alcohol_consumption", model.Text("No")).
		Set("smoking_habit", model.Text("No")).
		Set("dietary_habits", model.Text("Regular")).
		Set("preferred_cuisine", model.Text("Indian")).
		Set("food_aversion", model.Text("Spicy"))
	p.UserID = "user-1"
	return p
}

func TestPredict_EndToEnd(t *testing.T) {
	ictx := bundleContext(t)
	svc := NewService(ictx)
	profile := scenarioProfile()

	vec, err := ictx.Aligner().Align(profile)
	require.NoError(t, err)
	require.Len(t, vec, ictx.Schema().Len())

	h, ok := ictx.Schema().Index(features.HeightCM)
	require.True(t, ok)
	assert.InDelta(t, 167.64, vec[h], 1e-6)

	d, ok := ictx.Schema().Index(features.ChronicDisease)
	require.True(t, ok)
	enc, _ := ictx.Registry().Encoder(features.ChronicDisease)
	noDisease, ok := enc.Lookup("No Disease")
	require.True(t, ok)
	assert.Equal(t, float64(noDisease), vec[d])

	p, err := svc.Predict(context.Background(), profile)
	require.NoError(t, err)

	plans, _ := ictx.Registry().Encoder(encoding.MealPlanField)
	assert.NotEmpty(t, p.MealPlan)
	assert.Contains(t, plans.Classes(), p.MealPlan)
	for _, v := range []float64{p.Calories, p.Protein, p.Carbs, p.Fats} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
	assert.Equal(t, "user-1", p.UserID)
	assert.NotEmpty(t, p.ID)
	assert.EqualValues(t, 1, ictx.Diagnostics().Snapshot().Predictions)
}

func TestPredict_UnseenCategoryStillAnswers(t *testing.T) {
	ictx := bundleContext(t)
	profile := scenarioProfile().Set("preferred_cuisine", model.Text("Martian"))

	p, err := NewService(ictx).Predict(context.Background(), profile)
	require.NoError(t, err)
	assert.NotEmpty(t, p.MealPlan)
	assert.EqualValues(t, 1, ictx.Diagnostics().Count(encoding.KindUnseenCategory))
}

func TestPredict_InvalidNumeric(t *testing.T) {
	ictx := bundleContext(t)
	profile := scenarioProfile().Set("age", model.Text("abc"))

	_, err := NewService(ictx).Predict(context.Background(), profile)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	var fe *features.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "age", fe.Field)
	assert.EqualValues(t, 1, ictx.Diagnostics().Snapshot().Failures)
}

func TestPredict_DecodesRoundedMealPlan(t *testing.T) {
	tests := []struct {
		name     string
		first    float64
		wantCode int
		wantPlan string
	}{
		{name: "rounds down", first: 1.4, wantCode: 1, wantPlan: "High-Protein Diet"},
		{name: "rounds up", first: 2.6, wantCode: 3, wantPlan: "Low-Fat Diet"},
		{name: "half rounds away from zero", first: 1.5, wantCode: 2, wantPlan: "Low-Carb Diet"},
		{name: "out of range", first: 9.2, wantCode: 9, wantPlan: "9"},
		{name: "negative", first: -0.7, wantCode: -1, wantPlan: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ictx := stubContext(t, stubModel{out: []float64{tt.first, 2100.5, 84, 262.5, -3}})
			p, err := NewService(ictx).Predict(context.Background(), model.NewHealthProfile())
			require.NoError(t, err)

			assert.Equal(t, tt.wantCode, p.MealPlanCode)
			assert.Equal(t, tt.wantPlan, p.MealPlan)
			assert.Equal(t, 2100.5, p.Calories)
			assert.Equal(t, -3.0, p.Fats, "nutrition values are not clamped")
		})
	}
}

func TestPredict_ModelErrors(t *testing.T) {
	ictx := stubContext(t, stubModel{err: errors.New("boom")})
	_, err := NewService(ictx).Predict(context.Background(), model.NewHealthProfile())
	assert.ErrorContains(t, err, "boom")

	ictx = stubContext(t, stubModel{out: []float64{1, 2}})
	_, err = NewService(ictx).Predict(context.Background(), model.NewHealthProfile())
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)
	assert.EqualValues(t, 1, ictx.Diagnostics().Snapshot().Failures)
}

func TestPredict_CanceledContext(t *testing.T) {
	ictx := stubContext(t, stubModel{out: []float64{0, 1, 2, 3, 4}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(ictx).Predict(ctx, model.NewHealthProfile())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredict_Records(t *testing.T) {
	rec := &memoryRecorder{}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ictx := stubContext(t, stubModel{out: []float64{0, 1, 2, 3, 4}})
	svc := NewService(ictx, WithRecorder(rec), WithClock(func() time.Time { return fixed }))

	profile := model.NewHealthProfile().Set("age", model.Number(40))
	profile.UserID = "u-9"
	ctx := WithRequestID(context.Background(), "req-1")

	p, err := svc.Predict(ctx, profile)
	require.NoError(t, err)

	require.Len(t, rec.saved, 1)
	saved := rec.saved[0]
	assert.Equal(t, p.ID, saved.ID)
	assert.Equal(t, "req-1", saved.RequestID)
	assert.Equal(t, "u-9", saved.UserID)
	assert.Equal(t, fixed, saved.CreatedAt)
	assert.Equal(t, "Balanced Diet", saved.MealPlan)
	_, ok := saved.Profile.Get("age")
	assert.True(t, ok)
}

func TestPredict_RecorderFailureDoesNotFail(t *testing.T) {
	rec := &memoryRecorder{err: &common.RetryableError{Err: errors.New("database is locked"), Retryable: true}}
	ictx := stubContext(t, stubModel{out: []float64{0, 1, 2, 3, 4}})
	svc := NewService(ictx,
		WithRecorder(rec),
		WithRetryOptions(common.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond}))

	p, err := svc.Predict(context.Background(), model.NewHealthProfile())
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, 2, rec.calls, "transient failures are retried")
	assert.EqualValues(t, 1, ictx.Diagnostics().Snapshot().Unrecorded)
}

func TestPredict_Concurrent(t *testing.T) {
	ictx := bundleContext(t)
	svc := NewService(ictx)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			profile := scenarioProfile().Set("age", model.Number(float64(20+i)))
			_, err := svc.Predict(context.Background(), profile)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 32, ictx.Diagnostics().Snapshot().Predictions)
}

func TestNewContext_Validation(t *testing.T) {
	schema, err := features.NewSchema([]string{features.Age}, nil, nil)
	require.NoError(t, err)
	empty, err := encoding.NewRegistry()
	require.NoError(t, err)

	_, err = NewContext(empty, schema, stubModel{})
	assert.ErrorIs(t, err, common.ErrModelUnavailable, "meal plan encoder is required")

	bundle := testutil.NewBundle(t)
	reg, err := bundle.Registry()
	require.NoError(t, err)
	_, err = NewContext(reg, schema, bundle.Model)
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)

	partial, err := features.NewSchema([]string{features.Age}, nil, []string{features.TargetMealPlan})
	require.NoError(t, err)
	_, err = NewContext(reg, partial, stubModel{})
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)

	_, err = NewContext(nil, schema, stubModel{})
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
}

func TestLoad(t *testing.T) {
	dir := testutil.WriteBundle(t)
	ictx, err := Load(dir, quiet(), WithHeightUnit(features.Centimeters))
	require.NoError(t, err)
	assert.Equal(t, 1, ictx.Manifest().Version)

	_, err = Load(t.TempDir())
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
}
