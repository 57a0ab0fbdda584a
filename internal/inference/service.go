package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/encoding"
	"github.com/Veraticus/nourish/internal/features"
	"github.com/Veraticus/nourish/internal/model"
)

// Recorder persists predictions. A failing recorder never fails a prediction.
type Recorder interface {
	SavePrediction(ctx context.Context, p *model.StoredPrediction) error
}

// Service answers recommendation requests.
type Service struct {
	ictx     *Context
	recorder Recorder
	now      func() time.Time
	newID    func() string
	retry    common.RetryOptions
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder persists every successful prediction through r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRetryOptions sets how recorder failures are retried.
func WithRetryOptions(o common.RetryOptions) Option {
	return func(s *Service) { s.retry = o }
}

// NewService returns a service reading from ictx.
func NewService(ictx *Context, opts ...Option) *Service {
	s := &Service{
		ictx:  ictx,
		now:   time.Now,
		newID: uuid.NewString,
		retry: common.RetryOptions{MaxAttempts: 3, InitialDelay: 20 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context returns the inference context the service reads.
func (s *Service) Context() *Context { return s.ictx }

type requestIDKey struct{}

// WithRequestID returns ctx carrying a request identifier for predictions.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request identifier carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Predict aligns the profile, runs the model and decodes the meal plan. The
// first model output is rounded to the nearest code; the nutrition outputs are
// returned as predicted. Invalid profile values fail with an error wrapping
// common.ErrInvalidInput (a *features.FieldError).
func (s *Service) Predict(ctx context.Context, profile *model.HealthProfile) (*model.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	diag := s.ictx.diagnostics

	vec, err := s.ictx.aligner.Align(profile)
	if err != nil {
		diag.failures.Add(1)
		return nil, err
	}

	out, err := s.ictx.model.Predict(vec)
	if err != nil {
		diag.failures.Add(1)
		return nil, fmt.Errorf("run model: %w", err)
	}
	if len(out) != len(s.ictx.schema.Targets()) {
		diag.failures.Add(1)
		return nil, fmt.Errorf("%w: model returned %d outputs, want %d",
			common.ErrSchemaMismatch, len(out), len(s.ictx.schema.Targets()))
	}

	at := func(target string) float64 { return out[s.ictx.outputs[target]] }

	code := int(math.Round(at(features.TargetMealPlan)))
	p := &model.Prediction{
		ID:           s.newID(),
		RequestID:    RequestID(ctx),
		CreatedAt:    s.now().UTC(),
		MealPlanCode: code,
		MealPlan:     s.ictx.registry.Decode(encoding.MealPlanField, code),
		ModelVersion: s.ictx.version,
		Calories:     at(features.TargetCalories),
		Protein:      at(features.TargetProtein),
		Carbs:        at(features.TargetCarbs),
		Fats:         at(features.TargetFats),
	}
	if profile != nil {
		p.UserID = profile.UserID
	}
	diag.predictions.Add(1)

	s.record(ctx, p, profile)
	return p, nil
}

func (s *Service) record(ctx context.Context, p *model.Prediction, profile *model.HealthProfile) {
	if s.recorder == nil {
		return
	}
	stored := &model.StoredPrediction{Prediction: *p}
	if profile != nil {
		stored.Profile = *profile
	}

	err := common.WithRetry(ctx, func() error {
		return s.recorder.SavePrediction(ctx, stored)
	}, s.retry)
	if err != nil {
		s.ictx.diagnostics.unrecorded.Add(1)
		slog.Warn("Failed to record prediction",
			"prediction_id", p.ID,
			"request_id", p.RequestID,
			"error", err)
	}
}
