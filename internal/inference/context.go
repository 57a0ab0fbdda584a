// Package inference turns a health profile into a diet recommendation using a
// loaded model bundle.
package inference

import (
	"fmt"

	"github.com/Veraticus/nourish/internal/artifacts"
	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/encoding"
	"github.com/Veraticus/nourish/internal/features"
	"github.com/Veraticus/nourish/internal/forest"
)

// Context is everything a prediction reads: encoders, schema, model and the
// aligner built from them. It is built once at startup, never modified, and
// shared by every request.
type Context struct {
	registry    *encoding.Registry
	schema      *features.Schema
	model       forest.Regressor
	aligner     *features.Aligner
	diagnostics *Diagnostics
	manifest    artifacts.Manifest
	outputs     map[string]int
	version     string
}

// ContextOption configures a Context.
type ContextOption func(*contextConfig)

type contextConfig struct {
	observer   encoding.Observer
	heightUnit features.HeightUnit
	manifest   artifacts.Manifest
}

// WithObserver sends fallback events to o after they are counted.
func WithObserver(o encoding.Observer) ContextOption {
	return func(c *contextConfig) { c.observer = o }
}

// WithHeightUnit sets the unit assumed for a bare height.
func WithHeightUnit(u features.HeightUnit) ContextOption {
	return func(c *contextConfig) { c.heightUnit = u }
}

func withManifest(m artifacts.Manifest) ContextOption {
	return func(c *contextConfig) { c.manifest = m }
}

// NewContext validates and assembles a Context. registry must hold the
// meal-plan encoder and schema must list every prediction target.
func NewContext(registry *encoding.Registry, schema *features.Schema, model forest.Regressor, opts ...ContextOption) (*Context, error) {
	cfg := contextConfig{heightUnit: features.Feet}
	for _, opt := range opts {
		opt(&cfg)
	}

	if registry == nil || schema == nil || model == nil {
		return nil, fmt.Errorf("%w: registry, schema and model are required", common.ErrModelUnavailable)
	}
	if !registry.Has(encoding.MealPlanField) {
		return nil, fmt.Errorf("%w: no %s encoder", common.ErrModelUnavailable, encoding.MealPlanField)
	}
	if e, ok := model.(*forest.Ensemble); ok && e.FeatureCount != schema.Len() {
		return nil, fmt.Errorf("%w: %w: model expects %d features, schema has %d",
			common.ErrModelUnavailable, common.ErrSchemaMismatch, e.FeatureCount, schema.Len())
	}

	outputs := make(map[string]int, len(schema.Targets()))
	for i, t := range schema.Targets() {
		outputs[t] = i
	}
	for _, t := range features.DefaultTargets {
		if _, ok := outputs[t]; !ok {
			return nil, fmt.Errorf("%w: %w: schema has no %s target", common.ErrModelUnavailable, common.ErrSchemaMismatch, t)
		}
	}

	diag := NewDiagnostics(cfg.observer)
	observed := registry.WithObserver(diag)
	aligner, err := features.NewAligner(observed, schema, features.WithDefaultHeightUnit(cfg.heightUnit))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrModelUnavailable, err)
	}

	return &Context{
		registry:    observed,
		schema:      schema,
		model:       model,
		aligner:     aligner,
		diagnostics: diag,
		manifest:    cfg.manifest,
		outputs:     outputs,
		version:     modelVersion(cfg.manifest),
	}, nil
}

// FromBundle builds a Context from a loaded bundle.
func FromBundle(b *artifacts.Bundle, opts ...ContextOption) (*Context, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrModelUnavailable, err)
	}
	registry, err := b.Registry()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrModelUnavailable, err)
	}
	opts = append([]ContextOption{withManifest(b.Manifest)}, opts...)
	return NewContext(registry, b.Schema, b.Model, opts...)
}

// Load reads the bundle in dir and builds a Context from it.
func Load(dir string, opts ...ContextOption) (*Context, error) {
	b, err := artifacts.Load(dir)
	if err != nil {
		return nil, err
	}
	return FromBundle(b, opts...)
}

// Registry returns the encoders, including the meal-plan encoder.
func (c *Context) Registry() *encoding.Registry { return c.registry }

// Schema returns the feature schema.
func (c *Context) Schema() *features.Schema { return c.schema }

// Aligner returns the aligner bound to this context.
func (c *Context) Aligner() *features.Aligner { return c.aligner }

// Diagnostics returns the fallback counters.
func (c *Context) Diagnostics() *Diagnostics { return c.diagnostics }

// Manifest returns the manifest of the bundle the context was built from.
func (c *Context) Manifest() artifacts.Manifest { return c.manifest }

// ModelVersion identifies the loaded model by the prefix of its checksum.
// It is empty for contexts not built from a bundle.
func (c *Context) ModelVersion() string { return c.version }

func modelVersion(m artifacts.Manifest) string {
	sum := m.Checksums[artifacts.ModelFile]
	if len(sum) > 12 {
		sum = sum[:12]
	}
	return sum
}
