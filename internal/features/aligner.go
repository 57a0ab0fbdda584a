package features

import (
	"fmt"

	"github.com/Veraticus/nourish/internal/encoding"
	"github.com/Veraticus/nourish/internal/model"
)

// Vector is an aligned feature vector; position i holds schema column i.
type Vector []float64

// Aligner produces feature vectors for one registry and schema. It holds no
// mutable state and is safe for concurrent use.
type Aligner struct {
	registry   *encoding.Registry
	schema     *Schema
	normalizer *Normalizer
	heightUnit HeightUnit
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithDefaultHeightUnit sets the unit assumed for a bare "height" when the
// request carries no height_unit.
func WithDefaultHeightUnit(u HeightUnit) Option {
	return func(a *Aligner) {
		a.heightUnit = u
	}
}

// NewAligner validates that every one-hot field in schema has an encoder.
func NewAligner(registry *encoding.Registry, schema *Schema, opts ...Option) (*Aligner, error) {
	for _, f := range schema.OneHot() {
		if !registry.Has(f) {
			return nil, fmt.Errorf("%w: %s", ErrOneHotEncoder, f)
		}
	}

	a := &Aligner{
		registry:   registry,
		schema:     schema,
		heightUnit: Feet,
	}
	for _, opt := range opts {
		opt(a)
	}

	var extra []string
	for _, col := range ExtraColumns(schema.columns) {
		if !schema.isDummyColumn(col) {
			extra = append(extra, col)
		}
	}
	a.normalizer = NewNormalizer(a.heightUnit, extra, registry.Observer())
	return a, nil
}

// Align is the one-shot form of NewAligner(registry, schema).Align(profile).
func Align(profile *model.HealthProfile, registry *encoding.Registry, schema *Schema) (Vector, error) {
	a, err := NewAligner(registry, schema)
	if err != nil {
		return nil, err
	}
	return a.Align(profile)
}

// Schema returns the schema vectors are aligned to.
func (a *Aligner) Schema() *Schema { return a.schema }

// Registry returns the registry used for encoding.
func (a *Aligner) Registry() *encoding.Registry { return a.registry }

// Align normalizes the profile and vectorizes it.
func (a *Aligner) Align(profile *model.HealthProfile) (Vector, error) {
	rec, err := a.Normalize(profile)
	if err != nil {
		return nil, err
	}
	return a.Vectorize(rec)
}

func (a *Aligner) observe(e encoding.Event) {
	a.registry.Observer().Observe(e)
}

// Normalize maps request names to canonical columns, including any extra
// columns the schema was trained with, and converts height to centimeters.
func (a *Aligner) Normalize(profile *model.HealthProfile) (Record, error) {
	return a.normalizer.Normalize(profile)
}

// knows reports whether column feeds the model, directly or through dummies.
func (a *Aligner) knows(column string) bool {
	if _, ok := a.schema.Index(column); ok {
		return true
	}
	return a.registry.Has(column)
}

// Vectorize fills declared defaults, encodes categorical fields, pads absent
// schema columns with zero and returns the schema columns in schema order.
// The record is not modified.
func (a *Aligner) Vectorize(rec Record) (Vector, error) {
	work := rec.Clone()
	FillDefaults(work, a.knows, a.registry.Observer())

	values := make(map[string]float64, len(work)+4)
	for _, column := range work.Names() {
		cell := work[column]

		if a.registry.Has(column) || KindOf(column) == KindCategorical {
			code := a.registry.Encode(column, cell.Text)
			values[column] = float64(code)
			if a.schema.IsOneHot(column) {
				if enc, ok := a.registry.Encoder(column); ok {
					class, _ := enc.Class(code)
					values[OneHotColumn(column, class)] = 1
				}
			}
			continue
		}

		f, err := cell.Float()
		if err != nil {
			return nil, notNumeric(cell, column)
		}
		values[column] = f
	}

	vec := make(Vector, a.schema.Len())
	for i, col := range a.schema.columns {
		if v, ok := values[col]; ok {
			vec[i] = v
			continue
		}
		switch {
		case KindOf(col) != KindUnknown:
			a.observe(encoding.Event{Kind: encoding.KindMissingField, Field: col, Resolved: "0"})
		case a.schema.isDummyColumn(col):
			// Dummy columns for categories this row does not have.
		default:
			a.observe(encoding.Event{Kind: encoding.KindSchemaDrift, Field: col, Resolved: "0"})
		}
		vec[i] = 0
	}

	return vec, nil
}
