package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/nourish/internal/encoding"
)

// Schema errors.
var (
	ErrEmptySchema     = errors.New("feature schema has no columns")
	ErrDuplicateColumn = errors.New("duplicate feature column")
	ErrOneHotEncoder   = errors.New("one-hot field has no encoder")
)

// Target column names, in model output order.
const (
	TargetMealPlan = encoding.MealPlanField
	TargetCalories = "Recommended_Calories"
	TargetProtein  = "Recommended_Protein"
	TargetCarbs    = "Recommended_Carbs"
	TargetFats     = "Recommended_Fats"
)

// DefaultTargets is the model output order.
var DefaultTargets = []string{TargetMealPlan, TargetCalories, TargetProtein, TargetCarbs, TargetFats}

// Schema is the ordered list of feature columns a model was fit on, fixed at
// training time and persisted next to the model.
type Schema struct {
	index   map[string]int
	oneHot  map[string]bool
	columns []string
	onehots []string
	targets []string
}

// NewSchema validates and builds a schema. oneHot lists the categorical fields
// expanded into <Field>_<category> columns; targets defaults to DefaultTargets.
func NewSchema(columns, oneHot, targets []string) (*Schema, error) {
	if len(columns) == 0 {
		return nil, ErrEmptySchema
	}
	if len(targets) == 0 {
		targets = DefaultTargets
	}

	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, dup := index[col]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, col)
		}
		index[col] = i
	}

	hot := make(map[string]bool, len(oneHot))
	for _, f := range oneHot {
		hot[f] = true
	}

	return &Schema{
		index:   index,
		oneHot:  hot,
		columns: append([]string(nil), columns...),
		onehots: append([]string(nil), oneHot...),
		targets: append([]string(nil), targets...),
	}, nil
}

// BuildSchema derives the schema for a set of input columns in training order.
// Every one-hot field is replaced by one column per known category except the
// first, mirroring drop-first dummy encoding.
func BuildSchema(inputs []string, registry *encoding.Registry, oneHot []string) (*Schema, error) {
	hot := make(map[string]bool, len(oneHot))
	for _, f := range oneHot {
		hot[f] = true
	}

	var columns []string
	for _, in := range inputs {
		if !hot[in] {
			columns = append(columns, in)
			continue
		}
		enc, ok := registry.Encoder(in)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrOneHotEncoder, in)
		}
		for _, class := range enc.Classes()[1:] {
			columns = append(columns, OneHotColumn(in, class))
		}
	}

	return NewSchema(columns, oneHot, nil)
}

// OneHotColumn names the dummy column for a category of field.
func OneHotColumn(field, category string) string {
	return field + "_" + strings.ReplaceAll(strings.TrimSpace(category), " ", "_")
}

// Len returns the number of feature columns.
func (s *Schema) Len() int { return len(s.columns) }

// Columns returns a copy of the ordered feature columns.
func (s *Schema) Columns() []string { return append([]string(nil), s.columns...) }

// Targets returns a copy of the ordered model outputs.
func (s *Schema) Targets() []string { return append([]string(nil), s.targets...) }

// OneHot returns a copy of the one-hot expanded fields.
func (s *Schema) OneHot() []string { return append([]string(nil), s.onehots...) }

// Index returns the position of col.
func (s *Schema) Index(col string) (int, bool) {
	i, ok := s.index[col]
	return i, ok
}

// IsOneHot reports whether field is one-hot expanded.
func (s *Schema) IsOneHot(field string) bool { return s.oneHot[field] }

// isDummyColumn reports whether col is a dummy column of a one-hot field.
func (s *Schema) isDummyColumn(col string) bool {
	for f := range s.oneHot {
		if strings.HasPrefix(col, f+"_") {
			return true
		}
	}
	return false
}

type schemaJSON struct {
	Columns []string `json:"columns"`
	OneHot  []string `json:"one_hot,omitempty"`
	Targets []string `json:"targets"`
}

// MarshalJSON writes the schema.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(schemaJSON{Columns: s.columns, OneHot: s.onehots, Targets: s.targets})
}

// UnmarshalJSON restores a schema, validating it like NewSchema.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw schemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewSchema(raw.Columns, raw.OneHot, raw.Targets)
	if err != nil {
		return err
	}
	*s = *built
	return nil
}
