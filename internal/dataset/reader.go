// Package dataset reads the diet recommendation training CSV. Cells are kept
// under their header names; the feature normalizer canonicalizes them exactly
// as it does request fields.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/features"
	"github.com/Veraticus/nourish/internal/model"
)

// IDColumn identifies a row and is never used as a feature.
const IDColumn = "Patient_ID"

// nutritionTargets are the numeric targets, in model output order after the meal plan.
var nutritionTargets = []string{
	features.TargetCalories,
	features.TargetProtein,
	features.TargetCarbs,
	features.TargetFats,
}

// Row is one training example.
type Row struct {
	// Profile holds the non-blank input cells under their header names.
	Profile   *model.HealthProfile
	ID        string
	MealPlan  string
	Nutrition [4]float64
	Line      int
}

// Dataset is a parsed training file.
type Dataset struct {
	// Inputs are the feature columns in file order.
	Inputs []string
	Rows   []Row
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// MealPlans returns the meal-plan target of every row.
func (d *Dataset) MealPlans() []string {
	out := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.MealPlan
	}
	return out
}

// ReadFile opens and reads a CSV file.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

type column struct {
	name   string
	target int // -1 input, 0 meal plan, 1..4 nutrition
	skip   bool
}

// Read parses a CSV with a header row. Header names are matched to canonical
// columns case-insensitively; unrecognised headers are kept as numeric
// feature columns under their own name. A height_unit column tags the unit of
// a bare height column row by row and is not itself an input.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, common.ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, inputs, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Inputs: inputs}
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row, err := parseRow(cols, record, line)
		if err != nil {
			return nil, err
		}
		ds.Rows = append(ds.Rows, row)
	}

	if len(ds.Rows) == 0 {
		return nil, common.ErrEmptyDataset
	}
	return ds, nil
}

func mapHeader(header []string) ([]column, []string, error) {
	targetIndex := map[string]int{strings.ToLower(features.TargetMealPlan): 0}
	for i, t := range nutritionTargets {
		targetIndex[strings.ToLower(t)] = i + 1
	}

	cols := make([]column, len(header))
	seen := make(map[string]bool, len(header))
	found := make([]bool, len(nutritionTargets)+1)
	var inputs []string

	for i, raw := range header {
		name := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
		key := strings.ToLower(name)

		if strings.EqualFold(name, IDColumn) {
			cols[i] = column{name: IDColumn, target: -1, skip: true}
			continue
		}
		if t, ok := targetIndex[key]; ok {
			cols[i] = column{name: name, target: t}
			found[t] = true
			continue
		}

		if strings.EqualFold(name, features.HeightUnitField) {
			cols[i] = column{name: name, target: -1}
			continue
		}

		canonical, _, ok := features.Canonical(name)
		if !ok {
			canonical = name
		}
		if seen[canonical] {
			return nil, nil, fmt.Errorf("%w: %s appears twice", common.ErrInvalidInput, canonical)
		}
		seen[canonical] = true
		cols[i] = column{name: name, target: -1}
		inputs = append(inputs, canonical)
	}

	if !found[0] {
		return nil, nil, fmt.Errorf("%w: %s", common.ErrMissingColumn, features.TargetMealPlan)
	}
	for i, t := range nutritionTargets {
		if !found[i+1] {
			return nil, nil, fmt.Errorf("%w: %s", common.ErrMissingColumn, t)
		}
	}
	return cols, inputs, nil
}

func parseRow(cols []column, record []string, line int) (Row, error) {
	row := Row{Profile: model.NewHealthProfile(), Line: line}

	for i, c := range cols {
		if i >= len(record) {
			break
		}
		value := strings.TrimSpace(record[i])

		switch {
		case c.skip:
			row.ID = value
		case c.target == 0:
			if value == "" {
				return Row{}, fmt.Errorf("line %d: %w: empty %s", line, common.ErrInvalidInput, features.TargetMealPlan)
			}
			row.MealPlan = value
		case c.target > 0:
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Row{}, fmt.Errorf("line %d: %w: %s %q is not numeric",
					line, common.ErrInvalidInput, c.name, value)
			}
			row.Nutrition[c.target-1] = f
		case value == "" || strings.EqualFold(value, "nan"):
			// Missing; derived or defaulted during normalization.
		default:
			row.Profile.Set(c.name, model.Text(value))
		}
	}
	return row, nil
}
