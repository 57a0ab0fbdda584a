package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/encoding"
)

// Cell is one value in a working record. Text always holds the trimmed raw
// value; Numeric is set when the value is already known to be a number.
type Cell struct {
	Source  string
	Text    string
	Number  float64
	Numeric bool
}

// TextCell returns a cell holding raw text from source.
func TextCell(source, text string) Cell {
	return Cell{Source: source, Text: strings.TrimSpace(text)}
}

// NumberCell returns a cell holding a number from source.
func NumberCell(source string, n float64) Cell {
	return Cell{
		Source:  source,
		Text:    strconv.FormatFloat(n, 'f', -1, 64),
		Number:  n,
		Numeric: true,
	}
}

// Float returns the cell as a finite float64.
func (c Cell) Float() (float64, error) {
	if c.Numeric {
		return c.Number, nil
	}
	f, err := strconv.ParseFloat(c.Text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not finite")
	}
	return f, nil
}

// Record is the working record between normalization and vectorization, keyed
// by canonical column name.
type Record map[string]Cell

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Names returns the record's columns in sorted order.
func (r Record) Names() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FieldError reports a request field whose value cannot be used.
type FieldError struct {
	Field  string
	Column string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", common.ErrInvalidInput, e.Field, e.Reason)
}

// Unwrap lets callers match common.ErrInvalidInput.
func (e *FieldError) Unwrap() error {
	return common.ErrInvalidInput
}

func notNumeric(c Cell, column string) *FieldError {
	field := c.Source
	if field == "" {
		field = column
	}
	return &FieldError{
		Field:  field,
		Column: column,
		Value:  c.Text,
		Reason: fmt.Sprintf("value %q is not numeric", c.Text),
	}
}

// declaredDefaults are filled in for absent categorical fields. Training rows
// receive the same fills before encoders are fit.
var declaredDefaults = map[string]string{
	ChronicDisease:    "No Disease",
	Allergies:         "No",
	FoodAversions:     "No",
	ExerciseFrequency: "No",
}

// Defaults returns a copy of the declared missing-value defaults.
func Defaults() map[string]string {
	out := make(map[string]string, len(declaredDefaults))
	for k, v := range declaredDefaults {
		out[k] = v
	}
	return out
}

// FillDefaults sets the declared default for every defaulted field that is
// absent or blank in rec. Fields for which known returns false are left alone;
// a nil known accepts every field. It is idempotent.
func FillDefaults(rec Record, known func(column string) bool, obs encoding.Observer) {
	for _, field := range sortedKeys(declaredDefaults) {
		if known != nil && !known(field) {
			continue
		}
		if c, ok := rec[field]; ok && c.Text != "" {
			continue
		}
		value := declaredDefaults[field]
		rec[field] = TextCell(field, value)
		if obs != nil {
			obs.Observe(encoding.Event{Kind: encoding.KindDefaultFilled, Field: field, Resolved: value})
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
