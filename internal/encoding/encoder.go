// Package encoding maps categorical field values to the dense integer codes a
// trained model was fit on. Encoders are built once, from training data, and
// are immutable afterwards; unseen categories resolve to a fallback code
// rather than failing.
package encoding

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Encoder construction errors.
var (
	ErrEmptyColumn      = errors.New("training column is empty")
	ErrDuplicateClass   = errors.New("duplicate category")
	ErrUnknownFallback  = errors.New("fallback category is not a known category")
	ErrDuplicateEncoder = errors.New("duplicate encoder for field")
)

// CategoricalEncoder holds the code assignment for one categorical field.
// Codes are dense: the category at classes[i] has code i.
type CategoricalEncoder struct {
	codes    map[string]int
	field    string
	classes  []string
	fallback int
}

// NewCategoricalEncoder builds an encoder from an ordered class list. The
// fallback must be one of the classes.
func NewCategoricalEncoder(field string, classes []string, fallback string) (*CategoricalEncoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyColumn, field)
	}

	codes := make(map[string]int, len(classes))
	ordered := make([]string, len(classes))
	for i, class := range classes {
		class = strings.TrimSpace(class)
		if _, dup := codes[class]; dup {
			return nil, fmt.Errorf("%w: %s has %q twice", ErrDuplicateClass, field, class)
		}
		codes[class] = i
		ordered[i] = class
	}

	code, ok := codes[strings.TrimSpace(fallback)]
	if !ok {
		return nil, fmt.Errorf("%w: %s fallback %q", ErrUnknownFallback, field, fallback)
	}

	return &CategoricalEncoder{
		field:    field,
		classes:  ordered,
		codes:    codes,
		fallback: code,
	}, nil
}

// Fit builds an encoder from a training column. Values are trimmed, classes
// are coded in sorted order, and the fallback is the most frequent value with
// ties going to whichever value was seen first.
func Fit(field string, column []string) (*CategoricalEncoder, error) {
	if len(column) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyColumn, field)
	}

	counts := make(map[string]int)
	firstSeen := make([]string, 0)
	for _, raw := range column {
		v := strings.TrimSpace(raw)
		if _, ok := counts[v]; !ok {
			firstSeen = append(firstSeen, v)
		}
		counts[v]++
	}

	fallback := firstSeen[0]
	for _, v := range firstSeen[1:] {
		if counts[v] > counts[fallback] {
			fallback = v
		}
	}

	classes := make([]string, len(firstSeen))
	copy(classes, firstSeen)
	sort.Strings(classes)

	return NewCategoricalEncoder(field, classes, fallback)
}

// Field returns the name of the field this encoder serves.
func (e *CategoricalEncoder) Field() string { return e.field }

// Len returns the number of known categories.
func (e *CategoricalEncoder) Len() int { return len(e.classes) }

// Classes returns a copy of the known categories in code order.
func (e *CategoricalEncoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

// Fallback returns the code used for unseen categories.
func (e *CategoricalEncoder) Fallback() int { return e.fallback }

// FallbackClass returns the category behind the fallback code.
func (e *CategoricalEncoder) FallbackClass() string { return e.classes[e.fallback] }

// Lookup returns the code of a known category.
func (e *CategoricalEncoder) Lookup(value string) (int, bool) {
	code, ok := e.codes[strings.TrimSpace(value)]
	return code, ok
}

// Class returns the category for a code.
func (e *CategoricalEncoder) Class(code int) (string, bool) {
	if code < 0 || code >= len(e.classes) {
		return "", false
	}
	return e.classes[code], true
}

type encoderJSON struct {
	Field    string   `json:"field"`
	Fallback string   `json:"fallback"`
	Classes  []string `json:"classes"`
}

// MarshalJSON persists the class order and the fallback category.
func (e *CategoricalEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderJSON{
		Field:    e.field,
		Classes:  e.classes,
		Fallback: e.FallbackClass(),
	})
}

// UnmarshalJSON restores an encoder, validating it like NewCategoricalEncoder.
func (e *CategoricalEncoder) UnmarshalJSON(data []byte) error {
	var raw encoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewCategoricalEncoder(raw.Field, raw.Classes, raw.Fallback)
	if err != nil {
		return err
	}
	*e = *built
	return nil
}
