package encoding

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MealPlanField is the target field whose encoder decodes the model's meal-plan output.
const MealPlanField = "Recommended_Meal_Plan"

// Registry maps field names to their encoders. It is read-only once built and
// safe for concurrent use.
type Registry struct {
	encoders map[string]*CategoricalEncoder
	observer Observer
}

// NewRegistry builds a registry from encoders. Each field may appear once.
func NewRegistry(encoders ...*CategoricalEncoder) (*Registry, error) {
	m := make(map[string]*CategoricalEncoder, len(encoders))
	for _, enc := range encoders {
		if _, dup := m[enc.Field()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEncoder, enc.Field())
		}
		m[enc.Field()] = enc
	}
	return &Registry{encoders: m, observer: LogObserver{}}, nil
}

// WithObserver returns a registry sharing the same encoders that reports
// fallback decisions to o.
func (r *Registry) WithObserver(o Observer) *Registry {
	if o == nil {
		o = LogObserver{}
	}
	return &Registry{encoders: r.encoders, observer: o}
}

// Observer returns the observer fallback decisions are reported to.
func (r *Registry) Observer() Observer {
	if r.observer == nil {
		return LogObserver{}
	}
	return r.observer
}

func (r *Registry) observe(e Event) {
	r.Observer().Observe(e)
}

// Encoder returns the encoder for a field.
func (r *Registry) Encoder(field string) (*CategoricalEncoder, bool) {
	enc, ok := r.encoders[field]
	return enc, ok
}

// Has reports whether the field has an encoder.
func (r *Registry) Has(field string) bool {
	_, ok := r.encoders[field]
	return ok
}

// Fields returns the encoded field names in sorted order.
func (r *Registry) Fields() []string {
	fields := make([]string, 0, len(r.encoders))
	for f := range r.encoders {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Encode returns the code for raw in field's encoder. Unseen categories map to
// the encoder's fallback code. A field with no encoder yields 0. Both cases are
// reported to the observer; neither is an error.
func (r *Registry) Encode(field string, raw any) int {
	value := coerce(raw)

	enc, ok := r.encoders[field]
	if !ok {
		r.observe(Event{Kind: KindMissingEncoder, Field: field, Value: value})
		return 0
	}

	if code, ok := enc.Lookup(value); ok {
		return code
	}

	r.observe(Event{
		Kind:     KindUnseenCategory,
		Field:    field,
		Value:    value,
		Resolved: enc.FallbackClass(),
	})
	return enc.Fallback()
}

// Decode returns the category for code. Out-of-range codes, or a field with no
// encoder, yield the code itself as a string.
func (r *Registry) Decode(field string, code int) string {
	enc, ok := r.encoders[field]
	if !ok {
		r.observe(Event{Kind: KindMissingEncoder, Field: field, Value: strconv.Itoa(code)})
		return strconv.Itoa(code)
	}

	class, ok := enc.Class(code)
	if !ok {
		r.observe(Event{Kind: KindDecodeOutOfRange, Field: field, Value: strconv.Itoa(code)})
		return strconv.Itoa(code)
	}
	return class
}

// MarshalJSON writes the encoders sorted by field.
func (r *Registry) MarshalJSON() ([]byte, error) {
	list := make([]*CategoricalEncoder, 0, len(r.encoders))
	for _, f := range r.Fields() {
		list = append(list, r.encoders[f])
	}
	return json.Marshal(struct {
		Encoders []*CategoricalEncoder `json:"encoders"`
	}{Encoders: list})
}

// UnmarshalJSON restores a registry written by MarshalJSON.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Encoders []*CategoricalEncoder `json:"encoders"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewRegistry(raw.Encoders...)
	if err != nil {
		return err
	}
	*r = *built
	return nil
}

// Merge returns a registry holding the encoders of both registries.
func (r *Registry) Merge(other *Registry) (*Registry, error) {
	all := make([]*CategoricalEncoder, 0, len(r.encoders)+len(other.encoders))
	for _, f := range r.Fields() {
		all = append(all, r.encoders[f])
	}
	for _, f := range other.Fields() {
		all = append(all, other.encoders[f])
	}
	merged, err := NewRegistry(all...)
	if err != nil {
		return nil, err
	}
	merged.observer = r.observer
	return merged, nil
}

func coerce(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
