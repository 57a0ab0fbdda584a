package features

import (
	"fmt"
	"strings"

	"github.com/Veraticus/nourish/internal/encoding"
	"github.com/Veraticus/nourish/internal/model"
)

// Normalizer maps external field names onto canonical columns, converts height
// to centimeters, rewrites form tokens and derives a missing BMI. Training rows
// and requests go through the same Normalizer.
type Normalizer struct {
	observer   encoding.Observer
	extra      map[string]string
	heightUnit HeightUnit
}

// NewNormalizer returns a Normalizer that assumes unit for a bare height.
// Extra columns outside the alias table are accepted under their own name,
// matched case-insensitively.
func NewNormalizer(unit HeightUnit, extra []string, obs encoding.Observer) *Normalizer {
	if unit == "" {
		unit = Feet
	}
	n := &Normalizer{
		observer:   obs,
		extra:      make(map[string]string, len(extra)),
		heightUnit: unit,
	}
	for _, col := range extra {
		n.extra[strings.ToLower(strings.TrimSpace(col))] = col
	}
	return n
}

// ExtraColumns returns the columns of cols that are not in the alias table.
func ExtraColumns(cols []string) []string {
	var out []string
	for _, col := range cols {
		if KindOf(col) == KindUnknown && !strings.EqualFold(col, HeightUnitField) {
			out = append(out, col)
		}
	}
	return out
}

func (n *Normalizer) observe(e encoding.Event) {
	if n.observer != nil {
		n.observer.Observe(e)
	}
}

func (n *Normalizer) resolve(name string) (string, HeightUnit, bool) {
	if column, unit, ok := Canonical(name); ok {
		return column, unit, true
	}
	column, ok := n.extra[strings.ToLower(strings.TrimSpace(name))]
	return column, "", ok
}

// Normalize builds the working record for profile. Height units are decided by
// field name (height_cm, height_ft) or, for a bare height, by height_unit and
// then the configured default; magnitude is never used to guess.
func (n *Normalizer) Normalize(profile *model.HealthProfile) (Record, error) {
	if profile == nil {
		return Record{}, nil
	}
	rec := make(Record, len(profile.Fields))

	bareUnit := n.heightUnit
	if v, ok := lookupFold(profile, HeightUnitField); ok && v.IsSet() {
		u, err := ParseHeightUnit(v.String())
		if err != nil {
			return nil, &FieldError{
				Field:  HeightUnitField,
				Value:  v.String(),
				Reason: fmt.Sprintf("unknown height unit %q", v.String()),
			}
		}
		bareUnit = u
	}

	// Canonical spellings win over aliases; otherwise the first name in
	// lexical order does.
	exact := make(map[string]bool)

	for _, name := range profile.Names() {
		v := profile.Fields[name]
		if strings.EqualFold(name, HeightUnitField) {
			continue
		}

		column, unit, ok := n.resolve(name)
		if !ok {
			n.observe(encoding.Event{Kind: encoding.KindUnknownField, Field: name, Value: v.String()})
			continue
		}
		if !v.IsSet() {
			continue
		}

		isExact := name == column
		if _, seen := rec[column]; seen && (exact[column] || !isExact) {
			continue
		}

		cell := cellFromValue(name, v)
		switch {
		case column == HeightCM:
			if unit == "" {
				unit = bareUnit
			}
			h, err := cell.Float()
			if err != nil {
				return nil, notNumeric(cell, column)
			}
			cell = NumberCell(name, ToCentimeters(h, unit))
		case KindOf(column) == KindCategorical:
			if to, ok := Synonym(column, cell.Text); ok {
				cell = TextCell(name, to)
			}
		}

		rec[column] = cell
		exact[column] = isExact
	}

	if c, ok := rec[BMI]; !ok || c.Text == "" {
		n.deriveBMI(rec)
	}

	return rec, nil
}

func (n *Normalizer) deriveBMI(rec Record) {
	h, hok := rec[HeightCM]
	w, wok := rec[WeightKG]
	if !hok || !wok {
		return
	}
	hv, err := h.Float()
	if err != nil {
		return
	}
	wv, err := w.Float()
	if err != nil {
		return
	}
	bmi, ok := DeriveBMI(hv, wv)
	if !ok {
		return
	}
	rec[BMI] = NumberCell(BMI, bmi)
	n.observe(encoding.Event{Kind: encoding.KindDefaultFilled, Field: BMI, Resolved: rec[BMI].Text})
}

func cellFromValue(name string, v model.Value) Cell {
	if v.IsNumeric() {
		if f, err := v.Float(); err == nil {
			c := NumberCell(name, f)
			c.Text = v.String()
			return c
		}
	}
	return TextCell(name, v.String())
}

func lookupFold(p *model.HealthProfile, name string) (model.Value, bool) {
	for k, v := range p.Fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return model.Value{}, false
}
