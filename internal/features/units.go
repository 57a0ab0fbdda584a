package features

import (
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/nourish/internal/common"
)

// FeetToCentimeters converts a height in feet to centimeters.
const FeetToCentimeters = 30.48

// HeightUnit identifies the unit a height was supplied in.
type HeightUnit string

// Supported height units.
const (
	Feet        HeightUnit = "ft"
	Centimeters HeightUnit = "cm"
)

// ParseHeightUnit accepts the spellings clients use for feet and centimeters.
func ParseHeightUnit(s string) (HeightUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ft", "feet", "foot":
		return Feet, nil
	case "cm", "centimeter", "centimeters", "centimetre", "centimetres":
		return Centimeters, nil
	default:
		return "", fmt.Errorf("%w: unknown height unit %q", common.ErrInvalidInput, s)
	}
}

// ToCentimeters converts a height in unit to centimeters.
func ToCentimeters(value float64, unit HeightUnit) float64 {
	if unit == Feet {
		return value * FeetToCentimeters
	}
	return value
}

// DeriveBMI computes weight / height(m)^2 rounded to two decimals.
func DeriveBMI(heightCM, weightKG float64) (float64, bool) {
	if heightCM <= 0 || weightKG <= 0 {
		return 0, false
	}
	m := heightCM / 100
	return math.Round(weightKG/(m*m)*100) / 100, true
}
