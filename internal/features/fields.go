// Package features turns a health profile into the fixed-order feature vector
// the trained model expects. The same stages run when the model is trained and
// when it is queried, so the two cannot drift apart:
//
//	normalize names -> convert units -> fill defaults -> encode -> pad -> reorder
package features

import "strings"

// Kind is the value type of a feature column.
type Kind int

// Column kinds.
const (
	KindUnknown Kind = iota
	KindNumeric
	KindCategorical
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Canonical (training-time) column names.
const (
	Age                    = "Age"
	Gender                 = "Gender"
	HeightCM               = "Height_cm"
	WeightKG               = "Weight_kg"
	BMI                    = "BMI"
	ChronicDisease         = "Chronic_Disease"
	BloodPressureSystolic  = "Blood_Pressure_Systolic"
	BloodPressureDiastolic = "Blood_Pressure_Diastolic"
	CholesterolLevel       = "Cholesterol_Level"
	BloodSugarLevel        = "Blood_Sugar_Level"
	GeneticRiskFactor      = "Genetic_Risk_Factor"
	Allergies              = "Allergies"
	DailySteps             = "Daily_Steps"
	ExerciseFrequency      = "Exercise_Frequency"
	SleepHours             = "Sleep_Hours"
	AlcoholConsumption     = "Alcohol_Consumption"
	SmokingHabit           = "Smoking_Habit"
	DietaryHabits          = "Dietary_Habits"
	PreferredCuisine       = "Preferred_Cuisine"
	FoodAversions          = "Food_Aversions"
)

// HeightUnitField is the request field that tags the unit of a bare "height".
const HeightUnitField = "height_unit"

// Field describes one canonical input column and the external names that map to it.
// Synonyms rewrite client form tokens (keys, matched case-insensitively) to the
// category the training data uses.
type Field struct {
	Synonyms map[string]string
	Name     string
	Aliases  []string
	Kind     Kind
}

// formNo covers the tokens the profile form sends for "none at all".
var formNo = map[string]string{
	"never":      "No",
	"non-smoker": "No",
}

// fieldTable is the declarative mapping from request naming to training naming.
// Height aliases are listed separately because they also carry a unit.
var fieldTable = []Field{
	{Name: Age, Kind: KindNumeric, Aliases: []string{"age"}},
	{Name: Gender, Kind: KindCategorical, Aliases: []string{"gender", "sex"}},
	{Name: HeightCM, Kind: KindNumeric},
	{Name: WeightKG, Kind: KindNumeric, Aliases: []string{"weight", "weight_kg"}},
	{Name: BMI, Kind: KindNumeric, Aliases: []string{"bmi"}},
	{Name: ChronicDisease, Kind: KindCategorical, Aliases: []string{"chronic_disease"}},
	{Name: BloodPressureSystolic, Kind: KindNumeric, Aliases: []string{"blood_pressure_systolic", "systolic"}},
	{Name: BloodPressureDiastolic, Kind: KindNumeric, Aliases: []string{"blood_pressure_diastolic", "diastolic"}},
	{Name: CholesterolLevel, Kind: KindNumeric, Aliases: []string{"cholesterol_level", "cholesterol"}},
	{Name: BloodSugarLevel, Kind: KindNumeric, Aliases: []string{"blood_sugar_level", "blood_sugar"}},
	{Name: GeneticRiskFactor, Kind: KindCategorical, Aliases: []string{"genetic_risk_factor"}},
	{Name: Allergies, Kind: KindCategorical, Aliases: []string{"allergies", "allergy"}},
	{Name: DailySteps, Kind: KindNumeric, Aliases: []string{"daily_steps", "steps"}},
	{Name: ExerciseFrequency, Kind: KindCategorical, Aliases: []string{"exercise_frequency"}, Synonyms: formNo},
	{Name: SleepHours, Kind: KindNumeric, Aliases: []string{"sleep_hours"}},
	{Name: AlcoholConsumption, Kind: KindCategorical, Aliases: []string{"alcohol_consumption"}, Synonyms: formNo},
	{Name: SmokingHabit, Kind: KindCategorical, Aliases: []string{"smoking_habit"}, Synonyms: formNo},
	{Name: DietaryHabits, Kind: KindCategorical, Aliases: []string{"dietary_habits", "diet"}},
	{Name: PreferredCuisine, Kind: KindCategorical, Aliases: []string{"preferred_cuisine", "cuisine"}},
	{Name: FoodAversions, Kind: KindCategorical, Aliases: []string{"food_aversions", "food_aversion"}},
}

// heightAliases maps lower-cased request names to the unit they imply.
// An empty unit means the unit comes from height_unit or the configured default.
var heightAliases = map[string]HeightUnit{
	"height":    "",
	"height_cm": Centimeters,
	"height_ft": Feet,
}

var (
	kindByName  = make(map[string]Kind, len(fieldTable))
	aliasLookup = make(map[string]string)
	synonyms    = make(map[string]map[string]string)
)

func init() {
	for _, f := range fieldTable {
		kindByName[f.Name] = f.Kind
		if len(f.Synonyms) > 0 {
			synonyms[f.Name] = f.Synonyms
		}
		aliasLookup[strings.ToLower(f.Name)] = f.Name
		for _, a := range f.Aliases {
			aliasLookup[strings.ToLower(a)] = f.Name
		}
	}
}

// Fields returns the canonical input columns in training column order.
func Fields() []Field {
	out := make([]Field, len(fieldTable))
	copy(out, fieldTable)
	return out
}

// KindOf returns the kind of a canonical column name.
func KindOf(name string) Kind {
	return kindByName[name]
}

// CategoricalFields returns the canonical categorical column names in table order.
func CategoricalFields() []string {
	var out []string
	for _, f := range fieldTable {
		if f.Kind == KindCategorical {
			out = append(out, f.Name)
		}
	}
	return out
}

// Canonical resolves a request field name to its canonical column. The second
// result is the unit implied by a height alias, empty for everything else.
func Canonical(name string) (string, HeightUnit, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if unit, ok := heightAliases[key]; ok {
		return HeightCM, unit, true
	}
	canonical, ok := aliasLookup[key]
	return canonical, "", ok
}

// Synonym returns the training category for a form token of column.
func Synonym(column, value string) (string, bool) {
	to, ok := synonyms[column][strings.ToLower(strings.TrimSpace(value))]
	return to, ok
}
