package features

import (
	"errors"
	"sync"
	"testing"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/encoding"
	"github.com/Veraticus/nourish/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	events []encoding.Event
	mu     sync.Mutex
}

func (l *eventLog) Observe(e encoding.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(kind encoding.EventKind, field string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind && e.Field == field {
			n++
		}
	}
	return n
}

// trainingColumns mirrors the column order of the diet recommendation dataset.
var trainingColumns = []string{
	Age, Gender, HeightCM, WeightKG, BMI, ChronicDisease,
	BloodPressureSystolic, BloodPressureDiastolic, CholesterolLevel, BloodSugarLevel,
	GeneticRiskFactor, Allergies, DailySteps, ExerciseFrequency, SleepHours,
	AlcoholConsumption, SmokingHabit, DietaryHabits, PreferredCuisine, FoodAversions,
}

func testRegistry(t *testing.T) *encoding.Registry {
	t.Helper()
	columns := map[string][]string{
		Gender:             {"Male", "Female", "Male", "Other"},
		ChronicDisease:     {"Diabetes", "No Disease", "Hypertension", "No Disease", "Heart Disease"},
		GeneticRiskFactor:  {"No", "Yes", "No"},
		Allergies:          {"No", "Gluten Intolerance", "Lactose Intolerance", "No", "Nut Allergy"},
		ExerciseFrequency:  {"No", "Moderate", "High", "Moderate", "Low"},
		AlcoholConsumption: {"No", "Yes"},
		SmokingHabit:       {"No", "Yes", "No"},
		DietaryHabits:      {"Vegetarian", "Regular", "Vegan", "Keto", "Regular"},
		PreferredCuisine:   {"Indian", "Mediterranean", "Western", "Asian", "Indian"},
		FoodAversions:      {"No", "Spicy", "Salty", "Sweet", "No"},
		TargetMealPlan:     {"Balanced Diet", "Low-Carb Diet", "High-Protein Diet", "Low-Fat Diet"},
	}
	var encoders []*encoding.CategoricalEncoder
	for field, col := range columns {
		enc, err := encoding.Fit(field, col)
		require.NoError(t, err)
		encoders = append(encoders, enc)
	}
	reg, err := encoding.NewRegistry(encoders...)
	require.NoError(t, err)
	return reg
}

func testAligner(t *testing.T, oneHot ...string) (*Aligner, *eventLog) {
	t.Helper()
	log := &eventLog{}
	reg := testRegistry(t).WithObserver(log)
	schema, err := BuildSchema(trainingColumns, reg, oneHot)
	require.NoError(t, err)
	a, err := NewAligner(reg, schema)
	require.NoError(t, err)
	return a, log
}

func valueAt(t *testing.T, a *Aligner, vec Vector, col string) float64 {
	t.Helper()
	i, ok := a.Schema().Index(col)
	require.True(t, ok, "column %s not in schema", col)
	return vec[i]
}

func code(t *testing.T, a *Aligner, field, class string) float64 {
	t.Helper()
	enc, ok := a.Registry().Encoder(field)
	require.True(t, ok)
	c, ok := enc.Lookup(class)
	require.True(t, ok, "%s has no class %q", field, class)
	return float64(c)
}

func TestAlign_LengthAndOrderMatchSchema(t *testing.T) {
	a, _ := testAligner(t)

	profiles := []*model.HealthProfile{
		model.NewHealthProfile(),
		model.NewHealthProfile().Set("age", model.Number(40)).Set("gender", model.Text("Female")),
		model.NewHealthProfile().Set("Unrelated", model.Text("x")).Set("bmi", model.Number(22.5)),
	}

	for _, p := range profiles {
		vec, err := a.Align(p)
		require.NoError(t, err)
		assert.Len(t, vec, a.Schema().Len())
	}

	vec, err := a.Align(model.NewHealthProfile().Set("bmi", model.Number(22.5)).Set("age", model.Number(40)))
	require.NoError(t, err)
	assert.Equal(t, 40.0, vec[0], "Age is the first training column")
	assert.Equal(t, 22.5, vec[4], "BMI is the fifth training column")
}

func TestAlign_HeightConversion(t *testing.T) {
	tests := []struct {
		name    string
		profile *model.HealthProfile
		opts    []Option
		want    float64
	}{
		{
			name:    "bare height defaults to feet",
			profile: model.NewHealthProfile().Set("height", model.Number(5.5)),
			want:    167.64,
		},
		{
			name: "height tagged as feet",
			profile: model.NewHealthProfile().
				Set("height", model.Number(5.5)).
				Set("height_unit", model.Text("ft")),
			want: 167.64,
		},
		{
			name: "height tagged as centimeters passes through",
			profile: model.NewHealthProfile().
				Set("height", model.Number(170)).
				Set("height_unit", model.Text("cm")),
			want: 170,
		},
		{
			name:    "height_cm passes through",
			profile: model.NewHealthProfile().Set("height_cm", model.Number(170)),
			want:    170,
		},
		{
			name:    "height_ft converts",
			profile: model.NewHealthProfile().Set("height_ft", model.Text("5.5")),
			want:    167.64,
		},
		{
			name:    "small centimeter value is not reinterpreted",
			profile: model.NewHealthProfile().Set("Height_cm", model.Number(90)),
			want:    90,
		},
		{
			name:    "configured default unit",
			profile: model.NewHealthProfile().Set("height", model.Number(182)),
			opts:    []Option{WithDefaultHeightUnit(Centimeters)},
			want:    182,
		},
		{
			name: "canonical name wins over alias",
			profile: model.NewHealthProfile().
				Set("Height_cm", model.Number(170)).
				Set("height", model.Number(5.5)),
			want: 170,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := testRegistry(t)
			schema, err := BuildSchema(trainingColumns, reg, nil)
			require.NoError(t, err)
			a, err := NewAligner(reg, schema, tt.opts...)
			require.NoError(t, err)

			vec, err := a.Align(tt.profile)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, valueAt(t, a, vec, HeightCM), 1e-6)
		})
	}
}

func TestAlign_InvalidHeightUnit(t *testing.T) {
	a, _ := testAligner(t)
	_, err := a.Align(model.NewHealthProfile().
		Set("height", model.Number(5.5)).
		Set("height_unit", model.Text("furlongs")))

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, HeightUnitField, fe.Field)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAlign_DeclaredDefaults(t *testing.T) {
	a, log := testAligner(t)

	vec, err := a.Align(model.NewHealthProfile().
		Set("chronic_disease", model.Null()).
		Set("allergies", model.Text("   ")))
	require.NoError(t, err)

	assert.Equal(t, code(t, a, ChronicDisease, "No Disease"), valueAt(t, a, vec, ChronicDisease))
	assert.Equal(t, code(t, a, Allergies, "No"), valueAt(t, a, vec, Allergies))
	assert.Equal(t, code(t, a, FoodAversions, "No"), valueAt(t, a, vec, FoodAversions))
	assert.Equal(t, code(t, a, ExerciseFrequency, "No"), valueAt(t, a, vec, ExerciseFrequency))

	assert.Equal(t, 1, log.count(encoding.KindDefaultFilled, ChronicDisease))
	assert.Equal(t, 0, log.count(encoding.KindUnseenCategory, ChronicDisease))
}

func TestAlign_UnseenCategoryUsesFallback(t *testing.T) {
	a, log := testAligner(t)

	vec, err := a.Align(model.NewHealthProfile().Set("preferred_cuisine", model.Text("Martian")))
	require.NoError(t, err)

	enc, _ := a.Registry().Encoder(PreferredCuisine)
	assert.Equal(t, float64(enc.Fallback()), valueAt(t, a, vec, PreferredCuisine))
	assert.Equal(t, 1, log.count(encoding.KindUnseenCategory, PreferredCuisine))
}

func TestAlign_NonNumericFails(t *testing.T) {
	tests := []struct {
		name      string
		profile   *model.HealthProfile
		wantField string
	}{
		{
			name:      "age",
			profile:   model.NewHealthProfile().Set("age", model.Text("abc")),
			wantField: "age",
		},
		{
			name:      "canonical spelling is reported as sent",
			profile:   model.NewHealthProfile().Set("Sleep_Hours", model.Text("lots")),
			wantField: "Sleep_Hours",
		},
		{
			name:      "height",
			profile:   model.NewHealthProfile().Set("height", model.Text("tall")),
			wantField: "height",
		},
		{
			name:      "not finite",
			profile:   model.NewHealthProfile().Set("weight", model.Text("NaN")),
			wantField: "weight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := testAligner(t)
			_, err := a.Align(tt.profile)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidInput))

			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantField, fe.Field)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestAlign_NumericStringsAreAccepted(t *testing.T) {
	a, _ := testAligner(t)
	vec, err := a.Align(model.NewHealthProfile().Set("age", model.Text(" 34 ")))
	require.NoError(t, err)
	assert.Equal(t, 34.0, valueAt(t, a, vec, Age))
}

func TestAlign_DerivesBMI(t *testing.T) {
	a, log := testAligner(t)

	vec, err := a.Align(model.NewHealthProfile().
		Set("height_cm", model.Number(180)).
		Set("weight", model.Number(81)))
	require.NoError(t, err)
	assert.InDelta(t, 25.0, valueAt(t, a, vec, BMI), 1e-9)
	assert.Equal(t, 1, log.count(encoding.KindDefaultFilled, BMI))

	vec, err = a.Align(model.NewHealthProfile().
		Set("height_cm", model.Number(180)).
		Set("weight", model.Number(81)).
		Set("bmi", model.Number(30)))
	require.NoError(t, err)
	assert.Equal(t, 30.0, valueAt(t, a, vec, BMI), "a supplied BMI is kept")
}

func TestAlign_MissingColumnsZeroFilled(t *testing.T) {
	a, log := testAligner(t)
	vec, err := a.Align(model.NewHealthProfile())
	require.NoError(t, err)

	assert.Equal(t, 0.0, valueAt(t, a, vec, DailySteps))
	assert.Equal(t, 1, log.count(encoding.KindMissingField, DailySteps))
	assert.Zero(t, log.count(encoding.KindSchemaDrift, DailySteps))
}

func TestAlign_SchemaDriftZeroFilled(t *testing.T) {
	log := &eventLog{}
	reg := testRegistry(t).WithObserver(log)
	schema, err := NewSchema([]string{Age, "Waist_Circumference"}, nil, nil)
	require.NoError(t, err)
	a, err := NewAligner(reg, schema)
	require.NoError(t, err)

	vec, err := a.Align(model.NewHealthProfile().Set("age", model.Number(50)).Set("gender", model.Text("Male")))
	require.NoError(t, err)
	assert.Equal(t, Vector{50, 0}, vec, "extra columns are discarded, unknown ones zero-filled")
	assert.Equal(t, 1, log.count(encoding.KindSchemaDrift, "Waist_Circumference"))
}

func TestAlign_OneHotColumns(t *testing.T) {
	a, _ := testAligner(t, DietaryHabits, PreferredCuisine)

	_, ok := a.Schema().Index(DietaryHabits)
	assert.False(t, ok, "one-hot field is replaced by its dummy columns")
	_, ok = a.Schema().Index(OneHotColumn(DietaryHabits, "Keto"))
	assert.False(t, ok, "first category is dropped")

	vec, err := a.Align(model.NewHealthProfile().
		Set("dietary_habits", model.Text("Vegetarian")).
		Set("preferred_cuisine", model.Text("Martian")))
	require.NoError(t, err)

	assert.Equal(t, 1.0, valueAt(t, a, vec, OneHotColumn(DietaryHabits, "Vegetarian")))
	assert.Equal(t, 0.0, valueAt(t, a, vec, OneHotColumn(DietaryHabits, "Vegan")))
	// Unseen cuisine resolves to the fallback category, Indian.
	assert.Equal(t, 1.0, valueAt(t, a, vec, OneHotColumn(PreferredCuisine, "Indian")))
	assert.Equal(t, 0.0, valueAt(t, a, vec, OneHotColumn(PreferredCuisine, "Western")))
}

func TestNewAligner_OneHotNeedsEncoder(t *testing.T) {
	reg, err := encoding.NewRegistry()
	require.NoError(t, err)
	schema, err := NewSchema([]string{"Dietary_Habits_Vegan"}, []string{DietaryHabits}, nil)
	require.NoError(t, err)

	_, err = NewAligner(reg, schema)
	require.ErrorIs(t, err, ErrOneHotEncoder)
}

func TestVectorize_TrainingRowsMatchServing(t *testing.T) {
	a, _ := testAligner(t)

	// A training row arrives under CSV header names with text cells and no BMI.
	row := model.NewHealthProfile().
		Set("Age", model.Text("34")).
		Set("Gender", model.Text("Male")).
		Set("Height_cm", model.Text("167.64")).
		Set("Weight_kg", model.Text("70")).
		Set("Smoking_Habit", model.Text("Never")).
		Set("Preferred_Cuisine", model.Text("Indian"))
	rec, err := NewNormalizer(Feet, nil, nil).Normalize(row)
	require.NoError(t, err)
	FillDefaults(rec, a.knows, nil)
	trained, err := a.Vectorize(rec)
	require.NoError(t, err)

	served, err := a.Align(model.NewHealthProfile().
		Set("age", model.Number(34)).
		Set("gender", model.Text("Male")).
		Set("height", model.Number(5.5)).
		Set("weight", model.Number(70)).
		Set("smoking_habit", model.Text("Non-smoker")).
		Set("preferred_cuisine", model.Text("Indian")))
	require.NoError(t, err)

	require.Len(t, served, len(trained))
	for i := range trained {
		assert.InDelta(t, trained[i], served[i], 1e-9, "column %s", a.Schema().Columns()[i])
	}
	assert.InDelta(t, 24.91, valueAt(t, a, trained, BMI), 1e-9)
}

func TestAlign_FormTokens(t *testing.T) {
	a, log := testAligner(t)

	vec, err := a.Align(model.NewHealthProfile().
		Set("smoking_habit", model.Text("Non-smoker")).
		Set("exercise_frequency", model.Text("never")).
		Set("alcohol_consumption", model.Text(" Never ")))
	require.NoError(t, err)

	assert.Equal(t, code(t, a, SmokingHabit, "No"), valueAt(t, a, vec, SmokingHabit))
	assert.Equal(t, code(t, a, ExerciseFrequency, "No"), valueAt(t, a, vec, ExerciseFrequency))
	assert.Equal(t, code(t, a, AlcoholConsumption, "No"), valueAt(t, a, vec, AlcoholConsumption))
	assert.Zero(t, log.count(encoding.KindUnseenCategory, SmokingHabit))

	_, ok := Synonym(PreferredCuisine, "Never")
	assert.False(t, ok, "synonyms are per field")
}

func TestAlign_DefaultsOnlyForModelColumns(t *testing.T) {
	log := &eventLog{}
	reg := testRegistry(t)
	enc, ok := reg.Encoder(Gender)
	require.True(t, ok)
	reg, err := encoding.NewRegistry(enc)
	require.NoError(t, err)
	reg = reg.WithObserver(log)

	schema, err := NewSchema([]string{Age, Gender}, nil, nil)
	require.NoError(t, err)
	a, err := NewAligner(reg, schema)
	require.NoError(t, err)

	_, err = a.Align(model.NewHealthProfile().Set("age", model.Number(30)).Set("gender", model.Text("Male")))
	require.NoError(t, err)

	for _, field := range []string{ChronicDisease, Allergies, FoodAversions, ExerciseFrequency} {
		assert.Zero(t, log.count(encoding.KindDefaultFilled, field), field)
		assert.Zero(t, log.count(encoding.KindMissingEncoder, field), field)
	}
}

func TestAlign_ExtraSchemaColumns(t *testing.T) {
	log := &eventLog{}
	reg := testRegistry(t).WithObserver(log)
	schema, err := NewSchema([]string{Age, "Waist_cm"}, nil, nil)
	require.NoError(t, err)
	a, err := NewAligner(reg, schema)
	require.NoError(t, err)

	vec, err := a.Align(model.NewHealthProfile().Set("age", model.Number(50)).Set("WAIST_CM", model.Number(88)))
	require.NoError(t, err)
	assert.Equal(t, Vector{50, 88}, vec)
	assert.Zero(t, log.count(encoding.KindUnknownField, "WAIST_CM"))
	assert.Zero(t, log.count(encoding.KindSchemaDrift, "Waist_cm"))

	_, err = a.Align(model.NewHealthProfile().Set("waist_cm", model.Text("wide")))
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "waist_cm", fe.Field)
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		wantUnit HeightUnit
		ok       bool
	}{
		{in: "food_aversion", want: FoodAversions, ok: true},
		{in: "Food_Aversions", want: FoodAversions, ok: true},
		{in: "BLOOD_SUGAR_LEVEL", want: BloodSugarLevel, ok: true},
		{in: "weight", want: WeightKG, ok: true},
		{in: "height", want: HeightCM, ok: true},
		{in: "height_ft", want: HeightCM, wantUnit: Feet, ok: true},
		{in: "Height_cm", want: HeightCM, wantUnit: Centimeters, ok: true},
		{in: "favourite_colour", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, unit, ok := Canonical(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantUnit, unit)
		})
	}
}
