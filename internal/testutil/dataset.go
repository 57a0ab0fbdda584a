package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// DatasetHeader is the column layout of the diet recommendation training file.
var DatasetHeader = []string{
	"Patient_ID", "Age", "Gender", "Height_cm", "Weight_kg", "BMI",
	"Chronic_Disease", "Blood_Pressure_Systolic", "Blood_Pressure_Diastolic",
	"Cholesterol_Level", "Blood_Sugar_Level", "Genetic_Risk_Factor", "Allergies",
	"Daily_Steps", "Exercise_Frequency", "Sleep_Hours", "Alcohol_Consumption",
	"Smoking_Habit", "Dietary_Habits", "Preferred_Cuisine", "Food_Aversions",
	"Recommended_Calories", "Recommended_Protein", "Recommended_Carbs",
	"Recommended_Fats", "Recommended_Meal_Plan",
}

// Meal plans produced by DatasetCSV.
const (
	MealPlanBalanced    = "Balanced Diet"
	MealPlanLowCarb     = "Low-Carb Diet"
	MealPlanLowFat      = "Low-Fat Diet"
	MealPlanHighProtein = "High-Protein Diet"
)

var (
	genders    = []string{"Male", "Female", "Other"}
	diseases   = []string{"", "Diabetes", "Hypertension", "Heart Disease", "Obesity"}
	allergies  = []string{"", "Nut Allergy", "Gluten Intolerance", "Lactose Intolerance"}
	exercise   = []string{"", "Low", "Moderate", "High"}
	yesNo      = []string{"No", "Yes"}
	diets      = []string{"Regular", "Vegetarian", "Vegan", "Keto"}
	cuisines   = []string{"Indian", "Western", "Asian", "Mediterranean", "Indian"}
	aversions  = []string{"", "Spicy", "Sweet", "Salty"}
	smokeOrNot = []string{"No", "No", "Yes"}
)

// DatasetCSV returns a deterministic synthetic training file with n rows.
// Blank categorical cells exercise the declared defaults; targets follow
// simple rules so a fitted model has something to learn.
func DatasetCSV(n int) string {
	var b strings.Builder
	b.WriteString(strings.Join(DatasetHeader, ","))
	b.WriteByte('\n')

	for i := 0; i < n; i++ {
		age := 20 + (i*7)%55
		height := 150 + (i*13)%40
		weight := 50 + (i*11)%55
		bmi := math.Round(float64(weight)/math.Pow(float64(height)/100, 2)*100) / 100
		diet := diets[i%len(diets)]

		calories := 1400 + 9*weight + 4*(height-150) - 5*age
		protein := math.Round(float64(weight)*1.2*10) / 10
		carbs := math.Round(float64(calories)*0.5/4*10) / 10
		fats := math.Round(float64(calories)*0.3/9*10) / 10

		plan := MealPlanHighProtein
		switch {
		case bmi >= 28:
			plan = MealPlanLowCarb
		case diet == "Vegan" || diet == "Vegetarian":
			plan = MealPlanBalanced
		case age >= 55:
			plan = MealPlanLowFat
		}

		fields := []string{
			fmt.Sprintf("P%04d", i+1),
			fmt.Sprint(age),
			genders[i%len(genders)],
			fmt.Sprint(height),
			fmt.Sprint(weight),
			fmt.Sprint(bmi),
			diseases[i%len(diseases)],
			fmt.Sprint(110 + (i*3)%40),
			fmt.Sprint(70 + (i*5)%20),
			fmt.Sprint(150 + (i*17)%100),
			fmt.Sprint(80 + (i*19)%70),
			yesNo[(i/2)%2],
			allergies[i%len(allergies)],
			fmt.Sprint(2000 + (i*977)%10000),
			exercise[i%len(exercise)],
			fmt.Sprint(5 + float64(i%8)/2),
			yesNo[(i/3)%2],
			smokeOrNot[i%len(smokeOrNot)],
			diet,
			cuisines[i%len(cuisines)],
			aversions[i%len(aversions)],
			fmt.Sprint(calories),
			fmt.Sprint(protein),
			fmt.Sprint(carbs),
			fmt.Sprint(fats),
			plan,
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteDataset writes DatasetCSV(n) to a temporary file and returns its path.
func WriteDataset(t testing.TB, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diet.csv")
	if err := os.WriteFile(path, []byte(DatasetCSV(n)), 0o600); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}
	return path
}
