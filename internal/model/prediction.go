package model

import "time"

// Prediction is the result of running a health profile through the model.
type Prediction struct {
	CreatedAt    time.Time
	ID           string
	RequestID    string
	UserID       string
	MealPlan     string
	ModelVersion string
	MealPlanCode int
	Calories     float64
	Protein      float64
	Carbs        float64
	Fats         float64
}

// StoredPrediction pairs a persisted prediction with the profile that produced it.
type StoredPrediction struct {
	Prediction
	Profile HealthProfile
}
