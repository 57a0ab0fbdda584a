package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Veraticus/nourish/internal/model"
	"github.com/Veraticus/nourish/internal/service"
)

// Recommendation is the response body of POST /predict/recommendation. The
// field names are the ones web clients already read.
type Recommendation struct {
	MealPlan string  `json:"Recommended_Meal_Plan"`
	UserID   string  `json:"userId,omitempty"`
	Calories float64 `json:"Recommended_Calories"`
	Protein  float64 `json:"Recommended_Protein"`
	Carbs    float64 `json:"Recommended_Carbs"`
	Fats     float64 `json:"Recommended_Fats"`
}

// HistoryItem is one entry of the prediction history listing.
type HistoryItem struct {
	CreatedAt    time.Time `json:"createdAt"`
	ID           string    `json:"id"`
	RequestID    string    `json:"requestId,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	MealPlan     string    `json:"mealPlan"`
	ModelVersion string    `json:"modelVersion,omitempty"`
	Calories     float64   `json:"calories"`
	Protein      float64   `json:"protein"`
	Carbs        float64   `json:"carbs"`
	Fats         float64   `json:"fats"`
}

// HistoryPage is the response body of GET /api/v1/predictions.
type HistoryPage struct {
	Predictions []HistoryItem `json:"predictions"`
	Total       int           `json:"total"`
	Limit       int           `json:"limit"`
	Offset      int           `json:"offset"`
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request) {
	var profile model.HealthProfile
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&profile); err != nil {
		msg := "invalid json body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", msg)
		return
	}

	p, err := h.service.Predict(r.Context(), &profile)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("X-Prediction-Id", p.ID)
	if p.ModelVersion != "" {
		w.Header().Set("X-Model-Version", p.ModelVersion)
	}
	writeJSON(w, http.StatusOK, Recommendation{
		MealPlan: p.MealPlan,
		UserID:   p.UserID,
		Calories: p.Calories,
		Protein:  p.Protein,
		Carbs:    p.Carbs,
		Fats:     p.Fats,
	})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("Readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "prediction store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":       "ready",
		"model_version": h.service.Context().ModelVersion(),
	})
}

func (h *Handler) diagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Context().Diagnostics().Snapshot())
}

func (h *Handler) listPredictions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	got, err := h.store.ListPredictions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	total, err := h.store.CountPredictions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	page := HistoryPage{
		Predictions: make([]HistoryItem, 0, len(got)),
		Total:       total,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if page.Limit == 0 {
		page.Limit = service.DefaultHistoryLimit
	}
	for i := range got {
		page.Predictions = append(page.Predictions, NewHistoryItem(&got[i].Prediction))
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) getPrediction(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetPrediction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewHistoryItem(&p.Prediction))
}

// NewHistoryItem converts a stored prediction to its API shape.
func NewHistoryItem(p *model.Prediction) HistoryItem {
	return HistoryItem{
		CreatedAt:    p.CreatedAt,
		ID:           p.ID,
		RequestID:    p.RequestID,
		UserID:       p.UserID,
		MealPlan:     p.MealPlan,
		ModelVersion: p.ModelVersion,
		Calories:     p.Calories,
		Protein:      p.Protein,
		Carbs:        p.Carbs,
		Fats:         p.Fats,
	}
}

func parseFilter(r *http.Request) (service.PredictionFilter, error) {
	q := r.URL.Query()
	filter := service.PredictionFilter{UserID: strings.TrimSpace(q.Get("user_id"))}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return filter, err
	}
	if filter.Since, err = timeParam(q.Get("since"), "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = timeParam(q.Get("until"), "until"); err != nil {
		return filter, err
	}
	return filter, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

func timeParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New(name + " must be an RFC 3339 timestamp")
	}
	return &t, nil
}
