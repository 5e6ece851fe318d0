package anticipation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/activity"
	"github.com/saaga0h/jeeves-anticipation/internal/feedback"
	"github.com/saaga0h/jeeves-anticipation/internal/learning"
	"github.com/saaga0h/jeeves-anticipation/internal/suggestion"
)

// defaultSummaryWindow is used when a summary request has no window parameter
const defaultSummaryWindow = 24 * time.Hour

// maxBodyBytes limits request bodies
const maxBodyBytes = 1 << 20

// API exposes the service over HTTP
type API struct {
	service *Service
	logger  *slog.Logger
}

// NewAPI creates the HTTP API for service
func NewAPI(service *Service, logger *slog.Logger) *API {
	return &API{
		service: service,
		logger:  logger,
	}
}

// Register adds all API routes to mux
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /activity", a.handleRecordActivity)
	mux.HandleFunc("GET /suggestions", a.handleActiveSuggestions)
	mux.HandleFunc("POST /suggestions/{id}/{action}", a.handleRespond)
	mux.HandleFunc("POST /feedback/thumbs", a.handleThumbs)
	mux.HandleFunc("POST /feedback/rating", a.handleRating)
	mux.HandleFunc("POST /edits", a.handleSubmitEdit)
	mux.HandleFunc("GET /profile", a.handleProfile)
	mux.HandleFunc("PUT /profile/{field}", a.handleUpdatePreference)
	mux.HandleFunc("GET /feedback/summary", a.handleFeedbackSummary)
	mux.HandleFunc("GET /adaptations/summary", a.handleAdaptationSummary)
	mux.HandleFunc("GET /context", a.handleContext)
	mux.HandleFunc("GET /status", a.handleStatus)
}

// Handler returns a mux serving only the API routes
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.Register(mux)
	return mux
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

type activityRequest struct {
	ActivityType    string                 `json:"activity_type"`
	Context         map[string]interface{} `json:"context,omitempty"`
	DurationSeconds float64                `json:"duration_seconds"`
	Intensity       float64                `json:"intensity"`
}

type respondRequest struct {
	Rating *float64 `json:"rating,omitempty"`
}

type thumbsRequest struct {
	Positive     bool                   `json:"positive"`
	SuggestionID string                 `json:"suggestion_id,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

type ratingRequest struct {
	Value        float64                `json:"value"`
	Kind         string                 `json:"kind,omitempty"`
	SuggestionID string                 `json:"suggestion_id,omitempty"`
	Comment      string                 `json:"comment,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

type editRequest struct {
	ItemKind string                 `json:"item_kind"`
	ItemID   string                 `json:"item_id,omitempty"`
	Original string                 `json:"original"`
	Edited   string                 `json:"edited"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

type preferenceRequest struct {
	Value interface{} `json:"value"`
}

func (a *API) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !a.decode(w, r, &req) {
		return
	}

	id, err := a.service.RecordActivity(req.ActivityType, req.Context, req.DurationSeconds, req.Intensity)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *API) handleActiveSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.ActiveSuggestions())
}

func (a *API) handleRespond(w http.ResponseWriter, r *http.Request) {
	action, err := ParseAction(r.PathValue("action"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	// the rating body is optional
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	if err := a.service.RespondToSuggestion(r.PathValue("id"), action, req.Rating); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleThumbs(w http.ResponseWriter, r *http.Request) {
	var req thumbsRequest
	if !a.decode(w, r, &req) {
		return
	}

	f, err := a.service.RecordThumbs(req.Positive, req.SuggestionID, req.Context)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (a *API) handleRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = string(feedback.KindRating)
	}
	kind, err := feedback.ParseKind(req.Kind)
	if err != nil {
		a.writeError(w, err)
		return
	}

	f, err := a.service.RecordRating(req.Value, kind, req.SuggestionID, req.Comment, req.Context)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (a *API) handleSubmitEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !a.decode(w, r, &req) {
		return
	}

	f, err := a.service.SubmitEdit(r.Context(), req.ItemKind, req.ItemID, req.Original, req.Edited, req.Context)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.Profile())
}

func (a *API) handleUpdatePreference(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if !a.decode(w, r, &req) {
		return
	}

	record, err := a.service.UpdateManualPreference(r.PathValue("field"), req.Value)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile":    a.service.Profile(),
		"adaptation": record,
	})
}

func (a *API) handleFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a.service.FeedbackSummary(window))
}

func (a *API) handleAdaptationSummary(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a.service.AdaptationSummary(window))
}

func (a *API) handleContext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.CurrentContext())
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.Status())
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.logger.Debug("Invalid request body", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("Request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, suggestion.ErrNotFound),
		errors.Is(err, feedback.ErrUnknownSuggestion):
		return http.StatusNotFound
	case errors.Is(err, activity.ErrInvalidActivity),
		errors.Is(err, feedback.ErrInvalidRating),
		errors.Is(err, feedback.ErrInvalidKind),
		errors.Is(err, learning.ErrUnknownDimension),
		errors.Is(err, learning.ErrOutOfRange),
		errors.Is(err, ErrInvalidAction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseWindow reads ?window= as a Go duration ("24h") or a number of seconds
func parseWindow(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return defaultSummaryWindow, nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid window %q", raw)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
