package anticipation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-anticipation/internal/feedback"
	"github.com/saaga0h/jeeves-anticipation/internal/learning"
	"github.com/saaga0h/jeeves-anticipation/internal/suggestion"
)

func newTestAPI(t *testing.T) (*Service, http.Handler) {
	t.Helper()
	s := newTestService(t, newFakeClock(), Dependencies{})
	return s, NewAPI(s, testLogger()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_RecordActivity(t *testing.T) {
	s, h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/activity", `{"activity_type": "writing", "duration_seconds": 900, "intensity": 0.6}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, 1, s.Status().Activities)

	rec = do(t, h, http.MethodPost, "/activity", `{"activity_type": "writing", "duration_seconds": 900, "intensity": 2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/activity", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/activity", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPI_SuggestionsAndResponses(t *testing.T) {
	s, h := newTestAPI(t)
	first := testSuggestion(suggestion.CategoryWellbeing, "Take a break", 0.9, testStart)
	second := testSuggestion(suggestion.CategoryLearning, "Review notes", 0.6, testStart)
	admit(t, s, first, second)

	rec := do(t, h, http.MethodGet, "/suggestions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active []suggestion.Suggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)

	rec = do(t, h, http.MethodPost, "/suggestions/"+first.ID+"/accept", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/suggestions/"+first.ID+"/accept", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/suggestions/"+second.ID+"/snooze", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/suggestions/"+second.ID+"/reject", `{"rating": 9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/suggestions/"+second.ID+"/reject", `{"rating": 2}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	items := s.RecentFeedback(0)
	require.Len(t, items, 2)
	assert.Equal(t, feedback.KindReject, items[1].Kind)
	assert.Equal(t, 2.0, items[1].RatingValue())
}

func TestAPI_RespondRejectsOversizedBody(t *testing.T) {
	s, h := newTestAPI(t)
	sg := testSuggestion(suggestion.CategoryWellbeing, "Take a break", 0.9, testStart)
	admit(t, s, sg)

	body := `{"rating": 2, "note": "` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec := do(t, h, http.MethodPost, "/suggestions/"+sg.ID+"/reject", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, s.ActiveSuggestions(), 1)
	assert.Empty(t, s.RecentFeedback(0))
}

func TestAPI_FeedbackEndpoints(t *testing.T) {
	s, h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/edits", `{"item_kind": "summary", "original": "0123456789", "edited": "0123456789abcdef"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var f feedback.Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, 3.0, f.RatingValue())

	rec = do(t, h, http.MethodPost, "/feedback/rating", `{"value": 5, "comment": "great"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/feedback/rating", `{"value": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/feedback/rating", `{"value": 3, "kind": "shrug"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/feedback/thumbs", `{"positive": true, "suggestion_id": "unknown"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/feedback/summary?window=1h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary feedback.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 3600.0, summary.WindowSeconds)

	rec = do(t, h, http.MethodGet, "/feedback/summary?window=-5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 2, s.Status().Feedback)
}

func TestAPI_Profile(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, http.MethodPut, "/profile/intervention_frequency", `{"value": 0.25}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile learning.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, 0.25, profile.InterventionFrequency)

	rec = do(t, h, http.MethodPut, "/profile/preferred_time_windows", `{"value": [{"start_hour": 7, "end_hour": 10}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/profile/mood", `{"value": 0.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/adaptations/summary?window=3600", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary learning.AdaptationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Count)
}

func TestAPI_ContextAndStatus(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, http.MethodGet, "/context", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"primary_activity":"idle"`)

	rec = do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "idle", status.Orchestrator.State)
	assert.False(t, status.Orchestrator.Running)
}
