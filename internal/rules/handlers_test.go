package rules

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/reelsip/internal/database/dbtest"
	"github.com/jimdaga/reelsip/internal/models"
	"github.com/jimdaga/reelsip/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	ids []string
	err error
}

func (f *fakeEnqueuer) EnqueueRunRule(ruleID string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, ruleID)
	return nil
}

func newRouter(t *testing.T, enqueuer RunEnqueuer) (*gin.Engine, *Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := NewStore(dbtest.New(t))
	r := gin.New()
	RegisterRoutes(r.Group("/recurring-content"), store, enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r, store
}

func do(r http.Handler, method, path, org, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if org != "" {
		req.Header.Set(tenant.HeaderOrganizationID, org)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const validBody = `{
  "name": "Cat facts",
  "active": true,
  "topics": ["cats"],
  "integrations": [{"id": "int-1"}, {"id": "int-2"}],
  "style": "viral",
  "videoOrientation": "vertical",
  "schedule": "mon, wed,FRI",
  "scheduleTime": "10:00"
}`

func TestCreateAndGet(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := do(r, http.MethodPost, "/recurring-content", "org-1", validBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.RecurringRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "org-1", created.OrganizationID)
	assert.Equal(t, models.ProviderOpenAI, created.AIProvider)
	assert.Equal(t, []string{"MON", "WED", "FRI"}, []string(created.Schedule))
	assert.Equal(t, []string{"int-1", "int-2"}, []string(created.IntegrationIDs))

	w = do(r, http.MethodGet, "/recurring-content/"+created.ID, "org-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/recurring-content/"+created.ID, "org-2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/recurring-content", "org-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.RecurringRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCreate_Validation(t *testing.T) {
	r, _ := newRouter(t, nil)

	cases := map[string]string{
		"bad style":    strings.Replace(validBody, `"viral"`, `"spicy"`, 1),
		"bad weekday":  strings.Replace(validBody, `"mon, wed,FRI"`, `"MON,XYZ"`, 1),
		"bad time":     strings.Replace(validBody, `"10:00"`, `"10:75"`, 1),
		"no topics":    strings.Replace(validBody, `["cats"]`, `[]`, 1),
		"bad provider": strings.Replace(validBody, `"name"`, `"aiProvider": "gemini", "name"`, 1),
		"no active":    strings.Replace(validBody, `"active": true,`, ``, 1),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/recurring-content", "org-1", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestRequiresOrganization(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := do(r, http.MethodGet, "/recurring-content", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	r, store := newRouter(t, nil)
	rule := newRule("x", true)
	require.NoError(t, store.Create(context.Background(), "org-1", rule))

	body := strings.Replace(validBody, `"Cat facts"`, `"Dog facts"`, 1)
	w := do(r, http.MethodPut, "/recurring-content/"+rule.ID, "org-1", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.RecurringRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Dog facts", updated.Name)
	assert.Equal(t, models.StyleViral, updated.Style)

	w = do(r, http.MethodDelete, "/recurring-content/"+rule.ID, "org-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodDelete, "/recurring-content/"+rule.ID, "org-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToggleHandler(t *testing.T) {
	r, store := newRouter(t, nil)
	rule := newRule("x", true)
	require.NoError(t, store.Create(context.Background(), "org-1", rule))
	firedAt := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	require.NoError(t, store.MarkFired(context.Background(), rule.ID, firedAt))

	w := do(r, http.MethodPost, "/recurring-content/"+rule.ID+"/toggle", "org-1", `{"active": false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var toggled models.RecurringRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &toggled))
	assert.False(t, toggled.Active)
	assert.Equal(t, "x", toggled.Name)
	assert.Equal(t, []string{"MON", "FRI"}, []string(toggled.Schedule))
	assert.Equal(t, "08:30", toggled.ScheduleTime)
	assert.Equal(t, []string{"cats", "dogs"}, []string(toggled.Topics))
	assert.Equal(t, []string{"int-1"}, []string(toggled.IntegrationIDs))
	assert.Equal(t, models.StyleNews, toggled.Style)
	assert.Equal(t, models.ProviderGrok, toggled.AIProvider)
	require.NotNil(t, toggled.LastRunAt)
	assert.True(t, firedAt.Equal(*toggled.LastRunAt))

	w = do(r, http.MethodPost, "/recurring-content/"+rule.ID+"/toggle", "org-1", `{"active": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err := store.Find(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
	require.NotNil(t, stored.LastRunAt)
	assert.True(t, firedAt.Equal(*stored.LastRunAt))
}

func TestToggleHandler_Errors(t *testing.T) {
	r, store := newRouter(t, nil)
	rule := newRule("x", true)
	require.NoError(t, store.Create(context.Background(), "org-1", rule))

	tests := []struct {
		name string
		id   string
		org  string
		body string
		want int
	}{
		{name: "missing active", id: rule.ID, org: "org-1", body: `{}`, want: http.StatusBadRequest},
		{name: "not a bool", id: rule.ID, org: "org-1", body: `{"active": "yes"}`, want: http.StatusBadRequest},
		{name: "other organization", id: rule.ID, org: "org-2", body: `{"active": false}`, want: http.StatusNotFound},
		{name: "unknown rule", id: "missing", org: "org-1", body: `{"active": false}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/recurring-content/"+tt.id+"/toggle", tt.org, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	stored, err := store.Find(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
}

func TestRunHandler(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	r, store := newRouter(t, enqueuer)
	rule := newRule("x", true)
	require.NoError(t, store.Create(context.Background(), "org-1", rule))

	w := do(r, http.MethodPost, "/recurring-content/"+rule.ID+"/run", "org-1", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{rule.ID}, enqueuer.ids)

	w = do(r, http.MethodPost, "/recurring-content/missing/run", "org-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	enqueuer.err = errors.New("redis down")
	w = do(r, http.MethodPost, "/recurring-content/"+rule.ID+"/run", "org-1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRunHandler_NoQueue(t *testing.T) {
	r, store := newRouter(t, nil)
	rule := newRule("x", true)
	require.NoError(t, store.Create(context.Background(), "org-1", rule))

	w := do(r, http.MethodPost, "/recurring-content/"+rule.ID+"/run", "org-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
