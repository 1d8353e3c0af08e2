package source_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcefetch/features/source"
)

func newRouter(repo *MockRepository, pub *MockPublisher) http.Handler {
	h := source.NewHandler(source.NewService(repo, pub))
	r := chi.NewRouter()
	r.Get("/sources/{id}", h.Get)
	r.Post("/sources/{id}/fetch", h.TriggerFetch)
	return r
}

func TestHandler_Get(t *testing.T) {
	repo := &MockRepository{sources: map[string]*source.Source{
		"src1": {ID: "src1", Name: "Example", Status: source.StatusActive},
	}}
	router := newRouter(repo, &MockPublisher{})

	t.Run("Found", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sources/src1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data source.Source `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Example", resp.Data.Name)
	})

	t.Run("NotFound", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sources/nope", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "NOT_FOUND")
	})
}

func TestHandler_TriggerFetch(t *testing.T) {
	repo := &MockRepository{sources: map[string]*source.Source{"src1": {ID: "src1"}}}

	t.Run("Accepted", func(t *testing.T) {
		pub := &MockPublisher{}
		router := newRouter(repo, pub)

		req := httptest.NewRequest(http.MethodPost, "/sources/src1/fetch", strings.NewReader(`{"reason":"manual"}`))
		req.Header.Set(source.HeaderUserID, "user-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, string(pub.Body), `"scheduled_by":"user"`)
		assert.Contains(t, string(pub.Body), `"user_id":"user-1"`)
	})

	t.Run("EmptyBody", func(t *testing.T) {
		router := newRouter(repo, &MockPublisher{})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sources/src1/fetch", nil))

		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("BadJSON", func(t *testing.T) {
		router := newRouter(repo, &MockPublisher{})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sources/src1/fetch", strings.NewReader(`{`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		router := newRouter(repo, &MockPublisher{})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sources/zzz/fetch", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
