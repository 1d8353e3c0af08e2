package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sourcefetch/features/job"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
func (m *MockRepo) List(ctx context.Context) ([]job.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}
func (m *MockRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}
func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
	sleep time.Duration
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	time.Sleep(m.sleep)
	args := m.Called(topic, body)
	return args.Error(0)
}

func newRouter(svc *job.Service) http.Handler {
	h := job.NewHandler(svc)
	r := chi.NewRouter()
	r.Get("/jobs/failed", h.List)
	r.Post("/jobs/{id}/retry", h.Retry)
	return r
}

func TestHandler_List(t *testing.T) {
	mockRepo := new(MockRepo)
	router := newRouter(job.NewService(mockRepo, nil))

	mockRepo.On("List", mock.Anything).Return([]job.Job{{ID: "j1", Topic: "fetch.result"}}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/failed", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []job.Job     `json:"data"`
		Meta map[string]int `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Meta["count"])
	assert.Equal(t, "fetch.result", resp.Data[0].Topic)
}

func TestHandler_List_Empty(t *testing.T) {
	mockRepo := new(MockRepo)
	router := newRouter(job.NewService(mockRepo, nil))

	mockRepo.On("List", mock.Anything).Return(nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/failed", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestHandler_Retry(t *testing.T) {
	t.Run("NotFound", func(t *testing.T) {
		mockRepo := new(MockRepo)
		router := newRouter(job.NewService(mockRepo, new(MockPublisher)))
		mockRepo.On("Get", mock.Anything, "99").Return(nil, job.ErrNotFound)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/99/retry", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockRepo)
		mockPub := new(MockPublisher)
		router := newRouter(job.NewService(mockRepo, mockPub))

		payload := json.RawMessage(`{"id":"r1"}`)
		mockRepo.On("Get", mock.Anything, "1").Return(&job.Job{ID: "1", Topic: "fetch.result", Payload: payload}, nil)
		mockPub.On("Publish", "fetch.result", []byte(payload)).Return(nil)
		mockRepo.On("Delete", mock.Anything, "1").Return(nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/1/retry", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		mockRepo.AssertExpectations(t)
		mockPub.AssertExpectations(t)
	})

	t.Run("PublishError", func(t *testing.T) {
		mockRepo := new(MockRepo)
		mockPub := new(MockPublisher)
		router := newRouter(job.NewService(mockRepo, mockPub))

		mockRepo.On("Get", mock.Anything, "1").Return(&job.Job{ID: "1", Topic: "fetch.orchestrate"}, nil)
		mockPub.On("Publish", "fetch.orchestrate", mock.Anything).Return(errors.New("nsq down"))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/1/retry", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		mockRepo.AssertNotCalled(t, "Delete", mock.Anything, "1")
	})
}
