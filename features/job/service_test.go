package job_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"sourcefetch/features/job"
)

func TestService_Retry_Timeout(t *testing.T) {
	mockRepo := new(MockRepo)
	mockPub := &MockPublisher{sleep: 200 * time.Millisecond}
	svc := job.NewService(mockRepo, mockPub).WithPublishTimeout(20 * time.Millisecond)

	mockRepo.On("Get", mock.Anything, "1").Return(&job.Job{ID: "1", Topic: "fetch.result", Payload: []byte("{}")}, nil)
	mockPub.On("Publish", "fetch.result", mock.Anything).Return(nil)

	err := svc.Retry(context.Background(), "1")
	assert.ErrorIs(t, err, job.ErrPublishTimeout)
	mockRepo.AssertNotCalled(t, "Delete", mock.Anything, "1")
}

func TestService_Record(t *testing.T) {
	mockRepo := new(MockRepo)
	svc := job.NewService(mockRepo, nil)

	j := &job.Job{Handler: "collector", Topic: "fetch.collect.rss", Payload: []byte(`{}`), Error: "boom", Attempts: 5}
	mockRepo.On("Save", mock.Anything, j).Return(nil)

	assert.NoError(t, svc.Record(context.Background(), j))
	mockRepo.AssertExpectations(t)
}
