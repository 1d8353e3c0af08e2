package source_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcefetch/features/source"
	"sourcefetch/internal/config"
	"sourcefetch/internal/middleware"
	"sourcefetch/internal/pipeline"
)

type MockRepository struct {
	sources map[string]*source.Source
	getErr  error
}

func (m *MockRepository) Get(ctx context.Context, id string) (*source.Source, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sources[id]
	if !ok {
		return nil, source.ErrNotFound
	}
	return s, nil
}

func (m *MockRepository) ListEligible(ctx context.Context, erroredBefore time.Time) ([]source.Source, error) {
	var out []source.Source
	for _, s := range m.sources {
		out = append(out, *s)
	}
	return out, nil
}

func (m *MockRepository) UpdateMetadata(ctx context.Context, id string, expectedVersion int64, meta source.Metadata) error {
	return nil
}

func (m *MockRepository) Save(ctx context.Context, src *source.Source) error {
	if m.sources == nil {
		m.sources = map[string]*source.Source{}
	}
	m.sources[src.ID] = src
	return nil
}

func (m *MockRepository) Count(ctx context.Context) (int, error) {
	return len(m.sources), nil
}

func (m *MockRepository) CountByStatus(ctx context.Context) (map[source.Status]int, error) {
	counts := map[source.Status]int{}
	for _, s := range m.sources {
		counts[s.Status]++
	}
	return counts, nil
}

type MockPublisher struct {
	Topic string
	Body  []byte
	Err   error
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	m.Topic = topic
	m.Body = body
	return m.Err
}

func TestService_TriggerFetch(t *testing.T) {
	repo := &MockRepository{sources: map[string]*source.Source{
		"src1": {ID: "src1", Status: source.StatusActive},
	}}
	pub := &MockPublisher{}
	svc := source.NewService(repo, pub)

	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
	job, err := svc.TriggerFetch(ctx, "src1", "user-9", "breaking news")
	require.NoError(t, err)

	assert.Equal(t, config.TopicOrchestrate, pub.Topic)
	assert.Equal(t, pipeline.ScheduledByUser, job.ScheduledBy)

	var published pipeline.OrchestratorJob
	require.NoError(t, json.Unmarshal(pub.Body, &published))
	assert.Equal(t, job.ID, published.ID)
	assert.Equal(t, "src1", published.SourceID)
	assert.Equal(t, "user-9", published.Metadata.UserID)
	assert.Equal(t, "breaking news", published.Metadata.Reason)
	assert.Equal(t, "corr-1", published.CorrelationID)
	assert.NoError(t, pipeline.Validate(published))
}

func TestService_TriggerFetch_NotFound(t *testing.T) {
	pub := &MockPublisher{}
	svc := source.NewService(&MockRepository{}, pub)

	_, err := svc.TriggerFetch(context.Background(), "missing", "", "")
	assert.ErrorIs(t, err, source.ErrNotFound)
	assert.Empty(t, pub.Topic)
}

func TestService_TriggerFetch_PublishError(t *testing.T) {
	repo := &MockRepository{sources: map[string]*source.Source{"src1": {ID: "src1"}}}
	pub := &MockPublisher{Err: errors.New("nsqd down")}
	svc := source.NewService(repo, pub)

	_, err := svc.TriggerFetch(context.Background(), "src1", "", "")
	assert.Error(t, err)
}
