package collector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcefetch/internal/config"
	"sourcefetch/internal/pipeline"
	"sourcefetch/internal/queue"
)

type stubCollector struct {
	coll  *Collection
	err   error
	calls int
}

func (s *stubCollector) Collect(ctx context.Context, job pipeline.CollectorJob) (*Collection, error) {
	s.calls++
	return s.coll, s.err
}

type capturePublisher struct {
	topic string
	body  []byte
	err   error
}

func (p *capturePublisher) Publish(topic string, body []byte) error {
	p.topic = topic
	p.body = body
	return p.err
}

type deadLetters struct {
	records []queue.DeadMessage
}

func (d *deadLetters) Record(ctx context.Context, dl queue.DeadMessage) error {
	d.records = append(d.records, dl)
	return nil
}

func collectorJob(t *testing.T, ct pipeline.CollectorType) []byte {
	t.Helper()
	b, err := json.Marshal(pipeline.CollectorJob{
		ID:            "cj-1",
		SourceID:      "src1",
		Platform:      pipeline.PlatformWeb,
		CollectorType: ct,
		ExternalID:    "https://example.com/feed.xml",
		URL:           "https://example.com/feed.xml",
		Metadata:      pipeline.CollectorMetadata{OrchestratorJobID: "orch-1", Timestamp: time.Now()},
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	return b
}

func decodeResult(t *testing.T, body []byte) pipeline.ResultJob {
	t.Helper()
	var r pipeline.ResultJob
	require.NoError(t, pipeline.Decode(body, &r))
	return r
}

func TestWorker_Success(t *testing.T) {
	stub := &stubCollector{coll: &Collection{
		Posts:      []pipeline.FetchedPost{{ExternalID: "abc123", Content: "hello", MediaURLs: []string{}}},
		NextCursor: "abc123",
	}}
	pub := &capturePublisher{}
	w := NewWorker(pipeline.CollectorRSS, stub, NewHostLimiter(100, 10), pub)

	require.NoError(t, w.Handle(context.Background(), collectorJob(t, pipeline.CollectorRSS)))
	assert.Equal(t, config.TopicResult, pub.topic)

	r := decodeResult(t, pub.body)
	assert.Equal(t, pipeline.StatusSuccess, r.Status())
	assert.Equal(t, "src1", r.SourceID)
	assert.Equal(t, "cj-1", r.Metadata.CollectorJobID)
	assert.Equal(t, "orch-1", r.Metadata.OrchestratorJobID)
	assert.Equal(t, "corr-1", r.CorrelationID)
	f := r.Outcome.(pipeline.Fetched)
	assert.Equal(t, "abc123", f.NextCursor)
	require.Len(t, f.Posts, 1)
}

func TestWorker_PartialWhenTruncated(t *testing.T) {
	pub := &capturePublisher{}
	w := NewWorker(pipeline.CollectorRSS, &stubCollector{coll: &Collection{Truncated: true}}, nil, pub)

	require.NoError(t, w.Handle(context.Background(), collectorJob(t, pipeline.CollectorRSS)))
	assert.Equal(t, pipeline.StatusPartial, decodeResult(t, pub.body).Status())
}

func TestWorker_SemanticErrorBecomesResult(t *testing.T) {
	pub := &capturePublisher{}
	w := NewWorker(pipeline.CollectorAPI, &stubCollector{err: Semantic(CodeNotFound, "account suspended")}, nil, pub)

	require.NoError(t, w.Handle(context.Background(), collectorJob(t, pipeline.CollectorAPI)))

	r := decodeResult(t, pub.body)
	assert.Equal(t, pipeline.StatusError, r.Status())
	f := r.Outcome.(pipeline.Failure)
	assert.Equal(t, CodeNotFound, f.Code)
	assert.False(t, f.Retryable)
}

func TestWorker_RateLimitIsRetryableResult(t *testing.T) {
	pub := &capturePublisher{}
	w := NewWorker(pipeline.CollectorAPI, &stubCollector{err: &RateLimitError{RetryAfter: time.Minute}}, nil, pub)

	require.NoError(t, w.Handle(context.Background(), collectorJob(t, pipeline.CollectorAPI)))
	f := decodeResult(t, pub.body).Outcome.(pipeline.Failure)
	assert.True(t, f.Retryable)
	assert.Equal(t, CodeRateLimited, f.Code)
}

func TestWorker_InfrastructureErrorIsReturned(t *testing.T) {
	pub := &capturePublisher{}
	w := NewWorker(pipeline.CollectorRSS, &stubCollector{err: errors.New("upstream status 503")}, nil, pub)

	err := w.Handle(context.Background(), collectorJob(t, pipeline.CollectorRSS))
	assert.Error(t, err)
	assert.False(t, queue.IsFatal(err))
	assert.Empty(t, pub.topic)
}

func TestWorker_PublishFailureIsRetryable(t *testing.T) {
	pub := &capturePublisher{err: errors.New("nsqd down")}
	w := NewWorker(pipeline.CollectorRSS, &stubCollector{coll: &Collection{}}, nil, pub)

	err := w.Handle(context.Background(), collectorJob(t, pipeline.CollectorRSS))
	assert.Error(t, err)
	assert.False(t, queue.IsFatal(err))
}

func TestWorker_UnsupportedTypeDeadLettersWithoutRetry(t *testing.T) {
	stub := &stubCollector{}
	w := NewWorker(pipeline.CollectorRSS, stub, nil, &capturePublisher{})
	sink := &deadLetters{}
	policy := queue.Policy{MaxAttempts: 5, BackoffBase: time.Second, BackoffMax: time.Minute, Timeout: time.Second}
	consumer := queue.NewConsumer("collector.rss", config.TopicCollectRSS, config.ChannelCollector, w, policy, sink, 1)

	for _, ct := range []pipeline.CollectorType{"carrier-pigeon", pipeline.CollectorAPI} {
		d := consumer.Process(collectorJob(t, ct), 1)
		assert.Equal(t, queue.DeadLetter, d.Disposition, "collector type %q", ct)
		assert.True(t, queue.IsFatal(d.Err))
	}
	assert.Zero(t, stub.calls)
	require.Len(t, sink.records, 2)
	for _, dl := range sink.records {
		assert.Equal(t, 1, dl.Attempts)
		assert.Equal(t, config.TopicCollectRSS, dl.Topic)
		assert.Equal(t, "src1", dl.SourceID)
	}
}

func TestWorker_MalformedIsFatal(t *testing.T) {
	w := NewWorker(pipeline.CollectorRSS, &stubCollector{}, nil, &capturePublisher{})
	err := w.Handle(context.Background(), []byte(`{"id":"x"}`))
	assert.True(t, queue.IsFatal(err))
}
