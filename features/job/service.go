package job

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub, publishTimeout: 5 * time.Second}
}

// WithPublishTimeout overrides how long Retry waits on the broker.
func (s *Service) WithPublishTimeout(d time.Duration) *Service {
	s.publishTimeout = d
	return s
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Record stores a message that exhausted its attempts or failed fatally.
func (s *Service) Record(ctx context.Context, j *Job) error {
	if err := s.repo.Save(ctx, j); err != nil {
		return err
	}
	slog.WarnContext(ctx, "job dead-lettered", "id", j.ID, "handler", j.Handler, "topic", j.Topic, "attempts", j.Attempts, "error", j.Error)
	return nil
}

// Retry republishes a dead-lettered payload to the topic it came from and
// removes it from the dead-letter table.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(j.Topic, j.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
