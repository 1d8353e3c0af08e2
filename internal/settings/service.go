package settings

import (
	"context"
	"errors"
	"time"

	"sourcefetch/internal/config"
)

// ErrNotSet means no operator override has been stored yet.
var ErrNotSet = errors.New("settings not set")

// Settings holds the operator-tunable priority weights. A single row backs it.
type Settings struct {
	ID                       int     `json:"-"`
	RecencyWeight            float64 `json:"recency_weight" validate:"gte=0"`
	FollowerWeight           float64 `json:"follower_weight" validate:"gte=0"`
	YieldWeight              float64 `json:"yield_weight" validate:"gte=0"`
	ErrorDampening           float64 `json:"error_dampening" validate:"gte=0"`
	RecencySaturationSeconds int     `json:"recency_saturation_seconds" validate:"gt=0"`
}

func (s *Settings) RecencySaturation() time.Duration {
	return time.Duration(s.RecencySaturationSeconds) * time.Second
}

// FromConfig returns the weights configured through the environment.
func FromConfig(cfg *config.Config) Settings {
	return Settings{
		RecencyWeight:            cfg.RecencyWeight,
		FollowerWeight:           cfg.FollowerWeight,
		YieldWeight:              cfg.YieldWeight,
		ErrorDampening:           cfg.ErrorDampening,
		RecencySaturationSeconds: int(cfg.RecencySaturation / time.Second),
	}
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo     Repository
	defaults *Settings
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// WithDefaults sets what Get returns until an override is stored.
func (s *Service) WithDefaults(d Settings) *Service {
	s.defaults = &d
	return s
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	set, err := s.repo.Get(ctx)
	if errors.Is(err, ErrNotSet) && s.defaults != nil {
		d := *s.defaults
		return &d, nil
	}
	return set, err
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	return s.repo.Update(ctx, set)
}
