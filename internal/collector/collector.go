// Package collector fetches upstream content for one collector family and
// reports it to the result queue.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sourcefetch/internal/pipeline"
)

// Collection is what a single fetch produced. Posts are in upstream order,
// newest first.
type Collection struct {
	Posts      []pipeline.FetchedPost
	NextCursor string
	Truncated  bool
}

// Collector performs the platform-specific fetch for one CollectorJob.
//
// A returned *SemanticError or *RateLimitError is reported downstream as an
// error result. Any other error is treated as an infrastructure failure and
// retried by the queue.
type Collector interface {
	Collect(ctx context.Context, job pipeline.CollectorJob) (*Collection, error)
}

// SemanticError is a terminal platform failure, e.g. a suspended account or a
// feed that no longer exists.
type SemanticError struct {
	Code    string
	Message string
}

func (e *SemanticError) Error() string { return e.Code + ": " + e.Message }

func Semantic(code, format string, args ...any) error {
	return &SemanticError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// RateLimitError means the platform refused the call for now.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
}

const (
	CodeRateLimited   = "RATE_LIMITED"
	CodeNotFound      = "NOT_FOUND"
	CodeForbidden     = "FORBIDDEN"
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeParse         = "PARSE_ERROR"
)

// Classify maps a collector error onto a result failure. ok is false for
// infrastructure errors that belong to the queue's retry.
func Classify(err error) (f pipeline.Failure, ok bool) {
	var se *SemanticError
	if errors.As(err, &se) {
		return pipeline.Failure{Code: se.Code, Message: se.Message, Retryable: false}, true
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return pipeline.Failure{Code: CodeRateLimited, Message: rl.Error(), Retryable: true}, true
	}
	return pipeline.Failure{}, false
}

// Deps are the shared resources collectors are built from.
type Deps struct {
	HTTP      *http.Client
	UserAgent string
}

// New returns the collector for ct. The set of collector types is closed.
func New(ct pipeline.CollectorType, deps Deps) (Collector, error) {
	f := newFetcher(deps)
	switch ct {
	case pipeline.CollectorAPI:
		return &JSONFeed{fetch: f}, nil
	case pipeline.CollectorRSS:
		return &Feed{fetch: f}, nil
	case pipeline.CollectorScraper:
		return &Scraper{fetch: f}, nil
	default:
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownCollectorType, ct)
	}
}
