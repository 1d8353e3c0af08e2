package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrMalformedResult = errors.New("malformed result job")

// ResultStatus is the wire discriminant of a ResultJob.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusPartial ResultStatus = "partial"
	StatusError   ResultStatus = "error"
)

// Outcome is either Fetched or Failure. The interface is sealed so a result
// can never carry an error code together with a success status.
type Outcome interface {
	status() ResultStatus
}

// Fetched is a successful collection. Partial marks a page the platform truncated.
type Fetched struct {
	Posts      []FetchedPost
	NextCursor string
	Partial    bool
}

func (f Fetched) status() ResultStatus {
	if f.Partial {
		return StatusPartial
	}
	return StatusSuccess
}

// Failure is a platform-semantic or rate-limit error reported by a collector.
type Failure struct {
	Code      string `json:"code" validate:"required"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (Failure) status() ResultStatus { return StatusError }

type ResultMetadata struct {
	CollectorJobID    string `json:"collector_job_id" validate:"required"`
	OrchestratorJobID string `json:"orchestrator_job_id"`
}

// ResultJob is produced by exactly one collector invocation.
type ResultJob struct {
	ID             string
	SourceID       string
	Platform       Platform
	Outcome        Outcome
	ProcessingTime time.Duration
	Metadata       ResultMetadata
	FetchedAt      time.Time
	CorrelationID  string
}

func (r ResultJob) Status() ResultStatus {
	if r.Outcome == nil {
		return ""
	}
	return r.Outcome.status()
}

type resultWire struct {
	ID            string         `json:"id" validate:"required"`
	SourceID      string         `json:"source_id" validate:"required"`
	Platform      Platform       `json:"platform"`
	Status        ResultStatus   `json:"status" validate:"required,oneof=success partial error"`
	Posts         []FetchedPost  `json:"posts,omitempty" validate:"dive"`
	NextCursor    string         `json:"next_cursor,omitempty"`
	Error         *Failure       `json:"error,omitempty"`
	ProcessingMS  int64          `json:"processing_ms"`
	Metadata      ResultMetadata `json:"metadata"`
	FetchedAt     time.Time      `json:"fetched_at"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

func (r ResultJob) MarshalJSON() ([]byte, error) {
	w := resultWire{
		ID:            r.ID,
		SourceID:      r.SourceID,
		Platform:      r.Platform,
		ProcessingMS:  r.ProcessingTime.Milliseconds(),
		Metadata:      r.Metadata,
		FetchedAt:     r.FetchedAt,
		CorrelationID: r.CorrelationID,
	}
	switch o := r.Outcome.(type) {
	case Fetched:
		w.Status = o.status()
		w.Posts = o.Posts
		w.NextCursor = o.NextCursor
	case Failure:
		w.Status = StatusError
		f := o
		w.Error = &f
	default:
		return nil, fmt.Errorf("%w: missing outcome", ErrMalformedResult)
	}
	return json.Marshal(w)
}

func (r *ResultJob) UnmarshalJSON(b []byte) error {
	var w resultWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if err := Validate(w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	switch w.Status {
	case StatusSuccess, StatusPartial:
		if w.Error != nil {
			return fmt.Errorf("%w: error payload on %s result", ErrMalformedResult, w.Status)
		}
		r.Outcome = Fetched{Posts: w.Posts, NextCursor: w.NextCursor, Partial: w.Status == StatusPartial}
	case StatusError:
		if w.Error == nil || len(w.Posts) > 0 || w.NextCursor != "" {
			return fmt.Errorf("%w: error result must carry only an error payload", ErrMalformedResult)
		}
		if err := Validate(w.Error); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResult, err)
		}
		r.Outcome = *w.Error
	}

	r.ID = w.ID
	r.SourceID = w.SourceID
	r.Platform = w.Platform
	r.ProcessingTime = time.Duration(w.ProcessingMS) * time.Millisecond
	r.Metadata = w.Metadata
	r.FetchedAt = w.FetchedAt
	r.CorrelationID = w.CorrelationID
	return nil
}
