package job

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("failed job not found")

// Job is a dead-lettered queue message: the original payload and the topic it
// was consumed from, kept so an operator can inspect or replay it.
type Job struct {
	ID        string          `json:"id"`
	SourceID  string          `json:"source_id"`
	Handler   string          `json:"handler"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
}
