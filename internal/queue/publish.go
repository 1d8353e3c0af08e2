package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nsqio/go-nsq"
)

// NewProducer creates an nsqd producer that logs through slog.
func NewProducer(addr string) (*nsq.Producer, error) {
	p, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	p.SetLogger(nsqLogger{}, nsq.LogLevelWarning)
	return p, nil
}

// PublishJSON encodes v and publishes it to topic.
func PublishJSON(p Publisher, topic string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	if err := p.Publish(topic, body); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// nsqLogger routes go-nsq's internal log lines into slog.
type nsqLogger struct{}

func (nsqLogger) Output(_ int, s string) error {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "ERR"):
		slog.Error("nsq", "msg", s)
	case strings.HasPrefix(s, "WRN"):
		slog.Warn("nsq", "msg", s)
	default:
		slog.Debug("nsq", "msg", s)
	}
	return nil
}
