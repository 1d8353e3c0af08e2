package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"

	"sourcefetch/internal/middleware"
)

// Handler processes one message body. Returning an error wrapped by Fatal
// dead-letters the message immediately; any other error is retried.
type Handler interface {
	Handle(ctx context.Context, body []byte) error
}

type HandlerFunc func(ctx context.Context, body []byte) error

func (f HandlerFunc) Handle(ctx context.Context, body []byte) error { return f(ctx, body) }

type Publisher interface {
	Publish(topic string, body []byte) error
}

// DeadMessage describes a message that will not be retried again.
type DeadMessage struct {
	SourceID string
	Handler  string
	Topic    string
	Payload  []byte
	Err      error
	Attempts int
}

type DeadLetterSink interface {
	Record(ctx context.Context, dl DeadMessage) error
}

type Consumer struct {
	name        string
	topic       string
	channel     string
	handler     Handler
	policy      Policy
	sink        DeadLetterSink
	concurrency int
}

func NewConsumer(name, topic, channel string, h Handler, p Policy, sink DeadLetterSink, concurrency int) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{
		name:        name,
		topic:       topic,
		channel:     channel,
		handler:     h,
		policy:      p,
		sink:        sink,
		concurrency: concurrency,
	}
}

type envelope struct {
	SourceID      string `json:"source_id"`
	CorrelationID string `json:"correlation_id"`
}

// Process runs the handler and settles the outcome. Dead-lettering happens
// here; the caller only needs to ack or requeue.
func (c *Consumer) Process(body []byte, attempt uint16) Decision {
	var env envelope
	_ = json.Unmarshal(body, &env)

	ctx := context.Background()
	if env.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, env.CorrelationID)
	}
	if env.SourceID != "" {
		ctx = middleware.WithSourceID(ctx, env.SourceID)
	}

	err := c.invoke(ctx, body)
	d := c.policy.Decide(attempt, err)

	switch d.Disposition {
	case Requeue:
		slog.WarnContext(ctx, "job failed, requeueing", "consumer", c.name, "attempt", attempt, "delay", d.Delay, "error", err)
	case DeadLetter:
		dl := DeadMessage{
			SourceID: env.SourceID,
			Handler:  c.name,
			Topic:    c.topic,
			Payload:  body,
			Err:      err,
			Attempts: int(attempt),
		}
		if sinkErr := c.sink.Record(ctx, dl); sinkErr != nil {
			// Keep the message on the queue rather than lose it.
			slog.ErrorContext(ctx, "failed to dead-letter job", "consumer", c.name, "error", sinkErr)
			return Decision{Disposition: Requeue, Delay: c.policy.Backoff(attempt), Err: err}
		}
	}
	return d
}

func (c *Consumer) invoke(ctx context.Context, body []byte) (err error) {
	if c.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			slog.ErrorContext(ctx, "handler panicked", "consumer", c.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return c.handler.Handle(ctx, body)
}

type toucher interface {
	Touch()
}

// keepAlive touches m every interval until stop returns. No touch happens
// after stop, so the caller may finish or requeue right away.
func keepAlive(m toucher, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				m.Touch()
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (c *Consumer) HandleMessage(m *nsq.Message) error {
	m.DisableAutoResponse()
	stop := keepAlive(m, c.policy.TouchInterval())
	d := c.Process(m.Body, m.Attempts)
	stop()
	if d.Disposition == Requeue {
		m.RequeueWithoutBackoff(d.Delay)
		return nil
	}
	m.Finish()
	return nil
}

// Run consumes until ctx is cancelled. In-flight messages are capped at the
// consumer's concurrency.
func (c *Consumer) Run(ctx context.Context, lookupd, nsqd string) error {
	cfg := nsq.NewConfig()
	cfg.MaxInFlight = c.concurrency
	cfg.MaxAttempts = 0
	if mt := c.policy.MsgTimeout(); mt > 0 {
		cfg.MsgTimeout = mt
	}
	if c.policy.BackoffMax > cfg.MaxRequeueDelay {
		cfg.MaxRequeueDelay = c.policy.BackoffMax
	}

	consumer, err := nsq.NewConsumer(c.topic, c.channel, cfg)
	if err != nil {
		return fmt.Errorf("nsq consumer %s: %w", c.name, err)
	}
	consumer.SetLogger(nsqLogger{}, nsq.LogLevelWarning)
	consumer.AddConcurrentHandlers(c, c.concurrency)

	if lookupd != "" {
		err = consumer.ConnectToNSQLookupd(lookupd)
	} else {
		err = consumer.ConnectToNSQD(nsqd)
	}
	if err != nil {
		consumer.Stop()
		return fmt.Errorf("connect %s consumer: %w", c.name, err)
	}
	slog.Info("consumer started", "consumer", c.name, "topic", c.topic, "channel", c.channel, "concurrency", c.concurrency)

	<-ctx.Done()
	consumer.Stop()
	<-consumer.StopChan
	slog.Info("consumer stopped", "consumer", c.name)
	return nil
}
