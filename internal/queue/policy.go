package queue

import "time"

// Policy is the retry policy shared by every consumer.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Timeout     time.Duration

	// MaxMsgTimeout mirrors nsqd's --max-msg-timeout. Zero means unknown.
	MaxMsgTimeout time.Duration
}

const (
	msgTimeoutSlack   = 15 * time.Second
	defaultMsgTimeout = 60 * time.Second
)

// MsgTimeout is the per-message timeout requested from nsqd: the handler
// timeout plus slack, capped at MaxMsgTimeout. Zero leaves the server default.
func (p Policy) MsgTimeout() time.Duration {
	if p.Timeout <= 0 {
		return 0
	}
	t := p.Timeout + msgTimeoutSlack
	if p.MaxMsgTimeout > 0 && t > p.MaxMsgTimeout {
		t = p.MaxMsgTimeout
	}
	return t
}

// TouchInterval is how often an in-flight message is touched while its
// handler runs.
func (p Policy) TouchInterval() time.Duration {
	t := p.MsgTimeout()
	if t <= 0 {
		t = defaultMsgTimeout
	}
	return t / 2
}

// Backoff returns base·2^(attempt-1), capped at BackoffMax.
func (p Policy) Backoff(attempt uint16) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := uint16(1); i < attempt; i++ {
		d *= 2
		if p.BackoffMax > 0 && d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

type Disposition int

const (
	Finish Disposition = iota
	Requeue
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Finish:
		return "finish"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

type Decision struct {
	Disposition Disposition
	Delay       time.Duration
	Err         error
}

// Decide maps a handler outcome on the given delivery attempt (1-based) to
// what happens to the message.
func (p Policy) Decide(attempt uint16, err error) Decision {
	switch {
	case err == nil:
		return Decision{Disposition: Finish}
	case IsFatal(err):
		return Decision{Disposition: DeadLetter, Err: err}
	case int(attempt) >= p.MaxAttempts:
		return Decision{Disposition: DeadLetter, Err: err}
	default:
		return Decision{Disposition: Requeue, Delay: p.Backoff(attempt), Err: err}
	}
}
