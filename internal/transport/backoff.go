package transport

import "time"

// Policy controls reconnect scheduling after an unexpected disconnect.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy matches the service's recommended client behavior.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before reconnect attempt n, doubling from
// BaseDelay and capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
