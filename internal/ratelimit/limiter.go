package ratelimit

import (
	"sync"
	"time"
)

// MessageLimiter is a token bucket used to cap per-connection signaling
// message rates. Capacity equals the refill rate, so a connection can burst at
// most one second's worth of messages.
//
// A rate <= 0 disables limiting (Allow always succeeds).
type MessageLimiter struct {
	mu sync.Mutex

	clock Clock

	rate     float64 // tokens/sec, also the capacity
	tokens   float64
	last     time.Time
	disabled bool
}

func NewMessageLimiter(clock Clock, messagesPerSecond int) *MessageLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	rate := float64(messagesPerSecond)
	return &MessageLimiter{
		clock:    clock,
		rate:     rate,
		tokens:   rate,
		last:     clock.Now(),
		disabled: messagesPerSecond <= 0,
	}
}

// Allow consumes one token if available.
func (l *MessageLimiter) Allow() bool {
	if l.disabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if elapsed := now.Sub(l.last); elapsed > 0 {
		l.tokens += elapsed.Seconds() * l.rate
		if l.tokens > l.rate {
			l.tokens = l.rate
		}
	}
	// Clamp the reference point even if time went backwards so a clock step
	// never mints tokens.
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
