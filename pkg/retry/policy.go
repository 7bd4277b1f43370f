// Package retry decides whether a failed execution is attempted again and when.
package retry

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dukex/area/pkg/faults"
	goretry "github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 300 * time.Second
	DefaultJitter      = 0.1

	minDelay = time.Second
)

var nonRetryableMessages = []string{
	"authentication",
	"authorization",
	"invalid credentials",
	"access denied",
	"forbidden",
	"validation",
	"invalid request",
	"bad request",
	"not found",
	"does not exist",
}

// Policy is free of I/O. The clock and the jitter source are injectable.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
	now         func() time.Time
	random      func() float64
}

type Option func(*Policy)

func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// WithRand sets the source of uniform values in [0, 1) used for jitter.
func WithRand(random func() float64) Option {
	return func(p *Policy) { p.random = random }
}

func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.maxAttempts = n }
}

func WithDelays(base, max time.Duration) Option {
	return func(p *Policy) {
		p.baseDelay = base
		p.maxDelay = max
	}
}

func WithJitter(j float64) Option {
	return func(p *Policy) { p.jitter = j }
}

func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		jitter:      DefaultJitter,
		now:         time.Now,
		random:      rand.Float64,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether attempt (attempts already made) may be followed by another one.
func (p *Policy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.maxAttempts {
		return false
	}

	return IsRetryable(err)
}

// IsRetryable classifies err by kind first and falls back to its message.
func IsRetryable(err error) bool {
	if err == nil {
		return true
	}

	switch faults.KindOf(err) {
	case faults.KindNotFound, faults.KindAuth, faults.KindValidation, faults.KindNotExecutable:
		return false
	case faults.KindTransient:
		return true
	}

	return IsRetryableMessage(messageChain(err))
}

// IsRetryableMessage applies the substring rules only.
func IsRetryableMessage(message string) bool {
	lower := strings.ToLower(message)

	for _, fragment := range nonRetryableMessages {
		if strings.Contains(lower, fragment) {
			return false
		}
	}

	return true
}

func messageChain(err error) string {
	var parts []string

	for e := err; e != nil; e = errors.Unwrap(e) {
		parts = append(parts, e.Error())
	}

	return strings.Join(parts, " | ")
}

// Delay is the capped exponential delay before jitter: base * 2^attempt, at most maxDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoff := goretry.WithCappedDuration(p.maxDelay, goretry.NewExponential(p.baseDelay))

	delay := p.baseDelay
	for i := 0; i <= attempt; i++ {
		next, stop := backoff.Next()
		if stop {
			break
		}

		delay = next
		if delay >= p.maxDelay {
			break
		}
	}

	return delay
}

// NextRetryTime returns nil once attempt reached the maximum.
func (p *Policy) NextRetryTime(attempt int) *time.Time {
	if attempt >= p.maxAttempts {
		return nil
	}

	delay := p.jittered(p.Delay(attempt))
	at := p.now().Add(delay)

	return &at
}

func (p *Policy) jittered(delay time.Duration) time.Duration {
	factor := 1 - p.jitter + 2*p.jitter*p.random()
	seconds := math.Round(delay.Seconds() * factor)

	d := time.Duration(seconds) * time.Second
	if d > p.maxDelay {
		d = p.maxDelay
	}

	if d < minDelay {
		d = minDelay
	}

	return d
}
