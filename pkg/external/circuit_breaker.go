package external

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// errServerStatus marks a 5xx response so the breaker counts it as a failure.
// The response itself is still reported as a status error.
var errServerStatus = errors.New("backend returned a server error")

// DefaultHalfOpenRequests lets two full submissions (six calls each) through
// a half-open breaker, so a catalog fetch racing the first fan-out is not
// rejected.
const DefaultHalfOpenRequests = 2 * (domain.SectionCount + 1)

// newCircuitBreaker builds the breaker guarding one backend.
// Zero-valued settings fall back to the defaults used for all evidence backends.
func newCircuitBreaker(name string, cfg domain.BreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	maxRequests := cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = DefaultHalfOpenRequests
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 6
	}
	ratio := cfg.FailureRatio
	if ratio == 0 {
		ratio = 0.6
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		// A call the caller abandoned says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker changed state")
		},
	})
}

// isBreakerRejection reports whether the breaker refused to run the call.
func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
