// Package retry runs fallible file-system operations with bounded,
// blocking backoff. It absorbs transient I/O failures (locked or busy
// files), treats a missing containing directory as a no-op, and lets
// every other error through untouched.
package retry

import (
	"errors"
	"time"
)

// DefaultMaxAttempts is the attempt budget of DefaultPolicy.
const DefaultMaxAttempts = 3

// DefaultBackoffStep is the per-attempt step of DefaultPolicy's linear backoff.
const DefaultBackoffStep = 250 * time.Millisecond

// ErrInvalidPolicy is returned by NewPolicy when maxAttempts < 1.
var ErrInvalidPolicy = errors.New("retry: max attempts must be at least 1")

// Backoff returns the delay to wait before the attempt with the given
// zero-based index. It is only called for attempt >= 1.
type Backoff func(attempt int) time.Duration

// Observer is notified before every backoff sleep.
type Observer interface {
	OnRetry(attempt int, err error, delay time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(attempt int, err error, delay time.Duration)

// OnRetry calls f.
func (f ObserverFunc) OnRetry(attempt int, err error, delay time.Duration) {
	f(attempt, err, delay)
}

// Policy is an immutable retry budget. The zero Policy behaves like
// DefaultPolicy.
type Policy struct {
	maxAttempts int
	backoff     Backoff
	sleep       func(time.Duration)
	observer    Observer
}

// Option customizes a Policy at construction.
type Option func(*Policy)

// WithSleep replaces the suspension used between attempts. Tests use it
// to avoid wall-clock waits; the default is time.Sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(p *Policy) {
		p.sleep = sleep
	}
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(p *Policy) {
		p.observer = o
	}
}

// NewPolicy builds a Policy. A nil backoff means no delay between attempts.
func NewPolicy(maxAttempts int, backoff Backoff, opts ...Option) (Policy, error) {
	if maxAttempts < 1 {
		return Policy{}, ErrInvalidPolicy
	}
	if backoff == nil {
		backoff = Constant(0)
	}
	p := Policy{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p, nil
}

// DefaultPolicy returns 3 attempts with a linear 250ms step.
func DefaultPolicy() Policy {
	p, _ := NewPolicy(DefaultMaxAttempts, Linear(DefaultBackoffStep))
	return p
}

// With returns a copy of p with opts applied. p itself is unchanged.
func (p Policy) With(opts ...Option) Policy {
	p = p.normalized()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// MaxAttempts returns the attempt budget.
func (p Policy) MaxAttempts() int {
	return p.normalized().maxAttempts
}

// Delay returns the backoff before the attempt with the given zero-based index.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return p.normalized().backoff(attempt)
}

func (p Policy) normalized() Policy {
	if p.maxAttempts < 1 {
		d := DefaultPolicy()
		d.observer = p.observer
		if p.sleep != nil {
			d.sleep = p.sleep
		}
		return d
	}
	if p.backoff == nil {
		p.backoff = Constant(0)
	}
	if p.sleep == nil {
		p.sleep = time.Sleep
	}
	return p
}

// Report describes how an execution went.
type Report struct {
	// Attempts is the number of times the operation was invoked.
	Attempts int
	// Failures holds the transient failures seen, in attempt order.
	Failures []error
	// SkippedMissingDirectory is set when the run stopped because the
	// target's containing directory does not exist. The call then returns
	// the zero value and a nil error.
	SkippedMissingDirectory bool
}

// Do runs op under p and returns its value.
func Do[T any](p Policy, op func() (T, error)) (T, error) {
	v, _, err := DoWithReport(p, op)
	return v, err
}

// Run is Do for operations without a result.
func Run(p Policy, op func() error) error {
	_, _, err := DoWithReport(p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoWithReport runs op up to p.MaxAttempts times, sleeping p.Delay(i)
// before attempt i > 0.
//
// Transient failures are collected and retried. A Permanent failure
// (missing containing directory) stops the loop and yields the zero value
// with a nil error. Any other failure is returned as-is on the spot. When
// the budget runs out the result is an *AggregateError holding every
// transient failure.
func DoWithReport[T any](p Policy, op func() (T, error)) (T, Report, error) {
	p = p.normalized()

	var zero T
	var report Report

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt)
			if p.observer != nil {
				p.observer.OnRetry(attempt, report.Failures[len(report.Failures)-1], delay)
			}
			if delay > 0 {
				p.sleep(delay)
			}
		}

		report.Attempts++
		v, err := op()
		if err == nil {
			return v, report, nil
		}

		switch Classify(err) {
		case Permanent:
			// Inherited behavior: a vanished directory is reported as
			// success with no value. Callers that care must check
			// SkippedMissingDirectory.
			report.SkippedMissingDirectory = true
			return zero, report, nil
		case Transient:
			report.Failures = append(report.Failures, err)
		default:
			return zero, report, err
		}
	}

	return zero, report, &AggregateError{Errors: report.Failures}
}
