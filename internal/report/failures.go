package report

import "sync"

// FailureSample is a failed run kept for quick inspection.
type FailureSample struct {
	RunID    string  `json:"run_id"`
	Module   string  `json:"module"`
	Stage    string  `json:"stage"`
	Reason   string  `json:"reason"`
	Duration float64 `json:"duration_seconds"`
}

// FailureLog maintains a ring buffer of recent failures (last N)
type FailureLog struct {
	samples []FailureSample
	maxSize int
	mu      sync.RWMutex
}

// NewFailureLog creates a failure log with fixed size
func NewFailureLog(maxSize int) *FailureLog {
	return &FailureLog{
		samples: make([]FailureSample, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds a failed result; successful ones are ignored.
func (f *FailureLog) Record(r *Result) {
	if r.Success {
		return
	}

	sample := FailureSample{
		RunID:    r.RunID,
		Module:   r.Module,
		Stage:    r.Stage,
		Reason:   r.Reason(),
		Duration: r.Duration.Seconds(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.samples) >= f.maxSize {
		f.samples = f.samples[1:]
	}
	f.samples = append(f.samples, sample)
}

// GetRecent returns recent failures (newest first)
func (f *FailureLog) GetRecent(n int) []FailureSample {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || n > len(f.samples) {
		n = len(f.samples)
	}

	result := make([]FailureSample, n)
	for i := 0; i < n; i++ {
		result[i] = f.samples[len(f.samples)-1-i]
	}
	return result
}

// Count returns the number of failures held.
func (f *FailureLog) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.samples)
}
