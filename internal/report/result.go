// Package report turns finished runs into records, metrics and log lines.
package report

import (
	"fmt"
	"time"

	"github.com/psantana5/covrun/internal/coverage"
)

// Result is the immutable record of one run. Set once, never change.
type Result struct {
	RunID       string        `json:"run_id"`
	Module      string        `json:"module"`
	Success     bool          `json:"success"`
	Stage       string        `json:"stage"`
	Retries     int           `json:"retries"`
	Unresolved  int           `json:"unresolved"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Diagnostics []string      `json:"diagnostics"`
}

// NewResult freezes an outcome.
func NewResult(o *coverage.Outcome) *Result {
	return &Result{
		RunID:       o.RunID,
		Module:      o.ModulePath,
		Success:     o.Success,
		Stage:       string(o.Stage),
		Retries:     o.Retries,
		Unresolved:  o.Unresolved,
		StartTime:   o.StartedAt,
		EndTime:     o.StartedAt.Add(o.Duration),
		Duration:    o.Duration,
		Diagnostics: o.Messages(),
	}
}

// Reason returns the leading diagnostic of a failed run.
func (r *Result) Reason() string {
	if r.Success || len(r.Diagnostics) == 0 {
		return ""
	}
	return r.Diagnostics[0]
}

// Summary is the one-line form of the result, the line to grep for.
func (r *Result) Summary() string {
	status := "OK"
	if !r.Success {
		status = "FAILED"
	}
	line := fmt.Sprintf("RUN %s | %s | stage=%s | retries=%d | unresolved=%d | runtime=%.2fs | module=%s",
		r.RunID, status, r.Stage, r.Retries, r.Unresolved, r.Duration.Seconds(), r.Module)
	if reason := r.Reason(); reason != "" {
		line += " | reason=" + reason
	}
	return line
}

type infoLogger interface {
	Info(message string, fields ...map[string]interface{})
}

// LogSummary writes Summary to l.
func (r *Result) LogSummary(l infoLogger) {
	l.Info(r.Summary())
}
