package coverage

import "time"

// Severity of a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is one human-readable message reported to the caller.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Outcome is the result of one run. It is not modified after Run returns.
type Outcome struct {
	RunID       string        `json:"run_id"`
	ModulePath  string        `json:"module_path"`
	Success     bool          `json:"success"`
	Stage       Stage         `json:"stage"`
	Diagnostics []Diagnostic  `json:"diagnostics"`
	Retries     int           `json:"retries"`
	Unresolved  int           `json:"unresolved"`
	BackupDir   string        `json:"backup_dir,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	// Err is the error that failed the run, if any.
	Err error `json:"-"`
}

// Messages returns every diagnostic message in order.
func (o *Outcome) Messages() []string {
	out := make([]string, len(o.Diagnostics))
	for i, d := range o.Diagnostics {
		out[i] = d.Message
	}
	return out
}

// Warnings returns the warning messages in order.
func (o *Outcome) Warnings() []string {
	var out []string
	for _, d := range o.Diagnostics {
		if d.Severity == SeverityWarning {
			out = append(out, d.Message)
		}
	}
	return out
}

// StageError ties a run failure to the stage it happened in. Its message
// is the underlying error's message unchanged.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}
