package logging

import "sync"

// Entry is one line captured by a Recorder.
type Entry struct {
	Level   Level
	Message string
	Fields  Fields
}

// Recorder keeps every line in memory and optionally forwards it to
// another logger. The HTTP API uses it to return a run's log with the
// outcome; tests use it to assert on logged diagnostics.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	next    *Logger
}

// NewRecorder returns an empty Recorder. next may be nil.
func NewRecorder(next *Logger) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) record(level Level, message string, fields []map[string]interface{}) {
	var f Fields
	if len(fields) > 0 && fields[0] != nil {
		f = make(Fields, len(fields[0]))
		for k, v := range fields[0] {
			f[k] = v
		}
	}
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Message: message, Fields: f})
	r.mu.Unlock()
}

func (r *Recorder) Debug(message string, fields ...map[string]interface{}) {
	r.record(DEBUG, message, fields)
	if r.next != nil {
		r.next.Debug(message, fields...)
	}
}

func (r *Recorder) Info(message string, fields ...map[string]interface{}) {
	r.record(INFO, message, fields)
	if r.next != nil {
		r.next.Info(message, fields...)
	}
}

func (r *Recorder) Warn(message string, fields ...map[string]interface{}) {
	r.record(WARN, message, fields)
	if r.next != nil {
		r.next.Warn(message, fields...)
	}
}

func (r *Recorder) Error(message string, fields ...map[string]interface{}) {
	r.record(ERROR, message, fields)
	if r.next != nil {
		r.next.Error(message, fields...)
	}
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Messages returns the messages at or above min, in order.
func (r *Recorder) Messages(min Level) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Level >= min {
			out = append(out, e.Message)
		}
	}
	return out
}
