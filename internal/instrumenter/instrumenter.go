// Package instrumenter provides the rewriters the orchestrator hands
// module bytes to. covrun does not inject probes itself: External runs a
// configured rewriter process and Passthrough returns the module unchanged.
package instrumenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/psantana5/covrun/internal/symbols"
)

// DefaultTimeout bounds one external rewriter invocation.
const DefaultTimeout = 2 * time.Minute

// ErrNoCommand is returned by NewExternal without a command.
var ErrNoCommand = errors.New("instrumenter: no command configured")

// Passthrough returns the module unchanged. It is the dry-run instrumenter.
type Passthrough struct{}

// Instrument copies module.
func (Passthrough) Instrument(module []byte, _ *symbols.SymbolMap) ([]byte, error) {
	out := make([]byte, len(module))
	copy(out, module)
	return out, nil
}

// Config describes an external rewriter.
type Config struct {
	Command string
	Args    []string
	Timeout time.Duration
	// Stderr receives the rewriter's stderr. Defaults to os.Stderr.
	Stderr io.Writer
}

// External runs a rewriter process per module. The module is streamed on
// stdin and the instrumented bytes are read from stdout. The symbol map is
// written as JSON to the file named by COVRUN_SYMBOLS; the rewriter may
// rewrite it to mark dependencies as required.
type External struct {
	cfg Config
}

// NewExternal validates cfg.
func NewExternal(cfg Config) (*External, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, ErrNoCommand
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &External{cfg: cfg}, nil
}

// ExitError reports a rewriter that exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("instrumenter exited with code %d", e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Instrument runs the rewriter on module.
func (e *External) Instrument(module []byte, m *symbols.SymbolMap) ([]byte, error) {
	mapFile, err := os.CreateTemp("", "covrun-symbols-*.json")
	if err != nil {
		return nil, fmt.Errorf("create symbol map file: %w", err)
	}
	defer os.Remove(mapFile.Name())

	if err := json.NewEncoder(mapFile).Encode(m); err != nil {
		mapFile.Close()
		return nil, fmt.Errorf("write symbol map: %w", err)
	}
	if err := mapFile.Close(); err != nil {
		return nil, fmt.Errorf("write symbol map: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.cfg.Command, e.cfg.Args...)
	configureProcessGroup(cmd)
	cmd.WaitDelay = time.Second

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: 4096}
	cmd.Stdin = bytes.NewReader(module)
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(e.cfg.Stderr, stderr)
	cmd.Env = append(os.Environ(), "COVRUN_SYMBOLS="+mapFile.Name())
	if m != nil {
		cmd.Env = append(cmd.Env, "COVRUN_MODULE="+m.ModulePath)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("instrumenter timed out after %s", e.cfg.Timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
		}
		return nil, fmt.Errorf("failed to run instrumenter: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, errors.New("instrumenter produced no output")
	}

	if m != nil {
		if err := applyRequired(mapFile.Name(), m); err != nil {
			return nil, err
		}
	}
	return stdout.Bytes(), nil
}

// applyRequired copies the Required flags the rewriter set in the map file.
func applyRequired(path string, m *symbols.SymbolMap) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read symbol map back: %w", err)
	}
	var updated symbols.SymbolMap
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("instrumenter left an invalid symbol map: %w", err)
	}
	required := make(map[string]bool)
	for _, d := range updated.Dependencies {
		if d.Required {
			required[d.Name] = true
		}
	}
	for i := range m.Dependencies {
		if required[m.Dependencies[i].Name] {
			m.Dependencies[i].Required = true
		}
	}
	return nil
}

// tailBuffer keeps the last limit bytes written.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
