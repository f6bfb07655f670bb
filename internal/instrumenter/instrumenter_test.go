package instrumenter

import (
	"bytes"
	"errors"
	"io"
	"runtime"
	"testing"
	"time"

	"github.com/psantana5/covrun/internal/symbols"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestPassthrough(t *testing.T) {
	in := []byte("module")
	out, err := Passthrough{}.Instrument(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("out = %q", out)
	}
	out[0] = 'X'
	if in[0] != 'm' {
		t.Error("Passthrough returned the input slice")
	}
}

func TestNewExternalRequiresCommand(t *testing.T) {
	if _, err := NewExternal(Config{Command: "  "}); !errors.Is(err, ErrNoCommand) {
		t.Errorf("err = %v", err)
	}
}

func TestExternalRoundTrip(t *testing.T) {
	requireShell(t)
	e, err := NewExternal(Config{Command: "/bin/sh", Args: []string{"-c", "cat; printf '%s' -instrumented"}, Stderr: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	out, err := e.Instrument([]byte("module"), &symbols.SymbolMap{ModulePath: "/app/a.dll"})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if string(out) != "module-instrumented" {
		t.Errorf("out = %q", out)
	}
}

func TestExternalMarksRequired(t *testing.T) {
	requireShell(t)
	script := `cat; printf '{"module_path":"x","dependencies":[{"name":"Foo","version":"1.0.0","required":true}]}' > "$COVRUN_SYMBOLS"`
	e, err := NewExternal(Config{Command: "/bin/sh", Args: []string{"-c", script}, Stderr: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	m := &symbols.SymbolMap{
		ModulePath:   "/app/a.dll",
		Dependencies: []symbols.Dependency{{Name: "Foo", Version: "1.0.0"}, {Name: "Bar", Version: "2.0.0"}},
	}
	if _, err := e.Instrument([]byte("module"), m); err != nil {
		t.Fatal(err)
	}
	if !m.Dependencies[0].Required || m.Dependencies[1].Required {
		t.Errorf("dependencies = %+v", m.Dependencies)
	}
}

func TestExternalFailure(t *testing.T) {
	requireShell(t)
	e, err := NewExternal(Config{Command: "/bin/sh", Args: []string{"-c", "echo 'bad image' >&2; exit 3"}, Stderr: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Instrument([]byte("module"), nil)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("err = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 || exitErr.Stderr != "bad image" {
		t.Errorf("exit = %+v", exitErr)
	}
}

func TestExternalTimeout(t *testing.T) {
	requireShell(t)
	e, err := NewExternal(Config{Command: "/bin/sh", Args: []string{"-c", "sleep 5"}, Timeout: 100 * time.Millisecond, Stderr: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if _, err := e.Instrument([]byte("module"), nil); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("timeout not enforced, took %s", time.Since(start))
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 4}
	tb.Write([]byte("abc"))
	tb.Write([]byte("def"))
	if tb.String() != "cdef" {
		t.Errorf("tail = %q", tb.String())
	}
}
