package filesystem

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"testing"

	"github.com/psantana5/covrun/pkg/retry"
	"github.com/spf13/afero"
)

func memFS(t *testing.T, files map[string]string) *FS {
	t.Helper()
	mem := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(mem, path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return New(mem)
}

func TestExists(t *testing.T) {
	f := memFS(t, map[string]string{"/app/a.dll": "MZ"})

	tests := []struct {
		path string
		want bool
	}{
		{"/app/a.dll", true},
		{"/app", true},
		{"/app/b.dll", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := f.Exists(tt.path); got != tt.want {
			t.Errorf("Exists(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestOpenReadMissing(t *testing.T) {
	f := memFS(t, map[string]string{"/app/a.dll": "MZ"})

	tests := []struct {
		name  string
		path  string
		class retry.FailureClass
	}{
		{"file missing in existing dir", "/app/a.pdb", retry.Transient},
		{"dir missing", "/gone/a.pdb", retry.Permanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.OpenRead(tt.path)
			if !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("error = %v, want not-exist", err)
			}
			if got := retry.Classify(err); got != tt.class {
				t.Errorf("Classify = %v, want %v", got, tt.class)
			}
		})
	}
}

func TestReadWriteCopy(t *testing.T) {
	f := memFS(t, map[string]string{"/app/a.dll": "original"})

	rc, err := f.OpenRead("/app/a.dll")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "original" {
		t.Errorf("read %q", data)
	}

	if err := f.Copy("/app/a.dll", "/app/.covrun-backup/a.dll"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if err := f.Write("/app/a.dll", []byte("instrumented")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, _ := f.ReadFile("/app/a.dll")
	backup, _ := f.ReadFile("/app/.covrun-backup/a.dll")
	if string(got) != "instrumented" || string(backup) != "original" {
		t.Errorf("module = %q backup = %q", got, backup)
	}
}

func TestWriteIntoMissingDirectory(t *testing.T) {
	f := memFS(t, nil)
	err := f.Write("/gone/a.dll", []byte("x"))
	if !errors.Is(err, retry.ErrDirectoryNotFound) {
		t.Errorf("error = %v, want ErrDirectoryNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	f := memFS(t, map[string]string{"/app/.covrun-backup/a.dll": "MZ"})

	if err := f.Remove("/app/.covrun-backup/a.dll"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if f.Exists("/app/.covrun-backup/a.dll") {
		t.Error("file still exists after Remove")
	}
	if err := f.Remove("/gone/a.dll"); !errors.Is(err, retry.ErrDirectoryNotFound) {
		t.Errorf("Remove in missing dir error = %v, want ErrDirectoryNotFound", err)
	}
}

type statFailFs struct {
	afero.Fs
	err error
}

func (s statFailFs) Stat(name string) (os.FileInfo, error) {
	return nil, &fs.PathError{Op: "stat", Path: name, Err: s.err}
}

func TestExistsTreatsStatFailureAsPresent(t *testing.T) {
	f := New(statFailFs{Fs: afero.NewMemMapFs(), err: retry.ErrTransient})
	if !f.Exists("/app/a.dll") {
		t.Error("a failing stat should count as present")
	}

	f = New(statFailFs{Fs: afero.NewMemMapFs(), err: fs.ErrNotExist})
	if f.Exists("/app/a.dll") {
		t.Error("not-exist should count as missing")
	}
}
