package locks

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestFindOwnProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("open file listing is only exercised on linux")
	}
	path := filepath.Join(t.TempDir(), "App.pdb")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	holders, err := Find(ctx, path)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	for _, h := range holders {
		if h.PID == int32(os.Getpid()) {
			return
		}
	}
	t.Errorf("own pid %d not among holders %+v", os.Getpid(), holders)
}

func TestFindUnopenedFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("open file listing is only exercised on linux")
	}
	path := filepath.Join(t.TempDir(), "closed.dll")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	holders, err := Find(ctx, path)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(holders) != 0 {
		t.Errorf("holders = %+v, want none", holders)
	}
}
