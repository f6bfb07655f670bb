// Package locks finds the processes that hold a file open. The CLI uses
// it to explain a run that failed on a locked module.
package locks

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/shirou/gopsutil/v3/process"
)

// Holder is a process with the file open.
type Holder struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Find lists processes with path open. Processes whose descriptors cannot
// be read (permissions, exited) are skipped.
func Find(ctx context.Context, path string) ([]Holder, error) {
	target := canonical(path)

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var holders []Holder
	for _, p := range procs {
		if ctx.Err() != nil {
			return holders, ctx.Err()
		}
		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			if canonical(f.Path) != target {
				continue
			}
			name, _ := p.NameWithContext(ctx)
			holders = append(holders, Holder{PID: p.Pid, Name: name, Path: f.Path})
			break
		}
	}

	sort.Slice(holders, func(i, j int) bool { return holders[i].PID < holders[j].PID })
	return holders, nil
}

func canonical(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return filepath.Clean(path)
}
