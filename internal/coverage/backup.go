package coverage

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/psantana5/covrun/pkg/retry"
)

// DefaultBackupDirName is created next to the module when no backup
// directory is configured.
const DefaultBackupDirName = ".covrun-backup"

// BackupDir returns where originals of modulePath are kept.
func BackupDir(modulePath, configured string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(filepath.Dir(modulePath), DefaultBackupDirName)
}

func (r *run) backupOriginals(d *runData) (string, error) {
	fsys := r.o.deps.FileSystem
	dir := BackupDir(d.target.ModulePath, r.o.backupDir)

	mk, ok := fsys.(DirMaker)
	if !ok {
		return "", errors.New("file system cannot create the backup directory")
	}
	if err := retry.Run(r.policy(r.o.writePolicy, "backup"), func() error {
		return mk.MkdirAll(dir)
	}); err != nil {
		return "", fmt.Errorf("create backup directory %s: %w", dir, err)
	}

	moduleBackup := filepath.Join(dir, filepath.Base(d.target.ModulePath))
	// A backup left by an earlier run holds the real original; the module
	// on disk may already be instrumented. It stays until Restore.
	if fsys.Exists(moduleBackup) {
		r.o.deps.Logger.Info("keeping existing backup", r.with(map[string]interface{}{"dir": dir}))
		return dir, nil
	}

	if _, err := r.writeFile(r.o.writePolicy, "backup", moduleBackup, d.original); err != nil {
		return "", fmt.Errorf("back up module: %w", err)
	}

	sym := d.target.SymbolPath
	if sym != "" && fsys.Exists(sym) {
		data, _, err := retry.DoWithReport(r.policy(r.o.readPolicy, "read"), func() ([]byte, error) {
			return r.readAll(sym)
		})
		if err != nil {
			return "", fmt.Errorf("back up symbols: %w", err)
		}
		if data != nil {
			if _, err := r.writeFile(r.o.writePolicy, "backup", filepath.Join(dir, filepath.Base(sym)), data); err != nil {
				return "", fmt.Errorf("back up symbols: %w", err)
			}
		}
	}
	r.o.deps.Logger.Info("originals backed up", r.with(map[string]interface{}{"dir": dir}))
	return dir, nil
}

// ErrNoBackup is returned by Restore when no backup of the module exists.
var ErrNoBackup = errors.New("no backup found")

// Remover is implemented by file systems that can delete files. Restore
// uses it to consume the backup.
type Remover interface {
	Remove(path string) error
}

// Restore copies the backed-up module, and its symbol file when present,
// over the instrumented ones. Reads and writes go through policy. The
// backup is then removed (when fsys is a Remover) so the next run backs
// up the module as it is at that point.
func Restore(fsys FileSystem, policy retry.Policy, modulePath, symbolPath, backupDir string) ([]string, error) {
	dir := BackupDir(modulePath, backupDir)
	var restored, consumed []string

	pairs := [][2]string{{filepath.Join(dir, filepath.Base(modulePath)), modulePath}}
	if symbolPath != "" {
		pairs = append(pairs, [2]string{filepath.Join(dir, filepath.Base(symbolPath)), symbolPath})
	}

	for i, p := range pairs {
		src, dst := p[0], p[1]
		if !fsys.Exists(src) {
			if i == 0 {
				return nil, fmt.Errorf("%w for %s in %s", ErrNoBackup, modulePath, dir)
			}
			continue
		}
		data, report, err := retry.DoWithReport(policy, func() ([]byte, error) {
			rc, err := fsys.OpenRead(src)
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		})
		if err != nil {
			return restored, err
		}
		if report.SkippedMissingDirectory {
			return restored, fmt.Errorf("%w for %s in %s", ErrNoBackup, modulePath, dir)
		}
		if err := retry.Run(policy, func() error { return fsys.Write(dst, data) }); err != nil {
			return restored, err
		}
		restored = append(restored, dst)
		consumed = append(consumed, src)
	}

	rm, ok := fsys.(Remover)
	if !ok {
		return restored, nil
	}
	for _, src := range consumed {
		if err := retry.Run(policy, func() error { return rm.Remove(src) }); err != nil {
			return restored, fmt.Errorf("remove backup %s: %w", src, err)
		}
	}
	return restored, nil
}
