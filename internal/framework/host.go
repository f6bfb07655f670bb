package framework

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
)

// Environment is the process state consulted to find the dotnet root.
type Environment struct {
	Getenv       func(string) string
	LookPath     func(string) (string, error)
	EvalSymlinks func(string) (string, error)
	GOOS         string
}

// SystemEnvironment reads the real process environment.
func SystemEnvironment() Environment {
	return Environment{
		Getenv:       os.Getenv,
		LookPath:     exec.LookPath,
		EvalSymlinks: filepath.EvalSymlinks,
		GOOS:         runtime.GOOS,
	}
}

func defaultRoots(goos string) []string {
	switch goos {
	case "windows":
		return []string{`C:\Program Files\dotnet`}
	case "darwin":
		return []string{"/usr/local/share/dotnet"}
	default:
		return []string{"/usr/share/dotnet", "/usr/lib/dotnet", "/usr/local/share/dotnet"}
	}
}

// LocateDotnetRoot finds the dotnet installation directory. explicit and
// DOTNET_ROOT are trusted as given; the dotnet executable on PATH and the
// platform defaults are only used when they contain a shared directory.
// It returns "" when nothing is found.
func LocateDotnetRoot(fsys afero.Fs, explicit string, env Environment) string {
	if explicit != "" {
		return explicit
	}
	if env.Getenv != nil {
		if root := env.Getenv("DOTNET_ROOT"); root != "" {
			return root
		}
	}

	hasShared := func(root string) bool {
		ok, err := afero.DirExists(fsys, filepath.Join(root, "shared"))
		return err == nil && ok
	}

	if env.LookPath != nil {
		if exe, err := env.LookPath("dotnet"); err == nil {
			if env.EvalSymlinks != nil {
				if resolved, err := env.EvalSymlinks(exe); err == nil {
					exe = resolved
				}
			}
			if root := filepath.Dir(exe); hasShared(root) {
				return root
			}
		}
	}

	for _, root := range defaultRoots(env.GOOS) {
		if hasShared(root) {
			return root
		}
	}
	return ""
}
