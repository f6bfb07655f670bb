package framework

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// Deployment is how a module finds its runtime.
type Deployment int

const (
	// FrameworkDependent modules load shared frameworks from a machine-wide
	// dotnet installation.
	FrameworkDependent Deployment = iota
	// SelfContained modules ship the runtime next to themselves.
	SelfContained
)

func (d Deployment) String() string {
	if d == SelfContained {
		return "self-contained"
	}
	return "framework-dependent"
}

// hostFiles are the runtime host binaries a self-contained publish places
// beside the application.
var hostFiles = []string{
	"hostfxr.dll", "hostpolicy.dll", "coreclr.dll",
	"libhostfxr.so", "libhostpolicy.so", "libcoreclr.so",
	"libhostfxr.dylib", "libhostpolicy.dylib", "libcoreclr.dylib",
}

// DetectDeployment reports SelfContained when any runtime host file sits
// in moduleDir.
func DetectDeployment(fsys afero.Fs, moduleDir string) Deployment {
	for _, name := range hostFiles {
		info, err := fsys.Stat(filepath.Join(moduleDir, name))
		if err == nil && !info.IsDir() {
			return SelfContained
		}
	}
	return FrameworkDependent
}
