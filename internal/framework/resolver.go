// Package framework resolves library names to shared-framework assemblies
// for a managed module, in both framework-dependent and self-contained
// deployments.
package framework

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// ErrSharedRootInaccessible is wrapped by errors caused by an unreadable
// shared framework root or framework directory.
var ErrSharedRootInaccessible = errors.New("shared framework root is not accessible")

// Request is a single library lookup.
type Request struct {
	// Library is the assembly name, with or without the .dll suffix.
	Library string
	// Version is informational; framework selection follows the
	// runtimeconfig minimums.
	Version string
	// ModuleDir overrides the resolver's module directory.
	ModuleDir string
	// SelfContained forces the self-contained search even when no host
	// files were detected.
	SelfContained bool
}

// Result of a lookup. An empty, unresolved Result is not an error.
type Result struct {
	Paths     []string
	Resolved  bool
	Ambiguous bool
}

// Selection describes one declared framework and the version chosen for it.
type Selection struct {
	Reference
	Installed []string
	Selected  string
	Dir       string

	files map[string]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFs sets the file system to search. Defaults to the OS.
func WithFs(fsys afero.Fs) Option {
	return func(r *Resolver) {
		r.fs = fsys
	}
}

// WithDotnetRoot pins the dotnet installation directory.
func WithDotnetRoot(root string) Option {
	return func(r *Resolver) {
		r.explicitRoot = root
	}
}

// WithEnvironment replaces the process environment used to find dotnet.
func WithEnvironment(env Environment) Option {
	return func(r *Resolver) {
		r.env = env
	}
}

// Resolver answers library lookups for one module. It is safe for
// concurrent use.
type Resolver struct {
	fs           afero.Fs
	env          Environment
	explicitRoot string

	modulePath string
	moduleDir  string
	deployment Deployment
	config     *RuntimeConfig
	dotnetRoot string

	once       sync.Once
	selections []*Selection
	selectErr  error
}

// NewResolver inspects the module's directory and runtimeconfig. A
// malformed runtimeconfig is an error.
func NewResolver(modulePath string, opts ...Option) (*Resolver, error) {
	if modulePath == "" {
		return nil, errors.New("framework: empty module path")
	}
	r := &Resolver{
		fs:  afero.NewOsFs(),
		env: SystemEnvironment(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.modulePath = modulePath
	r.moduleDir = filepath.Dir(modulePath)
	r.deployment = DetectDeployment(r.fs, r.moduleDir)

	cfg, err := ReadRuntimeConfig(r.fs, modulePath)
	if err != nil {
		return nil, err
	}
	r.config = cfg

	if r.deployment == FrameworkDependent {
		r.dotnetRoot = LocateDotnetRoot(r.fs, r.explicitRoot, r.env)
	}
	return r, nil
}

// Deployment returns the detected deployment kind.
func (r *Resolver) Deployment() Deployment {
	return r.deployment
}

// DotnetRoot returns the dotnet installation in use, or "".
func (r *Resolver) DotnetRoot() string {
	return r.dotnetRoot
}

// RuntimeConfig returns the parsed runtimeconfig, or nil when absent.
func (r *Resolver) RuntimeConfig() *RuntimeConfig {
	return r.config
}

// Frameworks returns the declared frameworks with their installed and
// selected versions. Self-contained modules report none.
func (r *Resolver) Frameworks() ([]Selection, error) {
	sels, err := r.selectFrameworks()
	out := make([]Selection, len(sels))
	for i, s := range sels {
		out[i] = *s
	}
	return out, err
}

// TryResolve looks up req.Library.
func (r *Resolver) TryResolve(req Request) (Result, error) {
	name := strings.TrimSuffix(req.Library, ".dll")
	if name == "" {
		return Result{}, nil
	}
	file := name + ".dll"

	dir := req.ModuleDir
	if dir == "" {
		dir = r.moduleDir
	}

	var paths []string
	var err error
	if req.SelfContained || r.deployment == SelfContained || DetectDeployment(r.fs, dir) == SelfContained {
		paths, err = r.searchModuleTree(dir, file)
	} else {
		paths, err = r.searchFrameworks(file)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{
		Paths:     paths,
		Resolved:  len(paths) > 0,
		Ambiguous: len(paths) > 1,
	}, nil
}

// searchModuleTree looks in dir and its immediate subdirectories only.
func (r *Resolver) searchModuleTree(dir, file string) ([]string, error) {
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read module directory %s: %w", dir, err)
	}

	var paths []string
	var subdirs []string
	for _, e := range entries {
		switch {
		case e.IsDir():
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
		case strings.EqualFold(e.Name(), file):
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	for _, sub := range subdirs {
		children, err := afero.ReadDir(r.fs, sub)
		if err != nil {
			// Unreadable subdirectories are skipped, not fatal.
			continue
		}
		for _, c := range children {
			if !c.IsDir() && strings.EqualFold(c.Name(), file) {
				paths = append(paths, filepath.Join(sub, c.Name()))
			}
		}
	}
	return paths, nil
}

func (r *Resolver) searchFrameworks(file string) ([]string, error) {
	sels, err := r.selectFrameworks()
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(file)
	seen := make(map[string]bool)
	var paths []string
	for _, s := range sels {
		name, ok := s.files[key]
		if !ok {
			continue
		}
		p := filepath.Join(s.Dir, name)
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (r *Resolver) selectFrameworks() ([]*Selection, error) {
	r.once.Do(func() {
		r.selections, r.selectErr = r.loadSelections()
	})
	return r.selections, r.selectErr
}

func (r *Resolver) loadSelections() ([]*Selection, error) {
	if r.deployment == SelfContained || r.dotnetRoot == "" {
		return nil, nil
	}

	shared := filepath.Join(r.dotnetRoot, "shared")
	if _, err := r.fs.Stat(shared); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSharedRootInaccessible, shared, err)
	}

	var sels []*Selection
	for _, ref := range r.config.Declared() {
		sel := &Selection{Reference: ref}
		sels = append(sels, sel)

		fwDir := filepath.Join(shared, ref.Name)
		entries, err := afero.ReadDir(r.fs, fwDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return sels, fmt.Errorf("%w: %s: %w", ErrSharedRootInaccessible, fwDir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				sel.Installed = append(sel.Installed, e.Name())
			}
		}

		version, ok, err := SelectVersion(sel.Installed, ref.Version)
		if err != nil {
			return sels, fmt.Errorf("framework %s: %w", ref.Name, err)
		}
		if !ok {
			continue
		}
		sel.Selected = version
		sel.Dir = filepath.Join(fwDir, version)

		files, err := afero.ReadDir(r.fs, sel.Dir)
		if err != nil {
			return sels, fmt.Errorf("%w: %s: %w", ErrSharedRootInaccessible, sel.Dir, err)
		}
		sel.files = make(map[string]string, len(files))
		for _, f := range files {
			if !f.IsDir() && strings.EqualFold(filepath.Ext(f.Name()), ".dll") {
				sel.files[strings.ToLower(f.Name())] = f.Name()
			}
		}
	}
	return sels, nil
}
