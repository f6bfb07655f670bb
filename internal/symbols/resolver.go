package symbols

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/psantana5/covrun/pkg/filesystem"
)

// Resolver is the default symbol resolver. It reads the module, its symbol
// file and its deps.json from a filesystem.FS.
type Resolver struct {
	fs *filesystem.FS
}

// NewResolver returns a Resolver over fsys.
func NewResolver(fsys *filesystem.FS) *Resolver {
	return &Resolver{fs: fsys}
}

// DefaultSymbolPath replaces the module extension with .pdb.
func DefaultSymbolPath(modulePath string) string {
	return strings.TrimSuffix(modulePath, filepath.Ext(modulePath)) + ".pdb"
}

// Resolve builds the SymbolMap for modulePath. A missing symbol file or
// deps.json is not an error; an image without a CLI header is.
func (r *Resolver) Resolve(modulePath, symbolPath string) (*SymbolMap, error) {
	data, err := r.fs.ReadFile(modulePath)
	if err != nil {
		return nil, err
	}
	img, err := InspectImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", modulePath, err)
	}
	if !img.Managed {
		return nil, fmt.Errorf("%s: %w", modulePath, ErrNotManaged)
	}

	m := &SymbolMap{ModulePath: modulePath, Machine: img.Machine}

	if symbolPath == "" {
		symbolPath = DefaultSymbolPath(modulePath)
	}
	if r.fs.Exists(symbolPath) {
		format, err := r.readSymbolHeader(symbolPath)
		if err != nil {
			return nil, err
		}
		m.SymbolPath = symbolPath
		m.SymbolFormat = format
	}

	depsPath := DepsPath(modulePath)
	if r.fs.Exists(depsPath) {
		raw, err := r.fs.ReadFile(depsPath)
		if err != nil {
			return nil, err
		}
		target, deps, err := parseDeps(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", depsPath, err)
		}
		m.Target = target

		moduleDir := filepath.Dir(modulePath)
		self := strings.TrimSuffix(filepath.Base(modulePath), filepath.Ext(modulePath))
		for _, d := range deps {
			if strings.EqualFold(d.Name, self) {
				continue
			}
			local := filepath.Join(moduleDir, d.Name+".dll")
			if r.fs.Exists(local) {
				d.Path = local
			}
			m.Dependencies = append(m.Dependencies, d)
		}
	}
	return m, nil
}

func (r *Resolver) readSymbolHeader(path string) (string, error) {
	rc, err := r.fs.OpenRead(path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	header := make([]byte, 32)
	n, err := io.ReadFull(rc, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return symbolFormat(header[:n]), nil
}
