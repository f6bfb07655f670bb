// Package symbols builds the symbol map of a managed module: its debug
// symbol file and the assemblies it depends on.
package symbols

// Dependency is one assembly the module loads at run time.
type Dependency struct {
	// Name is the assembly name without extension.
	Name string `json:"name"`
	// Version is the version of the library that carries the assembly.
	Version string `json:"version"`
	// Library is the deps.json library key, e.g. "Newtonsoft.Json/13.0.3".
	Library string `json:"library,omitempty"`
	// Type is the deps.json library type (package, reference, ...).
	Type string `json:"type,omitempty"`
	// Path is set when the assembly was found next to the module.
	Path string `json:"path,omitempty"`
	// Resolved holds shared-framework paths found for the assembly.
	Resolved []string `json:"resolved,omitempty"`
	// Required is set by instrumenters that cannot proceed without the
	// assembly.
	Required bool `json:"required,omitempty"`
}

// Local reports whether the assembly ships with the module.
func (d Dependency) Local() bool {
	return d.Path != ""
}

// SymbolMap describes a module for the instrumenter.
type SymbolMap struct {
	ModulePath string `json:"module_path"`
	// SymbolPath is empty when no symbol file exists.
	SymbolPath   string       `json:"symbol_path,omitempty"`
	SymbolFormat string       `json:"symbol_format,omitempty"`
	Machine      string       `json:"machine,omitempty"`
	Target       string       `json:"target,omitempty"`
	Dependencies []Dependency `json:"dependencies"`
}

// Unresolved returns dependencies with neither a local nor a framework path.
func (m *SymbolMap) Unresolved() []Dependency {
	var out []Dependency
	for _, d := range m.Dependencies {
		if !d.Local() && len(d.Resolved) == 0 {
			out = append(out, d)
		}
	}
	return out
}
