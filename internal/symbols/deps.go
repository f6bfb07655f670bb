package symbols

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

type depsFile struct {
	RuntimeTarget struct {
		Name string `json:"name"`
	} `json:"runtimeTarget"`
	Targets   map[string]map[string]depsTarget `json:"targets"`
	Libraries map[string]depsLibrary           `json:"libraries"`
}

type depsTarget struct {
	Runtime map[string]json.RawMessage `json:"runtime"`
}

type depsLibrary struct {
	Type string `json:"type"`
}

// DepsPath returns <dir>/<base>.deps.json for modulePath.
func DepsPath(modulePath string) string {
	return strings.TrimSuffix(modulePath, filepath.Ext(modulePath)) + ".deps.json"
}

// parseDeps extracts runtime assemblies from a deps.json document. Project
// libraries (the module itself and project references built alongside it)
// are skipped. The result is sorted for stable output.
func parseDeps(data []byte) (string, []Dependency, error) {
	var doc depsFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", nil, fmt.Errorf("parse deps.json: %w", err)
	}

	target := doc.RuntimeTarget.Name
	assets := doc.Targets[target]

	keys := make([]string, 0, len(doc.Libraries))
	for key := range doc.Libraries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var deps []Dependency
	for _, key := range keys {
		lib := doc.Libraries[key]
		if strings.EqualFold(lib.Type, "project") {
			continue
		}
		name, version, _ := strings.Cut(key, "/")

		runtime := assets[key].Runtime
		if len(runtime) == 0 {
			// Reference assemblies carry no runtime asset list; packages
			// without one are metapackages and load nothing.
			if strings.EqualFold(lib.Type, "reference") || strings.EqualFold(lib.Type, "referenceassembly") {
				deps = append(deps, Dependency{Name: name, Version: version, Library: key, Type: lib.Type})
			}
			continue
		}

		files := make([]string, 0, len(runtime))
		for file := range runtime {
			files = append(files, file)
		}
		sort.Strings(files)
		for _, file := range files {
			base := path.Base(file)
			if !strings.EqualFold(path.Ext(base), ".dll") {
				continue
			}
			deps = append(deps, Dependency{
				Name:    strings.TrimSuffix(base, path.Ext(base)),
				Version: version,
				Library: key,
				Type:    lib.Type,
			})
		}
	}
	return target, deps, nil
}
