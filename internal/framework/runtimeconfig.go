package framework

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// DefaultFramework is assumed when a module has no runtimeconfig.
const DefaultFramework = "Microsoft.NETCore.App"

// Reference is a framework a module declares, with its minimum version.
type Reference struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type runtimeConfigFile struct {
	RuntimeOptions struct {
		TFM                string      `json:"tfm"`
		Framework          *Reference  `json:"framework"`
		Frameworks         []Reference `json:"frameworks"`
		IncludedFrameworks []Reference `json:"includedFrameworks"`
		RollForward        string      `json:"rollForward"`
	} `json:"runtimeOptions"`
}

// RuntimeConfig is the part of <module>.runtimeconfig.json covrun uses.
type RuntimeConfig struct {
	Path        string
	TFM         string
	RollForward string
	// Frameworks are the shared frameworks the module runs on.
	Frameworks []Reference
	// Included are frameworks bundled by a self-contained publish.
	Included []Reference
}

// RuntimeConfigPath returns <dir>/<base>.runtimeconfig.json for modulePath.
func RuntimeConfigPath(modulePath string) string {
	ext := filepath.Ext(modulePath)
	return strings.TrimSuffix(modulePath, ext) + ".runtimeconfig.json"
}

// ReadRuntimeConfig loads the runtimeconfig next to modulePath. A missing
// file yields (nil, nil).
func ReadRuntimeConfig(fsys afero.Fs, modulePath string) (*RuntimeConfig, error) {
	path := RuntimeConfigPath(modulePath)
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runtime config %s: %w", path, err)
	}

	var raw runtimeConfigFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse runtime config %s: %w", path, err)
	}

	cfg := &RuntimeConfig{
		Path:        path,
		TFM:         raw.RuntimeOptions.TFM,
		RollForward: raw.RuntimeOptions.RollForward,
		Included:    raw.RuntimeOptions.IncludedFrameworks,
	}
	if raw.RuntimeOptions.Framework != nil {
		cfg.Frameworks = append(cfg.Frameworks, *raw.RuntimeOptions.Framework)
	}
	cfg.Frameworks = append(cfg.Frameworks, raw.RuntimeOptions.Frameworks...)
	return cfg, nil
}

// Declared returns the frameworks to search, defaulting to
// Microsoft.NETCore.App with no minimum.
func (c *RuntimeConfig) Declared() []Reference {
	if c == nil || len(c.Frameworks) == 0 {
		return []Reference{{Name: DefaultFramework}}
	}
	return c.Frameworks
}
