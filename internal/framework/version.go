package framework

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// SelectVersion picks the framework version to use from the installed
// directory names. The exact minimum wins when installed; otherwise the
// lowest stable version with the same major that is not below minimum. An
// empty minimum selects the lowest stable version. Names that are not
// versions are ignored.
func SelectVersion(installed []string, minimum string) (string, bool, error) {
	type candidate struct {
		name string
		v    *semver.Version
	}
	var versions []candidate
	for _, name := range installed {
		v, err := semver.NewVersion(name)
		if err != nil {
			continue
		}
		versions = append(versions, candidate{name, v})
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].v.LessThan(versions[j].v)
	})

	if minimum == "" {
		for _, c := range versions {
			if c.v.Prerelease() == "" {
				return c.name, true, nil
			}
		}
		return "", false, nil
	}

	min, err := semver.NewVersion(minimum)
	if err != nil {
		return "", false, fmt.Errorf("invalid framework version %q: %w", minimum, err)
	}

	for _, c := range versions {
		if c.name == minimum || c.v.Equal(min) {
			return c.name, true, nil
		}
	}
	for _, c := range versions {
		if c.v.Prerelease() != "" || c.v.Major() != min.Major() {
			continue
		}
		if !c.v.LessThan(min) {
			return c.name, true, nil
		}
	}
	return "", false, nil
}
