// Package catalog resolves requested model names to canonical model
// identities and checks capability requirements against the configured
// catalog.
package catalog

import "strings"

// UnknownProvider is assigned when a model id carries no provider segment.
const UnknownProvider = "unknown"

// ModelID is the canonical identity of a model, parsed from the
// "provider/modelPath" form. Immutable value.
type ModelID struct {
	Provider string
	Path     string
}

// ParseModelID splits "provider/modelPath" on the first slash. Ids without
// a slash are preserved as the path under the "unknown" provider rather
// than rejected.
func ParseModelID(s string) ModelID {
	provider, path, found := strings.Cut(s, "/")
	if !found {
		return ModelID{Provider: UnknownProvider, Path: s}
	}
	return ModelID{Provider: provider, Path: path}
}

func (id ModelID) String() string {
	return id.Provider + "/" + id.Path
}
