package catalog

import (
	"sort"

	"github.com/inflightops/courier-router/internal/config"
)

// Resolver maps requested model names to canonical identities. It is built
// from one catalog snapshot and is immutable; a reload builds a new one.
type Resolver struct {
	aliases map[string][]string
	models  map[string]*config.CanonicalModel
}

func NewResolver(catalog *config.CatalogConfig) *Resolver {
	models := make(map[string]*config.CanonicalModel, len(catalog.CanonicalModels))
	for _, m := range catalog.CanonicalModels {
		id := ParseModelID(m.ID)
		if m.Provider == "" {
			m.Provider = id.Provider
		}
		if m.ModelPath == "" {
			m.ModelPath = id.Path
		}
		entry := m
		models[id.String()] = &entry
	}

	aliases := make(map[string][]string, len(catalog.Aliases))
	for name, alias := range catalog.Aliases {
		aliases[name] = alias.Candidates
	}

	return &Resolver{aliases: aliases, models: models}
}

// Resolve maps a requested model name to its canonical identity. Alias
// lookup is a single hop: the alias's first candidate is substituted and
// the result is never re-resolved. The returned model config is nil when
// the id is not in the catalog; such models carry no capability
// restrictions.
func (r *Resolver) Resolve(modelID string) (ModelID, *config.CanonicalModel) {
	target := modelID
	if candidates, ok := r.aliases[modelID]; ok && len(candidates) > 0 {
		target = candidates[0]
	}
	id := ParseModelID(target)
	return id, r.models[id.String()]
}

// Models returns the configured canonical models sorted by id.
func (r *Resolver) Models() []config.CanonicalModel {
	out := make([]config.CanonicalModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Aliases returns the alias table with each alias's ordered candidates.
func (r *Resolver) Aliases() map[string][]string {
	out := make(map[string][]string, len(r.aliases))
	for name, candidates := range r.aliases {
		out[name] = append([]string(nil), candidates...)
	}
	return out
}
