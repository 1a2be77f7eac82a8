package sources

import "sort"

// Registry holds the registered sources. The orchestrator iterates per
// layer; adding a provider is a new adapter plus one Register call.
type Registry struct {
	sources []Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a source. Registration order within a layer is preserved
// (it is the final merge tie-break).
func (r *Registry) Register(s Source) {
	r.sources = append(r.sources, s)
}

// ByLayer returns the sources that run in the given layer, in
// registration order.
func (r *Registry) ByLayer(layer int) []Source {
	var out []Source
	for _, s := range r.sources {
		if s.Layer() == layer {
			out = append(out, s)
		}
	}
	return out
}

// All returns every registered source ordered by layer.
func (r *Registry) All() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Layer() < out[j].Layer() })
	return out
}
