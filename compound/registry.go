// Package compound decides structural completeness for compound
// components: names whose bodies must contain a set of required
// sub-patterns before the component counts as fully formed.
package compound

import "sort"

// Definition lists the required sub-patterns for one canonical name.
type Definition struct {
	// CanonicalName is the component name this definition applies to.
	CanonicalName string
	// Subpatterns maps sub-pattern names to the substring that must appear
	// somewhere in the component body.
	Subpatterns map[string]string
}

// Registry is the static compound-component configuration. Loaded once at
// session construction and read-only afterwards.
type Registry struct {
	defs map[string]Definition
}

// defaultDefinitions covers the compound components the generation
// service is known to produce.
var defaultDefinitions = []Definition{
	{
		CanonicalName: "AppLayout",
		Subpatterns: map[string]string{
			"header": "<header",
			"main":   "<main",
			"footer": "<footer",
		},
	},
	{
		CanonicalName: "NavigationHeader",
		Subpatterns: map[string]string{
			"nav":   "<nav",
			"links": "<a ",
		},
	},
	{
		CanonicalName: "HeroSection",
		Subpatterns: map[string]string{
			"heading": "<h1",
			"cta":     "<button",
		},
	},
}

// DefaultRegistry returns a registry preloaded with the built-in
// definitions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range defaultDefinitions {
		r.Register(d)
	}
	return r
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces a definition. Registering an empty
// sub-pattern set removes the name from the registry, making it
// non-compound again.
func (r *Registry) Register(d Definition) {
	if len(d.Subpatterns) == 0 {
		delete(r.defs, d.CanonicalName)
		return
	}
	patterns := make(map[string]string, len(d.Subpatterns))
	for name, pattern := range d.Subpatterns {
		patterns[name] = pattern
	}
	r.defs[d.CanonicalName] = Definition{
		CanonicalName: d.CanonicalName,
		Subpatterns:   patterns,
	}
}

// Lookup returns the definition for a canonical name.
func (r *Registry) Lookup(canonicalName string) (Definition, bool) {
	d, ok := r.defs[canonicalName]
	return d, ok
}

// IsCompound reports whether a canonical name has a definition.
func (r *Registry) IsCompound(canonicalName string) bool {
	_, ok := r.defs[canonicalName]
	return ok
}

// Names returns the registered canonical names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
