package compound

import (
	"sort"
	"strings"
)

// Validator checks accumulated component bodies against the registry.
//
// Matching is a plain substring test re-evaluated over the full body each
// time. Bodies are bounded by the store's size ceiling, so simplicity
// wins over incremental matching here.
type Validator struct {
	registry *Registry
}

// NewValidator creates a validator over the given registry.
func NewValidator(registry *Registry) *Validator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Validator{registry: registry}
}

// IsComplete reports whether every required sub-pattern for the name is
// present in code. Names without a definition are complete by definition.
func (v *Validator) IsComplete(canonicalName string, code []byte) bool {
	return len(v.Missing(canonicalName, code)) == 0
}

// Missing returns the sub-pattern names not yet found in code, sorted.
// Empty for non-compound names.
func (v *Validator) Missing(canonicalName string, code []byte) []string {
	def, ok := v.registry.Lookup(canonicalName)
	if !ok {
		return nil
	}

	body := string(code)
	var missing []string
	for name, pattern := range def.Subpatterns {
		if !strings.Contains(body, pattern) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
