package authority

import (
	_ "embed"
)

//go:embed hierarchy.yaml
var defaultHierarchy []byte

// DefaultHierarchy loads the hierarchy shipped with the binary. Deployments
// with their own authority table point config at a file instead.
func DefaultHierarchy() (*Hierarchy, error) {
	return Load(defaultHierarchy)
}
