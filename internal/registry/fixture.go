package registry

import (
	"os"

	"github.com/rotisserie/eris"

	"github.com/casefold/matterflow/internal/claims"
)

// LoadCatalogFromFile reads a cause template catalogue from a YAML file.
// Used for local overrides without a Notion workspace.
func LoadCatalogFromFile(path string) (*claims.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read catalogue file")
	}
	return claims.ParseCatalog(data)
}
