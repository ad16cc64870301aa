// Package claims detects viable causes of action by matching knowledge graph
// facts against cause-of-action templates.
package claims

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// TemplateQuestion probes facts for an element via keyword matching.
type TemplateQuestion struct {
	ID       string   `yaml:"id"`
	Text     string   `yaml:"text"`
	Keywords []string `yaml:"keywords"`
}

// TemplateElement is one required element of a cause template.
type TemplateElement struct {
	ID        string             `yaml:"id"`
	Name      string             `yaml:"name"`
	Questions []TemplateQuestion `yaml:"questions"`
}

// Template describes one cause of action. An empty Jurisdictions list means
// the template applies everywhere.
type Template struct {
	Theory        string            `yaml:"theory"`
	Jurisdictions []string          `yaml:"jurisdictions,omitempty"`
	Elements      []TemplateElement `yaml:"elements"`
}

// Catalog is a validated set of cause templates.
type Catalog struct {
	Templates []Template `yaml:"templates"`
}

// DefaultCatalog parses the embedded template catalogue. The embedded file is
// validated at build of the binary's first use; failure here is a programming
// error, so callers treat it as fatal.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// ParseCatalog parses and validates catalogue YAML. Malformed templates are
// rejected outright rather than skipped.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "claims: parse catalogue")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateCatalog checks a catalogue assembled outside the YAML path, such
// as one loaded from the Notion registry.
func ValidateCatalog(c *Catalog) error {
	if c == nil {
		return eris.New("claims: nil catalogue")
	}
	return c.validate()
}

func (c *Catalog) validate() error {
	if len(c.Templates) == 0 {
		return eris.New("claims: catalogue has no templates")
	}
	seenTheory := make(map[string]bool)
	for _, tpl := range c.Templates {
		if tpl.Theory == "" {
			return eris.New("claims: template missing theory")
		}
		if seenTheory[tpl.Theory] {
			return eris.Errorf("claims: duplicate template %q", tpl.Theory)
		}
		seenTheory[tpl.Theory] = true
		if len(tpl.Elements) == 0 {
			return eris.Errorf("claims: template %q has no elements", tpl.Theory)
		}
		seenElem := make(map[string]bool)
		for _, el := range tpl.Elements {
			if el.ID == "" || el.Name == "" {
				return eris.Errorf("claims: template %q has an element missing id or name", tpl.Theory)
			}
			if seenElem[el.ID] {
				return eris.Errorf("claims: template %q has duplicate element %q", tpl.Theory, el.ID)
			}
			seenElem[el.ID] = true
			if len(el.Questions) == 0 {
				return eris.Errorf("claims: element %q of %q has no questions", el.ID, tpl.Theory)
			}
			for _, q := range el.Questions {
				if len(q.Keywords) == 0 {
					return eris.Errorf("claims: question %q of %q has no keywords", q.ID, tpl.Theory)
				}
			}
		}
	}
	return nil
}

// appliesTo reports whether the template covers the given jurisdiction.
func (t *Template) appliesTo(jurisdictionID string) bool {
	if len(t.Jurisdictions) == 0 {
		return true
	}
	for _, j := range t.Jurisdictions {
		if j == jurisdictionID {
			return true
		}
	}
	return false
}
