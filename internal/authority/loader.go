package authority

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrPreemptionCycle marks a cyclic preemption declaration in the hierarchy
// file. This is a fatal configuration error, not a runtime condition.
var ErrPreemptionCycle = eris.New("authority: cyclic preemption declaration")

// Hierarchy is the loaded, versioned authority table. It is read-only during
// a workflow run; mid-run edits take effect on the next run, which pins the
// version it started with.
type Hierarchy struct {
	Version     int         `yaml:"version"`
	Authorities []Authority `yaml:"authorities"`

	byDomain map[string][]Authority
}

// LoadFile reads and validates an authority hierarchy from a YAML file.
func LoadFile(path string) (*Hierarchy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "authority: read hierarchy %s", path)
	}
	return Load(data)
}

// Load parses and validates hierarchy YAML. Cyclic preemption declarations
// are rejected here so they can never surface mid-run.
func Load(data []byte) (*Hierarchy, error) {
	var h Hierarchy
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, eris.Wrap(err, "authority: parse hierarchy")
	}

	if err := h.validate(); err != nil {
		return nil, err
	}

	h.byDomain = make(map[string][]Authority)
	for _, a := range h.Authorities {
		if a.Domain != "" {
			h.byDomain[a.Domain] = append(h.byDomain[a.Domain], a)
		}
	}

	zap.L().Info("authority: hierarchy loaded",
		zap.Int("version", h.Version),
		zap.Int("authorities", len(h.Authorities)),
	)
	return &h, nil
}

// Candidates returns the authorities declaring the given domain.
func (h *Hierarchy) Candidates(domain string) []Authority {
	return h.byDomain[domain]
}

// Lookup returns the authority for a jurisdiction id, if declared.
func (h *Hierarchy) Lookup(jurisdictionID string) (Authority, bool) {
	for _, a := range h.Authorities {
		if a.JurisdictionID == jurisdictionID {
			return a, true
		}
	}
	return Authority{}, false
}

func (h *Hierarchy) validate() error {
	seen := make(map[string]bool, len(h.Authorities))
	domainOwner := make(map[string]string)
	for _, a := range h.Authorities {
		if a.JurisdictionID == "" {
			return eris.New("authority: entry missing jurisdiction_id")
		}
		if seen[a.JurisdictionID] {
			return eris.Errorf("authority: duplicate jurisdiction %q", a.JurisdictionID)
		}
		seen[a.JurisdictionID] = true
		if a.Domain != "" {
			domainOwner[a.Domain] = a.JurisdictionID
		}
	}

	return h.checkPreemptionCycles(domainOwner)
}

// checkPreemptionCycles walks the preemption graph (jurisdiction → preempted
// jurisdiction via domain ownership) looking for cycles.
func (h *Hierarchy) checkPreemptionCycles(domainOwner map[string]string) error {
	edges := make(map[string][]string)
	for _, a := range h.Authorities {
		for _, scope := range a.PreemptionScope {
			if owner, ok := domainOwner[scope]; ok && owner != a.JurisdictionID {
				edges[a.JurisdictionID] = append(edges[a.JurisdictionID], owner)
			}
		}
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)

	var visit func(node string) error
	visit = func(node string) error {
		switch state[node] {
		case inStack:
			return eris.Wrapf(ErrPreemptionCycle, "at %q", node)
		case done:
			return nil
		}
		state[node] = inStack
		for _, next := range edges[node] {
			if err := visit(next); err != nil {
				return err
			}
		}
		state[node] = done
		return nil
	}

	for node := range edges {
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}
