package claims

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/casefold/matterflow/internal/model"
)

// satisfactionThreshold is the minimum attachment strength at which a fact
// satisfies an element.
const satisfactionThreshold = 0.5

// Options tunes detection.
type Options struct {
	// MinConfidence is the viability cutoff. Causes scoring below it are
	// omitted from results entirely. Default 0.25.
	MinConfidence float64
}

// DefaultOptions returns the standard detection tuning.
func DefaultOptions() Options {
	return Options{MinConfidence: 0.25}
}

// Engine matches facts against the cause template catalogue. Stateless: the
// matrix is derived from its inputs and recomputed wholesale per call, so
// element satisfaction follows fact retraction as well as addition.
type Engine struct {
	catalog *Catalog
	opts    Options
}

// NewEngine creates an Engine over a validated catalogue.
func NewEngine(catalog *Catalog, opts Options) (*Engine, error) {
	if catalog == nil || len(catalog.Templates) == 0 {
		return nil, eris.New("claims: nil or empty catalogue")
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultOptions().MinConfidence
	}
	return &Engine{catalog: catalog, opts: opts}, nil
}

// DetectCauses evaluates every applicable template against the given facts
// and returns the causes at or above the viability cutoff, strongest first.
func (e *Engine) DetectCauses(facts []model.Entity, jurisdictionID string) ([]model.CauseOfAction, error) {
	if jurisdictionID == "" {
		return nil, eris.New("claims: jurisdiction required")
	}

	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = factText(f)
	}

	var causes []model.CauseOfAction
	for _, tpl := range e.catalog.Templates {
		if !tpl.appliesTo(jurisdictionID) {
			continue
		}
		cause := e.evaluate(&tpl, facts, texts, jurisdictionID)
		if cause.Confidence < e.opts.MinConfidence {
			continue
		}
		causes = append(causes, cause)
	}

	sort.SliceStable(causes, func(i, j int) bool {
		return causes[i].Confidence > causes[j].Confidence
	})
	return causes, nil
}

func (e *Engine) evaluate(tpl *Template, facts []model.Entity, texts []string, jurisdictionID string) model.CauseOfAction {
	cause := model.CauseOfAction{
		ID:           uuid.New().String(),
		Theory:       tpl.Theory,
		Jurisdiction: jurisdictionID,
		Elements:     make([]model.LegalElement, 0, len(tpl.Elements)),
	}

	satisfied := 0
	for _, tel := range tpl.Elements {
		el := model.LegalElement{
			ID:   tel.ID,
			Name: tel.Name,
		}
		for _, q := range tel.Questions {
			el.Questions = append(el.Questions, model.ElementQuestion{
				ID:       q.ID,
				Text:     q.Text,
				Keywords: q.Keywords,
			})
		}

		for i, f := range facts {
			strength := attachmentStrength(&tel, texts[i])
			if strength <= 0 {
				continue
			}
			el.Attachments = append(el.Attachments, model.FactElementAttachment{
				FactEntityID: f.ID,
				ElementID:    tel.ID,
				Strength:     strength,
			})
			if strength >= satisfactionThreshold {
				el.Satisfied = true
			}
		}
		if el.Satisfied {
			satisfied++
		}
		cause.Elements = append(cause.Elements, el)
	}

	cause.Confidence = float64(satisfied) / float64(len(tpl.Elements))
	return cause
}

// attachmentStrength scores one fact against one element: the best question
// score, where one matched keyword scores 0.5 and two or more score 1.
// Keywords within a question are alternative phrasings, not a checklist.
func attachmentStrength(el *TemplateElement, text string) float64 {
	best := 0.0
	for _, q := range el.Questions {
		matched := 0
		for _, kw := range q.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				matched++
			}
		}
		score := float64(matched) / 2
		if score > 1 {
			score = 1
		}
		if score > best {
			best = score
		}
	}
	return best
}

// factText flattens a fact entity into normalized matchable text.
func factText(f model.Entity) string {
	parts := []string{f.Name}
	for _, v := range f.Attributes {
		parts = append(parts, v)
	}
	return model.NormalizeKey(strings.Join(parts, " "))
}

// AnalyzeStrength summarizes a detected cause: how many elements are
// satisfied and which element is most in need of supporting fact.
func AnalyzeStrength(cause model.CauseOfAction) model.StrengthAnalysis {
	a := model.StrengthAnalysis{
		Theory:     cause.Theory,
		TotalCount: len(cause.Elements),
	}

	weakest := ""
	weakestStrength := 2.0
	for _, el := range cause.Elements {
		if el.Satisfied {
			a.SatisfiedCount++
		}
		best := 0.0
		for _, att := range el.Attachments {
			if att.Strength > best {
				best = att.Strength
			}
		}
		if best < weakestStrength {
			weakestStrength = best
			weakest = el.Name
		}
	}
	a.WeakestElement = weakest
	return a
}
