package model

// FactElementAttachment scores how strongly a fact entity supports a legal
// element. Strength is in [0,1].
type FactElementAttachment struct {
	FactEntityID string  `json:"fact_entity_id"`
	ElementID    string  `json:"element_id"`
	Strength     float64 `json:"strength"`
}

// ElementQuestion is a keyword/pattern probe used to match facts against an
// element.
type ElementQuestion struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

// LegalElement is one required element of a cause of action.
type LegalElement struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Questions   []ElementQuestion       `json:"questions"`
	Attachments []FactElementAttachment `json:"attachments,omitempty"`
	Satisfied   bool                    `json:"satisfied"`
}

// CauseOfAction is a detected legal theory with its element breakdown.
// Derived from graph state and recomputed wholesale whenever the underlying
// fact set changes; element satisfaction is not monotonic under retraction.
type CauseOfAction struct {
	ID           string         `json:"id"`
	Theory       string         `json:"theory"`
	Jurisdiction string         `json:"jurisdiction"`
	Elements     []LegalElement `json:"elements"`
	Confidence   float64        `json:"confidence"`
}

// StrengthAnalysis summarizes how close a cause is to viability.
type StrengthAnalysis struct {
	Theory         string `json:"theory"`
	SatisfiedCount int    `json:"satisfied_count"`
	TotalCount     int    `json:"total_count"`
	// WeakestElement is the element most in need of supporting fact, by
	// highest attachment strength ascending.
	WeakestElement string `json:"weakest_element"`
}
