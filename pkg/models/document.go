package models

// ExtractionResult is the parsed output of a single extraction request.
// It is produced once per submission and treated as read-only afterwards.
type ExtractionResult struct {
	URI      string   // Source URI reported by the service (batch mode only)
	MimeType string   // MIME type of the submitted content
	Text     string   // Full document text; text anchors point into it
	Entities []Entity // Top-level entities in service order
	Pages    []Page   // Pages in document order
}

// Page is one page of the processed document.
type Page struct {
	PageNumber        int // 1-based
	Width             float32
	Height            float32
	DetectedLanguages []DetectedLanguage
}

// DetectedLanguage is a language detected on a page.
type DetectedLanguage struct {
	LanguageCode string
	Confidence   float32
}

// NormalizedValue is the canonical form of an entity value (e.g. an ISO date).
type NormalizedValue struct {
	Text string
}

// Entity is one classified span of a document.
type Entity struct {
	Type            string           // Field or classification label, may contain '/' and '-'
	MentionText     string           // Raw text as found in the source
	NormalizedValue *NormalizedValue // Optional canonical value
	Confidence      float32          // 0.0 to 1.0
	PageRefs        []int            // 0-based page indexes, in service order; empty for document-level entities
	Properties      []Entity         // Nested sub-fields
}

// Value returns the normalized text when present, otherwise the mention text.
func (e Entity) Value() string {
	if e.NormalizedValue != nil {
		return e.NormalizedValue.Text
	}
	return e.MentionText
}

// HasPages reports whether the entity is anchored to at least one page.
func (e Entity) HasPages() bool {
	return len(e.PageRefs) > 0
}

// TopEntity returns the entity with the highest confidence, or nil when
// entities is empty. Ties keep the earliest entity.
func TopEntity(entities []Entity) *Entity {
	var best *Entity
	for i := range entities {
		if best == nil || entities[i].Confidence > best.Confidence {
			best = &entities[i]
		}
	}
	return best
}
