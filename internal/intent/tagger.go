package intent

import (
	"regexp"
	"strings"
)

// EntityKind is the coarse class an entity tagger assigns to a span.
type EntityKind string

const (
	EntityName   EntityKind = "name"   // organization/product-like
	EntityDate   EntityKind = "date"   // due dates
	EntityPerson EntityKind = "person" // members
)

// Entity is a tagged span of the input text.
type Entity struct {
	Kind EntityKind
	Text string
}

// EntityTagger tags coarse entities in free text. It stands in for a full
// NLP annotation step; implementations are pluggable.
type EntityTagger interface {
	Tag(text string) []Entity
}

var (
	// A capitalized word after "for", "called" or "named" is treated as the
	// target object's name.
	namedEntityRe = regexp.MustCompile(`\b(?:for|called|named)\s+([A-Z][A-Za-z0-9_-]*)`)

	isoDateRe      = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	relativeDateRe = regexp.MustCompile(`(?i)\b(?:today|tomorrow|next\s+(?:week|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`)
	weekdayRe      = regexp.MustCompile(`(?i)\bon\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	honorificRe = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr)\.?\s+([A-Z][a-z]+)`)
	assignedRe  = regexp.MustCompile(`(?i)\bassign(?:ed)?\s+to\s+([A-Z][a-z]+)`)
)

// RegexTagger is the default pattern-based entity tagger.
type RegexTagger struct{}

// NewRegexTagger returns the default entity tagger.
func NewRegexTagger() *RegexTagger {
	return &RegexTagger{}
}

// Tag scans text for name, date and person entities, in that order.
func (t *RegexTagger) Tag(text string) []Entity {
	var entities []Entity

	for _, m := range namedEntityRe.FindAllStringSubmatch(text, -1) {
		entities = append(entities, Entity{Kind: EntityName, Text: m[1]})
	}

	if m := isoDateRe.FindString(text); m != "" {
		entities = append(entities, Entity{Kind: EntityDate, Text: m})
	} else if m := relativeDateRe.FindString(text); m != "" {
		entities = append(entities, Entity{Kind: EntityDate, Text: strings.ToLower(m)})
	} else if m := weekdayRe.FindStringSubmatch(text); m != nil {
		entities = append(entities, Entity{Kind: EntityDate, Text: strings.ToLower(m[1])})
	}

	if m := honorificRe.FindStringSubmatch(text); m != nil {
		entities = append(entities, Entity{Kind: EntityPerson, Text: m[1]})
	} else if m := assignedRe.FindStringSubmatch(text); m != nil {
		entities = append(entities, Entity{Kind: EntityPerson, Text: m[1]})
	}

	return entities
}
