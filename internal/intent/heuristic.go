package intent

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

// Keyword buckets for action detection. Bucket declaration order is the
// tie-break: when tokens from several buckets appear, the earliest bucket
// wins regardless of word position in the input.
var actionBuckets = []struct {
	action   ActionType
	keywords []string
}{
	{ActionCreate, []string{"create", "add", "make", "new"}},
	{ActionDelete, []string{"delete", "remove", "erase"}},
	{ActionUpdate, []string{"update", "change", "modify"}},
	{ActionList, []string{"list", "show", "view"}},
}

// Object buckets, same declaration-order tie-break.
var objectBuckets = []struct {
	object   ObjectType
	keywords []string
}{
	{ObjectBoard, []string{"board"}},
	{ObjectList, []string{"list"}},
	{ObjectCard, []string{"card"}},
}

var (
	boardNameRe = regexp.MustCompile(`(?i)board\s+(?:called\s+)?(\w+)`)

	listsSegmentRe = regexp.MustCompile(`(?i)\blists?\b(?:\s*:\s*|\s+with\s+)?(.*)$`)
	listsPrefixRe  = regexp.MustCompile(`(?i)^\d+\s+lists?(?:\s*:\s*)?`)
	cardsMarkerRe  = regexp.MustCompile(`(?i)(?:\band\b\s*)?\d*\s*\bcards?\b\s*:`)
	cardsSegmentRe = regexp.MustCompile(`(?i)\bcards?\b\s*:\s*(.*)$`)

	nameSplitRe = regexp.MustCompile(`(?i),|\band\b`)
)

// HeuristicClassifier is the rule-based intent classifier: keyword buckets
// for action/object, a pluggable entity tagger for names, dates and members,
// and segment parsing for list/card enumerations.
type HeuristicClassifier struct {
	tagger EntityTagger
}

// NewHeuristicClassifier creates a rule-based classifier. A nil tagger
// defaults to the regex tagger.
func NewHeuristicClassifier(tagger EntityTagger) *HeuristicClassifier {
	if tagger == nil {
		tagger = NewRegexTagger()
	}
	return &HeuristicClassifier{tagger: tagger}
}

// Classify derives an Intent from text using only local rules.
// It never returns an error; unknowns are expressed in the Intent itself.
func (c *HeuristicClassifier) Classify(ctx context.Context, text string) (Intent, error) {
	it := Intent{
		ActionType: ActionUnknown,
		ObjectType: ObjectUnknown,
		Other:      make(map[string]string),
	}

	tokens := tokenSet(text)

	for _, bucket := range actionBuckets {
		if containsAny(tokens, bucket.keywords) {
			it.ActionType = bucket.action
			break
		}
	}

	for _, bucket := range objectBuckets {
		if containsAny(tokens, bucket.keywords) {
			it.ObjectType = bucket.object
			break
		}
	}

	for _, ent := range c.tagger.Tag(text) {
		switch ent.Kind {
		case EntityName:
			if it.Name == "" {
				it.Name = ent.Text
			}
		case EntityDate:
			it.Other["due_date"] = ent.Text
		case EntityPerson:
			it.Other["member"] = ent.Text
		}
	}

	// Recover a single-token board name when the tagger found nothing.
	if it.Name == "" && it.ObjectType == ObjectBoard {
		if m := boardNameRe.FindStringSubmatch(text); m != nil {
			it.Name = m[1]
		}
	}

	it.Lists = extractLists(text)
	it.Cards = extractCards(text)

	return it, nil
}

// extractLists pulls the list names out of a "lists:" or "lists ... with"
// segment. The segment ends where a cards segment begins.
func extractLists(text string) []string {
	m := listsSegmentRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	segment := m[1]
	segment = listsPrefixRe.ReplaceAllString(segment, "")
	if loc := cardsMarkerRe.FindStringIndex(segment); loc != nil {
		segment = segment[:loc[0]]
	}

	return splitNames(segment)
}

// extractCards pulls the card names out of a "cards:" segment.
func extractCards(text string) []string {
	m := cardsSegmentRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return splitNames(m[1])
}

// splitNames splits an enumeration on commas and the word "and", trimming
// whitespace and dropping empty fragments.
func splitNames(segment string) []string {
	var names []string
	for _, part := range nameSplitRe.Split(segment, -1) {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// tokenSet lower-cases text and splits it into a set of word tokens.
func tokenSet(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[tok] = true
	}
	return tokens
}

func containsAny(tokens map[string]bool, keywords []string) bool {
	for _, kw := range keywords {
		if tokens[kw] {
			return true
		}
	}
	return false
}
