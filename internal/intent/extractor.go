package intent

import (
	"context"

	"boardbot/internal/llm"

	"go.uber.org/zap"
)

// Extractor runs the configured classifier and, when the rule-based result
// still has an unknown action or object, issues one completion call to fill
// the gaps. A fallback that cannot be parsed is dropped silently and the
// rule-based result stands.
type Extractor struct {
	classifier Classifier
	client     llm.Client
	logger     *zap.Logger
}

// NewExtractor creates an extractor. client may be nil, in which case the
// completion fallback is skipped entirely.
func NewExtractor(classifier Classifier, client llm.Client, logger *zap.Logger) *Extractor {
	return &Extractor{
		classifier: classifier,
		client:     client,
		logger:     logger,
	}
}

// Extract derives an Intent from raw text.
func (e *Extractor) Extract(ctx context.Context, text string) Intent {
	it, err := e.classifier.Classify(ctx, text)
	if err != nil {
		e.logger.Debug("classifier failed, continuing with empty intent", zap.Error(err))
		it = Intent{ActionType: ActionUnknown, ObjectType: ObjectUnknown, Other: make(map[string]string)}
	}

	if it.ActionType != ActionUnknown && it.ObjectType != ObjectUnknown {
		return it
	}
	if e.client == nil {
		return it
	}

	reply, err := e.client.CompleteWithSystem(ctx, extractionSystemPrompt, text)
	if err != nil {
		e.logger.Debug("extraction fallback call failed, keeping rule-based intent", zap.Error(err))
		return it
	}

	parsed, err := parseIntentJSON(reply)
	if err != nil {
		e.logger.Debug("extraction fallback reply unparseable, keeping rule-based intent", zap.Error(err))
		return it
	}

	return merge(it, parsed)
}

// merge overlays the completion-service intent onto the rule-based one.
// Fallback values win whenever they are present.
func merge(base, overlay Intent) Intent {
	if overlay.ActionType != ActionUnknown {
		base.ActionType = overlay.ActionType
	}
	if overlay.ObjectType != ObjectUnknown {
		base.ObjectType = overlay.ObjectType
	}
	if overlay.Name != "" {
		base.Name = overlay.Name
	}
	if overlay.Description != "" {
		base.Description = overlay.Description
	}
	if len(overlay.Lists) > 0 {
		base.Lists = overlay.Lists
	}
	if len(overlay.Cards) > 0 {
		base.Cards = overlay.Cards
	}
	if base.Other == nil {
		base.Other = make(map[string]string)
	}
	for k, v := range overlay.Other {
		base.Other[k] = v
	}
	return base
}
