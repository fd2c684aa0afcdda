package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"boardbot/internal/llm"
)

// The fixed instruction used whenever a completion call is asked to emit a
// structured intent. Mirrors the shape the dispatcher consumes.
const extractionSystemPrompt = `You are an AI assistant specialized in extracting structured information from user requests related to Trello.
Extract the following details and respond with a single JSON object, no prose:
- "action_type": create, list, update, delete, etc.
- "object_type": board, list, card, etc.
- "name": the name provided for the object.
- "description": any description provided.
- "other_parameters": due dates, labels, members, etc. as a string-to-string map.
- "lists": a list of names for lists to create. If the user specifies them, extract exactly what they said.
  Example user input: 'Create a board for Work with lists: Urgent, Pending, Completed'
  Extracted lists should be: ["Urgent", "Pending", "Completed"]
- "cards": a list of names for cards to create. If the user specifies them, extract exactly what they said.
  Example user input: 'Create a board for Work with lists: Urgent and 3 cards: Red, Yellow and Green'
  Extracted cards should be: ["Red", "Yellow", "Green"]

Ensure lists are ALWAYS extracted if the user provides them.
Ensure cards are ALWAYS extracted if the user provides them.`

// ModelClassifier derives intents with a single completion call instead of
// local rules. Selected via the intent.classifier config setting.
type ModelClassifier struct {
	client llm.Client
}

// NewModelClassifier creates a completion-backed classifier.
func NewModelClassifier(client llm.Client) *ModelClassifier {
	return &ModelClassifier{client: client}
}

// Classify asks the completion service for a structured intent.
func (c *ModelClassifier) Classify(ctx context.Context, text string) (Intent, error) {
	reply, err := c.client.CompleteWithSystem(ctx, extractionSystemPrompt, text)
	if err != nil {
		return Intent{ActionType: ActionUnknown, ObjectType: ObjectUnknown}, fmt.Errorf("completion call failed: %w", err)
	}

	it, err := parseIntentJSON(reply)
	if err != nil {
		return Intent{ActionType: ActionUnknown, ObjectType: ObjectUnknown}, err
	}
	return it, nil
}

// parseIntentJSON decodes a completion reply into an Intent, tolerating
// markdown code fences around the JSON object.
func parseIntentJSON(reply string) (Intent, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	// Tolerate leading/trailing prose around the object.
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var it Intent
	if err := json.Unmarshal([]byte(cleaned), &it); err != nil {
		return Intent{}, fmt.Errorf("failed to parse intent JSON: %w", err)
	}

	it.ActionType = normalizeAction(string(it.ActionType))
	it.ObjectType = normalizeObject(string(it.ObjectType))
	if it.Other == nil {
		it.Other = make(map[string]string)
	}

	return it, nil
}
