// Package intent turns free-text requests into structured intents. A
// rule-based pass runs first; when it cannot determine the action or object,
// one completion call fills the gaps.
package intent

import (
	"context"
	"strings"
)

// ActionType is what the user wants to do.
type ActionType string

// ObjectType is what the user wants to act on.
type ObjectType string

const (
	ActionCreate  ActionType = "create"
	ActionDelete  ActionType = "delete"
	ActionUpdate  ActionType = "update"
	ActionList    ActionType = "list"
	ActionUnknown ActionType = "unknown"

	ObjectBoard   ObjectType = "board"
	ObjectList    ObjectType = "list"
	ObjectCard    ObjectType = "card"
	ObjectUnknown ObjectType = "unknown"
)

// Intent is the structured interpretation of a free-text request.
// It lives for a single request: built by a Classifier, optionally merged
// with a completion-service result, consumed once by the dispatcher.
type Intent struct {
	ActionType  ActionType        `json:"action_type"`
	ObjectType  ObjectType        `json:"object_type"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Lists       []string          `json:"lists,omitempty"`
	Cards       []string          `json:"cards,omitempty"`
	Other       map[string]string `json:"other_parameters,omitempty"`
}

// Classifier derives an Intent from raw text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

// normalizeAction maps free-form action strings onto the known set.
func normalizeAction(s string) ActionType {
	switch ActionType(strings.ToLower(strings.TrimSpace(s))) {
	case ActionCreate, ActionDelete, ActionUpdate, ActionList:
		return ActionType(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ActionUnknown
	}
}

// normalizeObject maps free-form object strings onto the known set.
func normalizeObject(s string) ObjectType {
	switch ObjectType(strings.ToLower(strings.TrimSpace(s))) {
	case ObjectBoard, ObjectList, ObjectCard:
		return ObjectType(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ObjectUnknown
	}
}
