package intent

import (
	"context"
	"errors"
	"testing"

	"boardbot/internal/llm"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntentJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Intent
	}{
		{
			name:  "plain object",
			reply: `{"action_type":"create","object_type":"board","name":"Work"}`,
			want:  Intent{ActionType: ActionCreate, ObjectType: ObjectBoard, Name: "Work"},
		},
		{
			name: "fenced json",
			reply: "```json\n" +
				`{"action_type":"delete","object_type":"board","name":"Old"}` +
				"\n```",
			want: Intent{ActionType: ActionDelete, ObjectType: ObjectBoard, Name: "Old"},
		},
		{
			name:  "surrounding prose",
			reply: `Sure, here is the extraction: {"action_type":"create","object_type":"card","name":"Review"} Hope that helps!`,
			want:  Intent{ActionType: ActionCreate, ObjectType: ObjectCard, Name: "Review"},
		},
		{
			name:  "case and unknown values normalized",
			reply: `{"action_type":"CREATE","object_type":"task"}`,
			want:  Intent{ActionType: ActionCreate, ObjectType: ObjectUnknown},
		},
		{
			name:  "lists and cards",
			reply: `{"action_type":"create","object_type":"board","lists":["Urgent"],"cards":["Red","Yellow","Green"]}`,
			want: Intent{
				ActionType: ActionCreate,
				ObjectType: ObjectBoard,
				Lists:      []string{"Urgent"},
				Cards:      []string{"Red", "Yellow", "Green"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntentJSON(tt.reply)
			require.NoError(t, err)
			tt.want.Other = map[string]string{}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseIntentJSON() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseIntentJSONInvalid(t *testing.T) {
	_, err := parseIntentJSON("I could not determine the intent, sorry.")
	assert.Error(t, err)
}

// stubLLM returns a canned reply or error for every call.
type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func (s *stubLLM) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func (s *stubLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestModelClassifier(t *testing.T) {
	client := &stubLLM{reply: `{"action_type":"create","object_type":"board","name":"Work"}`}
	c := NewModelClassifier(client)

	got, err := c.Classify(context.Background(), "set up a Work board")
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, got.ActionType)
	assert.Equal(t, ObjectBoard, got.ObjectType)
	assert.Equal(t, "Work", got.Name)
}

func TestModelClassifierError(t *testing.T) {
	client := &stubLLM{err: errors.New("connection refused")}
	c := NewModelClassifier(client)

	got, err := c.Classify(context.Background(), "anything")
	assert.Error(t, err)
	assert.Equal(t, ActionUnknown, got.ActionType)
}
