package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"boardbot/internal/intent"
	"boardbot/internal/llm"
	"boardbot/internal/store"
	"boardbot/internal/trello"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBoards counts calls and can be told to fail at each step.
type fakeBoards struct {
	createBoardCalls int
	memberCalls      int
	deleteCalls      int
	createListCalls  int
	createCardCalls  int

	boards        []trello.Board
	failBoard     error
	failList      error
	failListAfter int // fail once this many lists were created
	failCard      error
}

func (f *fakeBoards) CreateBoard(ctx context.Context, name, desc string) (trello.Board, error) {
	f.createBoardCalls++
	if f.failBoard != nil {
		return trello.Board{}, f.failBoard
	}
	return trello.Board{ID: "b1", Name: name, Desc: desc}, nil
}

func (f *fakeBoards) MemberBoards(ctx context.Context) ([]trello.Board, error) {
	f.memberCalls++
	return f.boards, nil
}

func (f *fakeBoards) DeleteBoard(ctx context.Context, boardID string) error {
	f.deleteCalls++
	return nil
}

func (f *fakeBoards) CreateList(ctx context.Context, boardID, name string) (trello.List, error) {
	if f.failList != nil && f.createListCalls >= f.failListAfter {
		return trello.List{}, f.failList
	}
	f.createListCalls++
	return trello.List{ID: fmt.Sprintf("l%d", f.createListCalls), Name: name, IDBoard: boardID}, nil
}

func (f *fakeBoards) CreateCard(ctx context.Context, listID, name string) (trello.Card, error) {
	if f.failCard != nil {
		return trello.Card{}, f.failCard
	}
	f.createCardCalls++
	return trello.Card{ID: fmt.Sprintf("c%d", f.createCardCalls), Name: name, IDList: listID}, nil
}

// fakeLog records appended conversations.
type fakeLog struct {
	appended  []string
	entries   []store.ConversationEntry
	appendErr error
	queryErr  error
}

func (f *fakeLog) Append(ctx context.Context, question, answer string, metadata map[string]interface{}) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.appended = append(f.appended, question)
	return "id", nil
}

func (f *fakeLog) Query(ctx context.Context, text string, limit int) ([]store.ConversationEntry, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

// fakeLLM records the last prompts it saw.
type fakeLLM struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
	lastPrompt string
	calls      int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.reply, f.err
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastUser = user
	return f.reply, f.err
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	f.calls++
	return f.reply, f.err
}

func newTestDispatcher(boards *fakeBoards, client *fakeLLM, log *fakeLog) *Dispatcher {
	return New(boards, client, log, 5, 50, zap.NewNop())
}

func TestDispatchCreateBoard(t *testing.T) {
	boards := &fakeBoards{}
	log := &fakeLog{}
	d := newTestDispatcher(boards, &fakeLLM{}, log)

	it := intent.Intent{
		ActionType: intent.ActionCreate,
		ObjectType: intent.ObjectBoard,
		Name:       "ProjectX",
		Lists:      []string{"Urgent"},
		Cards:      []string{"Red", "Yellow", "Green"},
	}

	result, err := d.Dispatch(context.Background(), it, "create a board called ProjectX", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, boards.createBoardCalls)
	assert.Equal(t, 1, boards.createListCalls)
	assert.Equal(t, 3, boards.createCardCalls, "one card per (list, card name) pair")

	require.NotNil(t, result.Board)
	assert.Equal(t, "ProjectX", result.Board.Name)
	assert.Len(t, result.Lists, 1)
	assert.Len(t, result.Cards, 3)

	assert.Contains(t, result.Answer, "I've created a new Trello board called 'ProjectX'")
	assert.Contains(t, result.Answer, "It includes the lists: Urgent.")
	assert.Contains(t, result.Answer, "It includes the cards: Red, Yellow, Green.")

	assert.Len(t, log.appended, 1, "one conversation stored per successful dispatch")
}

func TestDispatchCreateBoardCrossProduct(t *testing.T) {
	boards := &fakeBoards{}
	d := newTestDispatcher(boards, &fakeLLM{}, &fakeLog{})

	it := intent.Intent{
		ActionType: intent.ActionCreate,
		ObjectType: intent.ObjectBoard,
		Name:       "Work",
		Lists:      []string{"Todo", "Done"},
		Cards:      []string{"A", "B"},
	}

	result, err := d.Dispatch(context.Background(), it, "create board", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, boards.createCardCalls, "every card is attached to every list")
	assert.Len(t, result.Cards, 4)
}

func TestDispatchCreateBoardDefaultName(t *testing.T) {
	boards := &fakeBoards{}
	d := newTestDispatcher(boards, &fakeLLM{}, &fakeLog{})

	it := intent.Intent{ActionType: intent.ActionCreate, ObjectType: intent.ObjectBoard}

	result, err := d.Dispatch(context.Background(), it, "create a board", nil)
	require.NoError(t, err)
	assert.Equal(t, "Default", result.Board.Name)
	assert.Equal(t, 1, boards.createBoardCalls)
	assert.Equal(t, 0, boards.createListCalls, "no list markers, no list calls")
	assert.Equal(t, 0, boards.createCardCalls)
}

func TestDispatchCreateBoardFailure(t *testing.T) {
	boards := &fakeBoards{failBoard: errors.New("invalid token")}
	log := &fakeLog{}
	d := newTestDispatcher(boards, &fakeLLM{}, log)

	it := intent.Intent{
		ActionType: intent.ActionCreate,
		ObjectType: intent.ObjectBoard,
		Name:       "Work",
		Lists:      []string{"Todo"},
	}

	_, err := d.Dispatch(context.Background(), it, "create board", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create Trello board")
	assert.Equal(t, 0, boards.createListCalls, "no lists created after board failure")
	assert.Empty(t, log.appended, "failed dispatches are not stored")
}

func TestDispatchCreateListFailureAborts(t *testing.T) {
	boards := &fakeBoards{failList: errors.New("boom"), failListAfter: 1}
	d := newTestDispatcher(boards, &fakeLLM{}, &fakeLog{})

	it := intent.Intent{
		ActionType: intent.ActionCreate,
		ObjectType: intent.ObjectBoard,
		Name:       "Work",
		Lists:      []string{"Todo", "Doing", "Done"},
		Cards:      []string{"A"},
	}

	_, err := d.Dispatch(context.Background(), it, "create board", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create list")
	assert.Equal(t, 1, boards.createListCalls, "second list failed, third never attempted")
	assert.Equal(t, 0, boards.createCardCalls, "no cards after a list failure")
}

func TestDispatchDeleteBoard(t *testing.T) {
	boards := &fakeBoards{boards: []trello.Board{
		{ID: "b1", Name: "Keep"},
		{ID: "b2", Name: "projectx"},
	}}
	log := &fakeLog{}
	d := newTestDispatcher(boards, &fakeLLM{}, log)

	it := intent.Intent{ActionType: intent.ActionDelete, ObjectType: intent.ObjectBoard, Name: "ProjectX"}

	result, err := d.Dispatch(context.Background(), it, "delete board ProjectX", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, boards.deleteCalls, "name match is case-insensitive")
	assert.Equal(t, "ProjectX", result.DeletedBoardName)
	assert.Contains(t, result.Answer, "I've deleted the board called 'ProjectX'")
	assert.Len(t, log.appended, 1)
}

func TestDispatchDeleteBoardNoName(t *testing.T) {
	boards := &fakeBoards{}
	d := newTestDispatcher(boards, &fakeLLM{}, &fakeLog{})

	it := intent.Intent{ActionType: intent.ActionDelete, ObjectType: intent.ObjectBoard}

	_, err := d.Dispatch(context.Background(), it, "delete the board", nil)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "No board name provided. Please specify the board you want to delete.", verr.Message)
	assert.Equal(t, 0, boards.memberCalls, "rejected before any remote call")
	assert.Equal(t, 0, boards.deleteCalls)
}

func TestDispatchDeleteBoardNotFound(t *testing.T) {
	boards := &fakeBoards{boards: []trello.Board{{ID: "b1", Name: "Other"}}}
	d := newTestDispatcher(boards, &fakeLLM{}, &fakeLog{})

	it := intent.Intent{ActionType: intent.ActionDelete, ObjectType: intent.ObjectBoard, Name: "Missing"}

	_, err := d.Dispatch(context.Background(), it, "delete board Missing", nil)

	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Contains(t, nferr.Message, "Board 'Missing' not found")
	assert.Equal(t, 0, boards.deleteCalls)
}

func TestDispatchFallback(t *testing.T) {
	client := &fakeLLM{reply: "You can create or delete boards."}
	log := &fakeLog{}
	d := newTestDispatcher(&fakeBoards{}, client, log)

	it := intent.Intent{ActionType: intent.ActionUpdate, ObjectType: intent.ObjectCard}
	history := []string{"Q: hi\nA: hello"}

	result, err := d.Dispatch(context.Background(), it, "update my card somehow", history)
	require.NoError(t, err)

	assert.Equal(t, "You can create or delete boards.", result.Answer)
	assert.Contains(t, client.lastSystem, "Trello task management")
	assert.Contains(t, client.lastUser, "update my card somehow")
	assert.Contains(t, client.lastUser, "Q: hi")
	assert.Len(t, log.appended, 1)
}

func TestDispatchAppendFailureDoesNotFailRequest(t *testing.T) {
	log := &fakeLog{appendErr: errors.New("disk full")}
	d := newTestDispatcher(&fakeBoards{}, &fakeLLM{reply: "ok"}, log)

	it := intent.Intent{ActionType: intent.ActionUnknown, ObjectType: intent.ObjectUnknown}

	result, err := d.Dispatch(context.Background(), it, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Answer)
}

func TestHistory(t *testing.T) {
	log := &fakeLog{entries: []store.ConversationEntry{
		{Document: "Q: a\nA: b"},
		{Document: "Q: c\nA: d"},
	}}
	d := newTestDispatcher(&fakeBoards{}, &fakeLLM{}, log)

	got := d.History(context.Background(), "a")
	assert.Equal(t, []string{"Q: a\nA: b", "Q: c\nA: d"}, got)
}

func TestHistoryEmpty(t *testing.T) {
	d := newTestDispatcher(&fakeBoards{}, &fakeLLM{}, &fakeLog{})

	got := d.History(context.Background(), "anything")
	assert.Equal(t, []string{"No relevant past conversations found."}, got)
}

func TestHistoryQueryFailure(t *testing.T) {
	log := &fakeLog{queryErr: errors.New("db closed")}
	d := newTestDispatcher(&fakeBoards{}, &fakeLLM{}, log)

	got := d.History(context.Background(), "anything")
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], "Error retrieving past conversations:"))
}

func TestLegacyAsk(t *testing.T) {
	client := &fakeLLM{reply: "42"}
	log := &fakeLog{entries: []store.ConversationEntry{{Document: "Q: x\nA: y"}}}
	d := newTestDispatcher(&fakeBoards{}, client, log)

	answer, err := d.LegacyAsk(context.Background(), "what is the answer?")
	require.NoError(t, err)

	assert.Equal(t, "42", answer)
	assert.Contains(t, client.lastPrompt, "what is the answer?")
	assert.Contains(t, client.lastPrompt, "Q: x")
	assert.Contains(t, client.lastPrompt, "Step-by-step reasoning")
	assert.Len(t, log.appended, 1)
}
