// Package dispatch routes extracted intents to the board service workflows:
// create board (with optional lists and cards), delete board, or a
// conversational fallback. Every successful dispatch appends one record to
// the conversation store.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"boardbot/internal/intent"
	"boardbot/internal/llm"
	"boardbot/internal/store"
	"boardbot/internal/trello"

	"go.uber.org/zap"
)

// BoardService is the subset of the Trello client the dispatcher calls.
type BoardService interface {
	CreateBoard(ctx context.Context, name, desc string) (trello.Board, error)
	MemberBoards(ctx context.Context) ([]trello.Board, error)
	DeleteBoard(ctx context.Context, boardID string) error
	CreateList(ctx context.Context, boardID, name string) (trello.List, error)
	CreateCard(ctx context.Context, listID, name string) (trello.Card, error)
}

// ConversationLog is the subset of the conversation store the dispatcher uses.
type ConversationLog interface {
	Append(ctx context.Context, question, answer string, metadata map[string]interface{}) (string, error)
	Query(ctx context.Context, text string, limit int) ([]store.ConversationEntry, error)
}

// ValidationError is a request rejected before any remote call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError is a request naming a board that does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// Result is the outcome of a successful dispatch.
type Result struct {
	Answer           string
	Board            *trello.Board
	Lists            []trello.List
	Cards            []trello.Card
	DeletedBoardName string
}

// Dispatcher executes the workflow selected by an intent.
type Dispatcher struct {
	boards             BoardService
	client             llm.Client
	log                ConversationLog
	historyLimit       int
	legacyHistoryLimit int
	logger             *zap.Logger
}

// New creates a dispatcher.
func New(boards BoardService, client llm.Client, log ConversationLog, historyLimit, legacyHistoryLimit int, logger *zap.Logger) *Dispatcher {
	if historyLimit <= 0 {
		historyLimit = 5
	}
	if legacyHistoryLimit <= 0 {
		legacyHistoryLimit = 50
	}
	return &Dispatcher{
		boards:             boards,
		client:             client,
		log:                log,
		historyLimit:       historyLimit,
		legacyHistoryLimit: legacyHistoryLimit,
		logger:             logger,
	}
}

// History fetches the most similar past conversations for context. A query
// failure degrades to a placeholder entry; it never fails the request.
func (d *Dispatcher) History(ctx context.Context, text string) []string {
	return d.history(ctx, text, d.historyLimit)
}

func (d *Dispatcher) history(ctx context.Context, text string, limit int) []string {
	entries, err := d.log.Query(ctx, text, limit)
	if err != nil {
		d.logger.Warn("failed to retrieve past conversations", zap.Error(err))
		return []string{fmt.Sprintf("Error retrieving past conversations: %v", err)}
	}
	if len(entries) == 0 {
		return []string{"No relevant past conversations found."}
	}

	docs := make([]string, len(entries))
	for i, e := range entries {
		docs[i] = e.Document
	}
	return docs
}

// Dispatch routes an intent to its workflow. Create and delete act on the
// board service; everything else falls back to a conversational reply built
// over the retrieved history.
func (d *Dispatcher) Dispatch(ctx context.Context, it intent.Intent, rawText string, history []string) (Result, error) {
	var result Result
	var err error

	switch {
	case it.ActionType == intent.ActionCreate && it.ObjectType == intent.ObjectBoard:
		result, err = d.createBoard(ctx, it)
	case it.ActionType == intent.ActionDelete && it.ObjectType == intent.ObjectBoard:
		result, err = d.deleteBoard(ctx, it)
	default:
		result, err = d.fallback(ctx, rawText, history)
	}

	if err != nil {
		return Result{}, err
	}

	d.logConversation(ctx, rawText, result.Answer)
	return result, nil
}

// createBoard creates a board, then one list per extracted list name, then
// one card per (list, card name) pair. Any remote failure aborts the
// workflow; resources created so far are left in place.
func (d *Dispatcher) createBoard(ctx context.Context, it intent.Intent) (Result, error) {
	name := it.Name
	if name == "" {
		name = "Default"
	}

	board, err := d.boards.CreateBoard(ctx, name, it.Description)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create Trello board: %w", err)
	}
	d.logger.Info("created board", zap.String("board_id", board.ID), zap.String("name", board.Name))

	var createdLists []trello.List
	var createdCards []trello.Card

	for _, listName := range it.Lists {
		list, err := d.boards.CreateList(ctx, board.ID, listName)
		if err != nil {
			return Result{}, fmt.Errorf("failed to create list: %w", err)
		}
		createdLists = append(createdLists, list)
	}

	// Every card name is attached to every created list.
	for _, list := range createdLists {
		for _, cardName := range it.Cards {
			card, err := d.boards.CreateCard(ctx, list.ID, cardName)
			if err != nil {
				return Result{}, fmt.Errorf("failed to create card: %w", err)
			}
			createdCards = append(createdCards, card)
		}
	}

	var answer strings.Builder
	fmt.Fprintf(&answer, "I've created a new Trello board called '%s'", board.Name)
	if it.Description != "" {
		fmt.Fprintf(&answer, " with description: '%s'.", it.Description)
	}
	if len(createdLists) > 0 {
		names := make([]string, len(createdLists))
		for i, l := range createdLists {
			names[i] = l.Name
		}
		fmt.Fprintf(&answer, " It includes the lists: %s.", strings.Join(names, ", "))
	}
	if len(createdCards) > 0 {
		names := make([]string, len(createdCards))
		for i, c := range createdCards {
			names[i] = c.Name
		}
		fmt.Fprintf(&answer, " It includes the cards: %s.", strings.Join(names, ", "))
	}

	return Result{
		Answer: answer.String(),
		Board:  &board,
		Lists:  createdLists,
		Cards:  createdCards,
	}, nil
}

// deleteBoard resolves a board by name (case-insensitive, first match) and
// deletes it. A missing name is rejected before any remote call.
func (d *Dispatcher) deleteBoard(ctx context.Context, it intent.Intent) (Result, error) {
	if it.Name == "" {
		return Result{}, &ValidationError{Message: "No board name provided. Please specify the board you want to delete."}
	}

	boards, err := d.boards.MemberBoards(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to retrieve Trello boards: %w", err)
	}

	var boardID string
	for _, b := range boards {
		if strings.EqualFold(b.Name, it.Name) {
			boardID = b.ID
			break
		}
	}
	if boardID == "" {
		return Result{}, &NotFoundError{Message: fmt.Sprintf("Board '%s' not found in your Trello account.", it.Name)}
	}

	if err := d.boards.DeleteBoard(ctx, boardID); err != nil {
		return Result{}, fmt.Errorf("failed to delete Trello board: %w", err)
	}
	d.logger.Info("deleted board", zap.String("board_id", boardID), zap.String("name", it.Name))

	return Result{
		Answer:           fmt.Sprintf("I've deleted the board called '%s' from your account.", it.Name),
		DeletedBoardName: it.Name,
	}, nil
}

// fallback answers conversationally, grounded on the retrieved history.
// Covers update/list actions and anything the extractor could not place.
func (d *Dispatcher) fallback(ctx context.Context, rawText string, history []string) (Result, error) {
	systemPrompt := "You are a helpful assistant specialized in Trello task management."
	userPrompt := fmt.Sprintf(`Request: %s

Past conversations for context: %s

Based on this request related to Trello, provide a helpful response.
If the request appears to be asking for an action that's not implemented yet,
politely explain what capabilities are currently available.`, rawText, strings.Join(history, "\n"))

	answer, err := d.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Result{}, fmt.Errorf("failed to handle request: %w", err)
	}

	return Result{Answer: answer}, nil
}

// LegacyAsk is the original question/answer path: wide history retrieval,
// a reasoning scaffold prompt, one chat call, one store append.
func (d *Dispatcher) LegacyAsk(ctx context.Context, question string) (string, error) {
	history := d.history(ctx, question, d.legacyHistoryLimit)

	prompt := fmt.Sprintf(`Before answering, review relevant past conversations:
%s

If past conversations contain a similar question to "%s", use them to improve your answer.

Step-by-step reasoning:
1. What is the user asking?
2. What context do past conversations provide?
3. Does the question need a different response based on past interactions?
4. What is the most accurate and complete response?

Respond with only the final answer, without explanations of your thought process.

User question: %s`, strings.Join(history, "\n"), question, question)

	answer, err := d.client.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to answer question: %w", err)
	}

	d.logConversation(ctx, question, answer)
	return answer, nil
}

// logConversation appends the exchange to the conversation store.
// Failures only degrade future context; they never fail the request.
func (d *Dispatcher) logConversation(ctx context.Context, question, answer string) {
	if _, err := d.log.Append(ctx, question, answer, nil); err != nil {
		d.logger.Warn("failed to store conversation", zap.Error(err))
	}
}
