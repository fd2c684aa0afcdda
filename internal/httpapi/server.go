// Package httpapi exposes the prompt pipeline and the Trello read
// pass-throughs over HTTP with JSON bodies.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"boardbot/internal/dispatch"
	"boardbot/internal/intent"
	"boardbot/internal/trello"

	"go.uber.org/zap"
)

// BoardReader is the subset of the Trello client the read endpoints call.
type BoardReader interface {
	MemberBoards(ctx context.Context) ([]trello.Board, error)
	BoardLists(ctx context.Context, boardID string) ([]trello.List, error)
	ListCards(ctx context.Context, listID string) ([]trello.Card, error)
	CardField(ctx context.Context, cardID, field string) (json.RawMessage, error)
}

// Server routes HTTP requests to the extractor, dispatcher, and board reader.
type Server struct {
	extractor  *intent.Extractor
	dispatcher *dispatch.Dispatcher
	boards     BoardReader
	logger     *zap.Logger
	mux        *http.ServeMux
}

// NewServer wires the routes and returns a ready handler.
func NewServer(extractor *intent.Extractor, dispatcher *dispatch.Dispatcher, boards BoardReader, logger *zap.Logger) *Server {
	s := &Server{
		extractor:  extractor,
		dispatcher: dispatcher,
		boards:     boards,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /prompt", s.handlePrompt)
	s.mux.HandleFunc("GET /ask", s.handleAsk)
	s.mux.HandleFunc("GET /getBoards", s.handleGetBoards)
	s.mux.HandleFunc("GET /getLists", s.handleGetLists)
	s.mux.HandleFunc("GET /getCards", s.handleGetCards)
	s.mux.HandleFunc("GET /getFields", s.handleGetFields)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Info("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("duration", time.Since(start)))
}

type promptRequest struct {
	Action string `json:"action"`
}

// handlePrompt runs the full pipeline: extract an intent from the request
// text, retrieve similar past conversations, then dispatch. Workflow errors
// come back as {"error": ...} payloads, not HTTP error statuses.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	action := strings.TrimSpace(req.Action)
	if action == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"error": "No action provided in the request.",
		})
		return
	}

	extracted := s.extractor.Extract(r.Context(), action)
	history := s.dispatcher.History(r.Context(), action)

	result, err := s.dispatcher.Dispatch(r.Context(), extracted, action, history)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"error": err.Error()})
		return
	}

	switch {
	case result.Board != nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"answer": result.Answer,
			"board":  result.Board,
			"lists":  result.Lists,
			"cards":  result.Cards,
		})
	case result.DeletedBoardName != "":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"answer":             result.Answer,
			"deleted_board_name": result.DeletedBoardName,
			"extracted_info":     extracted,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"answer":         result.Answer,
			"extracted_info": extracted,
		})
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")
	if question == "" {
		badRequest(w, "question is required")
		return
	}

	answer, err := s.dispatcher.LegacyAsk(r.Context(), question)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"answer": answer})
}

func (s *Server) handleGetBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.boards.MemberBoards(r.Context())
	if err != nil {
		s.fetchError(w, "Failed to fetch Trello boards", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"boards": boards})
}

func (s *Server) handleGetLists(w http.ResponseWriter, r *http.Request) {
	boardID := r.URL.Query().Get("board_id")
	if boardID == "" {
		badRequest(w, "board_id is required")
		return
	}

	lists, err := s.boards.BoardLists(r.Context(), boardID)
	if err != nil {
		s.fetchError(w, "Failed to fetch Trello lists", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lists": lists})
}

func (s *Server) handleGetCards(w http.ResponseWriter, r *http.Request) {
	listID := r.URL.Query().Get("list_id")
	if listID == "" {
		badRequest(w, "list_id is required")
		return
	}

	cards, err := s.boards.ListCards(r.Context(), listID)
	if err != nil {
		s.fetchError(w, "Failed to fetch Trello cards", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cards": cards})
}

func (s *Server) handleGetFields(w http.ResponseWriter, r *http.Request) {
	cardID := r.URL.Query().Get("id")
	field := r.URL.Query().Get("field")
	if cardID == "" || field == "" {
		badRequest(w, "id and field are required")
		return
	}

	value, err := s.boards.CardField(r.Context(), cardID, field)
	if err != nil {
		s.fetchError(w, "Failed to fetch Trello fields", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fields": value})
}

// fetchError reports a failed Trello read. Upstream rejections carry their
// status code in the body; transport failures become a 502.
func (s *Server) fetchError(w http.ResponseWriter, message string, err error) {
	var apiErr *trello.APIError
	if errors.As(err, &apiErr) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"error":       message,
			"status_code": apiErr.StatusCode,
		})
		return
	}
	s.logger.Error("trello request failed", zap.Error(err))
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": message})
}
