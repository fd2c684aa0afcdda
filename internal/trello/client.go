// Package trello is a minimal client for the Trello REST API covering the
// board/list/card operations boardbot dispatches to. Authentication uses the
// key/token query parameters Trello expects.
package trello

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"boardbot/internal/config"

	"go.uber.org/zap"
)

// APIError is a non-2xx response from the Trello API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trello API returned status %d: %s", e.StatusCode, e.Body)
}

// Client performs authenticated calls against the Trello REST API.
// Safe for concurrent use.
type Client struct {
	key        string
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Trello client from configuration.
func NewClient(cfg config.TrelloConfig, timeout time.Duration, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.trello.com/1"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		key:     cfg.APIKey,
		token:   cfg.Token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// do issues a request against path with the given query parameters (auth
// added), decoding a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.key)
	params.Set("token", c.token)

	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("trello call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// CreateBoard creates a board with the given name and optional description.
func (c *Client) CreateBoard(ctx context.Context, name, desc string) (Board, error) {
	params := url.Values{}
	params.Set("name", name)
	if desc != "" {
		params.Set("desc", desc)
	}

	var board Board
	if err := c.do(ctx, http.MethodPost, "/boards/", params, &board); err != nil {
		return Board{}, err
	}
	return board, nil
}

// MemberBoards fetches all boards for the authenticated member.
func (c *Client) MemberBoards(ctx context.Context) ([]Board, error) {
	var boards []Board
	if err := c.do(ctx, http.MethodGet, "/members/me/boards", nil, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// DeleteBoard deletes the board with the given id.
func (c *Client) DeleteBoard(ctx context.Context, boardID string) error {
	return c.do(ctx, http.MethodDelete, "/boards/"+boardID, nil, nil)
}

// BoardLists fetches all lists on a board.
func (c *Client) BoardLists(ctx context.Context, boardID string) ([]List, error) {
	var lists []List
	if err := c.do(ctx, http.MethodGet, "/boards/"+boardID+"/lists", nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// CreateList creates a list on a board.
func (c *Client) CreateList(ctx context.Context, boardID, name string) (List, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("idBoard", boardID)

	var list List
	if err := c.do(ctx, http.MethodPost, "/lists", params, &list); err != nil {
		return List{}, err
	}
	return list, nil
}

// ListCards fetches all cards on a list.
func (c *Client) ListCards(ctx context.Context, listID string) ([]Card, error) {
	var cards []Card
	if err := c.do(ctx, http.MethodGet, "/lists/"+listID+"/cards", nil, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// CreateCard creates a card on a list.
func (c *Client) CreateCard(ctx context.Context, listID, name string) (Card, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("idList", listID)

	var card Card
	if err := c.do(ctx, http.MethodPost, "/cards", params, &card); err != nil {
		return Card{}, err
	}
	return card, nil
}

// CardField fetches a single field of a card, e.g. "name" or "desc".
// The raw JSON is returned untouched so pass-through endpoints can relay it.
func (c *Client) CardField(ctx context.Context, cardID, field string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/cards/"+cardID+"/"+field, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
