// Package gateway is the authoritative mutation path: a JSON REST client for
// cards, columns, projects, chat history and auth. Every mutating card request
// carries the caller's last-known version as clientVersion; the server accepts
// only when it matches and answers a stale submission with 409 plus its
// current state. Failures come back classified, never string-matched.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Nikita-812/WebProject/internal/errkind"
	"github.com/Nikita-812/WebProject/internal/models"
)

// Client talks to the REST API. The zero timeout defaults to 30 s.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewClient builds a gateway client for the given base URL, e.g.
// "http://localhost:8000/api/v1".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken attaches the bearer credential to subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// do runs one round trip. A request that cannot complete is a transport
// failure; non-2xx statuses are mapped onto the error taxonomy.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errkind.New(errkind.KindTransport, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// statusError maps a non-2xx response to a classified error. 409 carries the
// server's version and state in its detail body.
func (c *Client) statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	_ = json.Unmarshal(data, &envelope)

	switch resp.StatusCode {
	case http.StatusConflict:
		var conflict ConflictError
		if err := json.Unmarshal(envelope.Detail, &conflict); err != nil {
			return errkind.Newf(errkind.KindVersionConflict, op, "conflict with unreadable detail: %s", data)
		}
		return errkind.New(errkind.KindVersionConflict, op, &conflict)
	case http.StatusNotFound:
		return errkind.Newf(errkind.KindNotFound, op, "%s", detailText(envelope.Detail, data))
	default:
		return errkind.Newf(errkind.KindRemote, op, "status %d: %s", resp.StatusCode, detailText(envelope.Detail, data))
	}
}

func detailText(detail json.RawMessage, fallback []byte) string {
	var text string
	if err := json.Unmarshal(detail, &text); err == nil && text != "" {
		return text
	}
	return string(fallback)
}

// --- auth ---

// LoginRequest is the credential pair for /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Login exchanges credentials for a bearer token and attaches it to the client.
func (c *Client) Login(ctx context.Context, req LoginRequest) (models.AuthResponse, error) {
	var auth models.AuthResponse
	if err := c.do(ctx, "auth.login", http.MethodPost, "/auth/login", req, &auth); err != nil {
		return models.AuthResponse{}, err
	}
	c.token = auth.AccessToken
	return auth, nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (models.AuthResponse, error) {
	var auth models.AuthResponse
	if err := c.do(ctx, "auth.register", http.MethodPost, "/auth/register", req, &auth); err != nil {
		return models.AuthResponse{}, err
	}
	c.token = auth.AccessToken
	return auth, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var user models.User
	err := c.do(ctx, "auth.me", http.MethodGet, "/me", nil, &user)
	return user, err
}

// --- projects ---

// Projects lists the user's projects.
func (c *Client) Projects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	err := c.do(ctx, "projects.list", http.MethodGet, "/projects", nil, &projects)
	return projects, err
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, name string) (models.Project, error) {
	var project models.Project
	err := c.do(ctx, "projects.create", http.MethodPost, "/projects", map[string]string{"name": name}, &project)
	return project, err
}

// Project fetches one project.
func (c *Client) Project(ctx context.Context, projectID uuid.UUID) (models.Project, error) {
	var project models.Project
	err := c.do(ctx, "projects.get", http.MethodGet, "/projects/"+projectID.String(), nil, &project)
	return project, err
}

// Board fetches the full board snapshot used to hydrate a session.
func (c *Client) Board(ctx context.Context, projectID uuid.UUID) (models.BoardSnapshot, error) {
	var snapshot models.BoardSnapshot
	err := c.do(ctx, "board.get", http.MethodGet, "/projects/"+projectID.String()+"/board", nil, &snapshot)
	return snapshot, err
}

// Messages fetches the room's chat history, newest last.
func (c *Client) Messages(ctx context.Context, projectID uuid.UUID, limit int) ([]models.Message, error) {
	endpoint := fmt.Sprintf("/projects/%s/messages?limit=%d", projectID, limit)
	var messages []models.Message
	err := c.do(ctx, "messages.list", http.MethodGet, endpoint, nil, &messages)
	return messages, err
}

// --- columns ---

// CreateColumnRequest creates a column on a board.
type CreateColumnRequest struct {
	BoardID uuid.UUID `json:"board_id"`
	Name    string    `json:"name"`
	Order   *int      `json:"order,omitempty"`
}

// UpdateColumnRequest renames or reorders a column.
type UpdateColumnRequest struct {
	Name  *string `json:"name,omitempty"`
	Order *int    `json:"order,omitempty"`
}

// CreateColumn creates a column.
func (c *Client) CreateColumn(ctx context.Context, req CreateColumnRequest) (models.Column, error) {
	var column models.Column
	err := c.do(ctx, "columns.create", http.MethodPost, "/columns", req, &column)
	return column, err
}

// UpdateColumn patches a column.
func (c *Client) UpdateColumn(ctx context.Context, columnID uuid.UUID, req UpdateColumnRequest) (models.Column, error) {
	var column models.Column
	err := c.do(ctx, "columns.update", http.MethodPatch, "/columns/"+columnID.String(), req, &column)
	return column, err
}

// DeleteColumn deletes a column; the server cascades to its cards.
func (c *Client) DeleteColumn(ctx context.Context, columnID uuid.UUID) error {
	return c.do(ctx, "columns.delete", http.MethodDelete, "/columns/"+columnID.String(), nil, nil)
}

// --- cards ---

// CreateCardRequest creates a card in a column.
type CreateCardRequest struct {
	ProjectID   uuid.UUID            `json:"project_id"`
	ColumnID    uuid.UUID            `json:"column_id"`
	Title       string               `json:"title"`
	Description *string              `json:"description,omitempty"`
	Labels      []string             `json:"labels,omitempty"`
	Assignees   []string             `json:"assignees,omitempty"`
	Priority    *models.CardPriority `json:"priority,omitempty"`
	DueDate     *string              `json:"due_date,omitempty"`
	Position    *float64             `json:"position,omitempty"`
}

// CardPatch is a partial card update. Nil fields are left untouched.
type CardPatch struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	Labels      []string             `json:"labels,omitempty"`
	Assignees   []string             `json:"assignees,omitempty"`
	Priority    *models.CardPriority `json:"priority,omitempty"`
	DueDate     *string              `json:"due_date,omitempty"`
}

// cardUpdateRequest is the wire body for PATCH /cards/{id}.
type cardUpdateRequest struct {
	CardPatch
	ClientVersion int `json:"clientVersion"`
}

// MoveCardRequest is the wire body for POST /cards/{id}/move.
type MoveCardRequest struct {
	ID            uuid.UUID `json:"id"`
	FromColumnID  uuid.UUID `json:"fromColumnId"`
	ToColumnID    uuid.UUID `json:"toColumnId"`
	Position      float64   `json:"position"`
	ClientVersion int       `json:"clientVersion"`
}

// CreateCard creates a card and returns the canonical record.
func (c *Client) CreateCard(ctx context.Context, req CreateCardRequest) (models.Card, error) {
	var card models.Card
	err := c.do(ctx, "cards.create", http.MethodPost, "/cards", req, &card)
	return card, err
}

// Card fetches the canonical card by id.
func (c *Client) Card(ctx context.Context, cardID uuid.UUID) (models.Card, error) {
	var card models.Card
	err := c.do(ctx, "cards.get", http.MethodGet, "/cards/"+cardID.String(), nil, &card)
	return card, err
}

// UpdateCard patches a card, gated on clientVersion.
func (c *Client) UpdateCard(ctx context.Context, cardID uuid.UUID, patch CardPatch, clientVersion int) (models.Card, error) {
	var card models.Card
	body := cardUpdateRequest{CardPatch: patch, ClientVersion: clientVersion}
	err := c.do(ctx, "cards.update", http.MethodPatch, "/cards/"+cardID.String(), body, &card)
	return card, err
}

// MoveCard moves a card between columns, gated on clientVersion.
func (c *Client) MoveCard(ctx context.Context, req MoveCardRequest) (models.Card, error) {
	var card models.Card
	err := c.do(ctx, "cards.move", http.MethodPost, "/cards/"+req.ID.String()+"/move", req, &card)
	return card, err
}

// DeleteCard deletes a card.
func (c *Client) DeleteCard(ctx context.Context, cardID uuid.UUID) error {
	return c.do(ctx, "cards.delete", http.MethodDelete, "/cards/"+cardID.String(), nil, nil)
}
