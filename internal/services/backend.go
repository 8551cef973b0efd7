package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pencroft/chat-web-ui/internal/models"
)

// Backend is the client for the hosted chat API. It covers the streaming chat turn plus the plain
// request/response endpoints for chats, memories, and model configurations.
type Backend struct {
	baseURL string

	client *http.Client

	logger *slog.Logger
}

// APIError is a non-success response from the backend. Detail carries the human-readable detail
// field of the JSON error body when one is present.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Detail)
}

type turnRequest struct {
	Content string  `json:"content"`
	ChatID  *string `json:"chatId"`
	ModelID *string `json:"modelId"`
}

type chatListResponse struct {
	Chats []models.Chat `json:"chats"`
}

type chatDetailResponse struct {
	models.Chat
	Messages []models.Message `json:"messages"`
}

type memoryListResponse struct {
	Memories []models.Memory `json:"memories"`
}

type modelListResponse struct {
	Models []models.ModelConfig `json:"models"`
}

// NewBackend creates a Backend instance talking to the API rooted at baseURL.
func NewBackend(baseURL string, logger *slog.Logger) Backend {
	return Backend{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "backend")),
	}
}

// StreamTurn submits one chat turn and returns the raw byte stream of the incremental response.
// An empty chatID asks the backend to create a new conversation; an empty modelID selects the
// server default. The caller owns the returned body and must close it; a non-success status is
// turned into an *APIError before any stream byte is handed out.
func (b Backend) StreamTurn(ctx context.Context, content, chatID, modelID string) (io.ReadCloser, error) {
	reqBody := turnRequest{Content: content}
	if chatID != "" {
		reqBody.ChatID = &chatID
	}
	if modelID != "" {
		reqBody.ModelID = &modelID
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/chat-turn", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		return nil, b.apiError(resp)
	}

	return resp.Body, nil
}

// Chats retrieves the chat list, most recently updated first.
func (b Backend) Chats(ctx context.Context) ([]models.Chat, error) {
	var res chatListResponse
	if err := b.doJSON(ctx, http.MethodGet, "/chats", nil, &res); err != nil {
		return nil, err
	}
	return res.Chats, nil
}

// Chat retrieves one chat with its authoritative message log.
func (b Backend) Chat(ctx context.Context, chatID string) (models.Chat, []models.Message, error) {
	var res chatDetailResponse
	if err := b.doJSON(ctx, http.MethodGet, "/chats/"+chatID, nil, &res); err != nil {
		return models.Chat{}, nil, err
	}
	return res.Chat, res.Messages, nil
}

// CreateChat creates an empty chat with the given title.
func (b Backend) CreateChat(ctx context.Context, title string) (models.Chat, error) {
	var res models.Chat
	body := map[string]string{"title": title}
	if err := b.doJSON(ctx, http.MethodPost, "/chats", body, &res); err != nil {
		return models.Chat{}, err
	}
	return res, nil
}

// RenameChat updates a chat's title.
func (b Backend) RenameChat(ctx context.Context, chatID, title string) error {
	body := map[string]string{"title": title}
	return b.doJSON(ctx, http.MethodPatch, "/chats/"+chatID, body, nil)
}

// DeleteChat deletes a chat and its messages.
func (b Backend) DeleteChat(ctx context.Context, chatID string) error {
	return b.doJSON(ctx, http.MethodDelete, "/chats/"+chatID, nil, nil)
}

// Memories retrieves all stored user facts, including disabled ones.
func (b Backend) Memories(ctx context.Context) ([]models.Memory, error) {
	var res memoryListResponse
	if err := b.doJSON(ctx, http.MethodGet, "/memories", nil, &res); err != nil {
		return nil, err
	}
	return res.Memories, nil
}

// AddMemory stores a new user fact.
func (b Backend) AddMemory(ctx context.Context, content string) (models.Memory, error) {
	var res models.Memory
	body := map[string]string{"content": content}
	if err := b.doJSON(ctx, http.MethodPost, "/memories", body, &res); err != nil {
		return models.Memory{}, err
	}
	return res, nil
}

// UpdateMemory updates a memory's content, enabled flag, or both. Nil fields are left untouched.
func (b Backend) UpdateMemory(ctx context.Context, memoryID string, content *string, enabled *bool) (models.Memory, error) {
	var res models.Memory
	body := map[string]any{}
	if content != nil {
		body["content"] = *content
	}
	if enabled != nil {
		body["enabled"] = *enabled
	}
	if err := b.doJSON(ctx, http.MethodPatch, "/memories/"+memoryID, body, &res); err != nil {
		return models.Memory{}, err
	}
	return res, nil
}

// DeleteMemory deletes a stored user fact.
func (b Backend) DeleteMemory(ctx context.Context, memoryID string) error {
	return b.doJSON(ctx, http.MethodDelete, "/memories/"+memoryID, nil, nil)
}

// Models retrieves all model configurations.
func (b Backend) Models(ctx context.Context) ([]models.ModelConfig, error) {
	var res modelListResponse
	if err := b.doJSON(ctx, http.MethodGet, "/models", nil, &res); err != nil {
		return nil, err
	}
	return res.Models, nil
}

// SaveModel creates or replaces a model configuration.
func (b Backend) SaveModel(ctx context.Context, cfg models.ModelConfig) (models.ModelConfig, error) {
	var res models.ModelConfig
	if err := b.doJSON(ctx, http.MethodPost, "/models", cfg, &res); err != nil {
		return models.ModelConfig{}, err
	}
	return res, nil
}

// DeleteModel deletes a model configuration.
func (b Backend) DeleteModel(ctx context.Context, configID string) error {
	return b.doJSON(ctx, http.MethodDelete, "/models/"+configID, nil, nil)
}

// SetDefaultModel marks a model configuration as the default.
func (b Backend) SetDefaultModel(ctx context.Context, configID string) error {
	return b.doJSON(ctx, http.MethodPost, "/models/"+configID+"/set-default", nil, nil)
}

func (b Backend) doJSON(ctx context.Context, method, path string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return b.apiError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func (b Backend) apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Detail: resp.Status}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		b.logger.Warn("Failed to read error body", slog.String(errLoggerKey, err.Error()))
		return apiErr
	}

	var errBody struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &errBody); err == nil && errBody.Detail != "" {
		apiErr.Detail = errBody.Detail
	}
	return apiErr
}
