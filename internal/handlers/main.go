package handlers

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	chatwebui "github.com/pencroft/chat-web-ui"
	"github.com/pencroft/chat-web-ui/internal/models"
	"github.com/pencroft/chat-web-ui/internal/session"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	highlighting "github.com/yuin/goldmark-highlighting"
)

// BackendAPI is the slice of the hosted chat API the UI layer consumes. Everything behind it is a
// fixed HTTP contract owned by the backend service.
type BackendAPI interface {
	session.TurnOpener

	Chats(ctx context.Context) ([]models.Chat, error)
	Chat(ctx context.Context, chatID string) (models.Chat, []models.Message, error)
	CreateChat(ctx context.Context, title string) (models.Chat, error)
	RenameChat(ctx context.Context, chatID, title string) error
	DeleteChat(ctx context.Context, chatID string) error

	Memories(ctx context.Context) ([]models.Memory, error)
	AddMemory(ctx context.Context, content string) (models.Memory, error)
	UpdateMemory(ctx context.Context, memoryID string, content *string, enabled *bool) (models.Memory, error)
	DeleteMemory(ctx context.Context, memoryID string) error

	Models(ctx context.Context) ([]models.ModelConfig, error)
	SaveModel(ctx context.Context, cfg models.ModelConfig) (models.ModelConfig, error)
	DeleteModel(ctx context.Context, configID string) error
	SetDefaultModel(ctx context.Context, configID string) error
}

// Store is the local transcript mirror owned by the UI layer. The session appends into it through
// the hooks on Main, and list/detail loads refresh it from the backend's authoritative log.
type Store interface {
	Chats(ctx context.Context) ([]models.Chat, error)
	PutChat(ctx context.Context, chat models.Chat) error
	DeleteChat(ctx context.Context, chatID string) error

	Messages(ctx context.Context, chatID string) ([]models.Message, error)
	AppendMessage(ctx context.Context, chatID string, message models.Message) error
	ReplaceMessages(ctx context.Context, chatID string, messages []models.Message) error
}

// Main handles the core functionality of the chat web UI, managing server-sent events, HTML
// templates, markdown rendering, and the conversation session that talks to the backend.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown

	backend BackendAPI
	store   Store
	sess    *session.Session

	logger *slog.Logger
}

const chatsSSETopic = "chats"

const errLoggerKey = "err"

// NewMain creates a new Main instance with the provided backend client and local store. It parses
// the embedded HTML templates, configures the markdown renderer, initializes the SSE server, and
// starts an idle conversation session.
func NewMain(backend BackendAPI, store Store, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		chatwebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	m := Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				// We start with default topics that all clients should subscribe to
				topics := []string{sse.DefaultTopic, chatsSSETopic}

				// We create a message-specific topic if the client requests updates for a particular message
				messageID := s.Req.URL.Query().Get("message_id")
				if messageID != "" {
					topics = append(topics, messageIDTopic(messageID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates: tmpl,
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(highlighting.WithStyle("monokai")),
			),
		),
		backend: backend,
		store:   store,
		logger:  logger.With(slog.String("module", "handlers")),
	}
	m.sess = session.New(backend, m, m, "", logger)

	return m, nil
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

// HandleSSE serves the server-sent-event subscriptions the browser uses for live chat-list and
// message updates.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to
// all connected clients and waits up to 5 seconds for connections to terminate. After the timeout,
// any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// AppendMessage implements session.MessageLog by appending into the local transcript mirror.
func (m Main) AppendMessage(ctx context.Context, chatID string, msg models.Message) error {
	return m.store.AppendMessage(ctx, chatID, msg)
}

// ConversationAssigned implements session.ChatList. A brand-new conversation is mirrored with a
// placeholder title and pushed to the browser's chat list right away; the real title follows once
// the backend assigns one.
func (m Main) ConversationAssigned(ctx context.Context, chatID string, isNew bool) {
	if !isNew {
		return
	}

	if err := m.store.PutChat(ctx, models.Chat{
		ID:        chatID,
		Title:     "New Chat",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}); err != nil {
		m.logger.Error("Failed to mirror new chat",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	m.publishChats(ctx, chatID)
}

// TitleAssigned implements session.ChatList by updating the mirrored title and refreshing the
// browser's chat list.
func (m Main) TitleAssigned(ctx context.Context, chatID, title string) {
	if err := m.store.PutChat(ctx, models.Chat{
		ID:        chatID,
		Title:     title,
		UpdatedAt: time.Now(),
	}); err != nil {
		m.logger.Error("Failed to mirror chat title",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	m.publishChats(ctx, chatID)
}

func (m Main) publishChats(ctx context.Context, activeID string) {
	divs, err := m.chatDivs(ctx, activeID)
	if err != nil {
		m.logger.Error("Failed to generate chat divs", slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{Type: chatsSSEType}
	msg.AppendData(divs)
	if err := m.sseSrv.Publish(&msg, chatsSSETopic); err != nil {
		m.logger.Error("Failed to publish chats", slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) chatDivs(ctx context.Context, activeID string) (string, error) {
	chats, err := m.store.Chats(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chats: %w", err)
	}

	var sb bytes.Buffer
	for _, ch := range chats {
		err := m.templates.ExecuteTemplate(&sb, "chat_title", chat{
			ID:     ch.ID,
			Title:  ch.Title,
			Active: ch.ID == activeID,
		})
		if err != nil {
			return "", fmt.Errorf("failed to execute chat_title template: %w", err)
		}
	}
	return sb.String(), nil
}

func (m Main) renderMarkdown(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := m.markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
