package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pencroft/chat-web-ui/internal/models"
)

type homePageData struct {
	Chats         []chat
	CurrentChatID string
	CurrentTitle  string
	Messages      []message
	Models        []models.ModelConfig
}

// HandleHome renders the main chat page: the chat list, the transcript of the selected chat, and
// the model selector. List and detail loads refetch the authoritative state from the backend and
// refresh the local mirror; when the backend is unreachable the mirror is served instead so
// already-streamed transcripts stay visible.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chatID := r.URL.Query().Get("chat_id")
	if chatID != m.sess.Conversation() {
		if err := m.sess.SetConversation(chatID); err != nil {
			m.logger.Warn("Keeping current conversation while a turn is streaming",
				slog.String(errLoggerKey, err.Error()))
			chatID = m.sess.Conversation()
		}
	}

	chats := m.loadChats(ctx)

	data := homePageData{
		CurrentChatID: chatID,
		CurrentTitle:  "New Chat",
	}
	for _, ch := range chats {
		data.Chats = append(data.Chats, chat{
			ID:     ch.ID,
			Title:  ch.Title,
			Active: ch.ID == chatID,
		})
		if ch.ID == chatID {
			data.CurrentTitle = ch.Title
		}
	}

	if chatID != "" {
		for _, msg := range m.loadMessages(ctx, chatID) {
			content, err := m.renderMarkdown(msg.Content)
			if err != nil {
				m.logger.Error("Failed to render contents",
					slog.String("messageID", msg.ID),
					slog.String(errLoggerKey, err.Error()))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			data.Messages = append(data.Messages, message{
				ID:             msg.ID,
				Role:           string(msg.Role),
				Content:        content,
				Timestamp:      msg.CreatedAt,
				StreamingState: "ended",
			})
		}
	}

	configs, err := m.backend.Models(ctx)
	if err != nil {
		m.logger.Error("Failed to get model configs", slog.String(errLoggerKey, err.Error()))
	}
	data.Models = configs

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// loadChats refetches the chat list from the backend and refreshes the mirror, falling back to
// the mirror when the backend is unreachable.
func (m Main) loadChats(ctx context.Context) []models.Chat {
	chats, err := m.backend.Chats(ctx)
	if err != nil {
		m.logger.Error("Failed to get chats from backend; serving mirror",
			slog.String(errLoggerKey, err.Error()))

		mirrored, err := m.store.Chats(ctx)
		if err != nil {
			m.logger.Error("Failed to get mirrored chats", slog.String(errLoggerKey, err.Error()))
			return nil
		}
		return mirrored
	}

	for _, ch := range chats {
		if err := m.store.PutChat(ctx, ch); err != nil {
			m.logger.Error("Failed to mirror chat",
				slog.String("chatID", ch.ID),
				slog.String(errLoggerKey, err.Error()))
		}
	}
	return chats
}

// loadMessages refetches one chat's authoritative log and replaces the mirrored transcript,
// falling back to the mirror when the backend is unreachable.
func (m Main) loadMessages(ctx context.Context, chatID string) []models.Message {
	_, messages, err := m.backend.Chat(ctx, chatID)
	if err != nil {
		m.logger.Error("Failed to get messages from backend; serving mirror",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))

		mirrored, err := m.store.Messages(ctx, chatID)
		if err != nil {
			m.logger.Error("Failed to get mirrored messages", slog.String(errLoggerKey, err.Error()))
			return nil
		}
		return mirrored
	}

	if err := m.store.ReplaceMessages(ctx, chatID, messages); err != nil {
		m.logger.Error("Failed to refresh mirrored messages",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
	}
	return messages
}
