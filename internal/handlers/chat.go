package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pencroft/chat-web-ui/internal/models"
	"github.com/pencroft/chat-web-ui/internal/session"
	"github.com/pencroft/chat-web-ui/internal/stream"
	"github.com/tmaxmax/go-sse"
)

type chat struct {
	ID    string
	Title string

	Active bool
}

type message struct {
	ID        string
	Role      string
	Content   template.HTML
	Timestamp time.Time

	StreamingState string
}

// SSE event types for real-time updates.
var (
	chatsSSEType    = sse.Type("chats")
	messagesSSEType = sse.Type("messages")
)

// HandleChatTurn processes chat submissions through HTTP POST requests. It accepts the user
// message through form data together with an optional "model_id" and targets the session's
// current conversation; with no conversation selected the backend creates one and assigns its id
// mid-stream.
//
// The user message is reflected back immediately; the assistant response streams to the browser
// afterwards through Server-Sent Events. A submission while another turn is streaming is rejected
// with 409 rather than queued, and an empty submission is rejected with 400 before any network
// call.
func (m Main) HandleChatTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	modelID := r.FormValue("model_id")

	// The turn outlives this request; the stream keeps being pumped after the response is
	// written, so it must not inherit the request context.
	seq, err := m.sess.Submit(context.Background(), msg, modelID)
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	case errors.Is(err, session.ErrTurnInFlight):
		http.Error(w, "A response is already streaming", http.StatusConflict)
		return
	case err != nil:
		m.logger.Error("Failed to submit message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	userContent, err := m.renderMarkdown(msg)
	if err != nil {
		m.logger.Error("Failed to render contents", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The placeholder id only anchors the browser's SSE subscription for this response; the
	// committed message gets its own provisional id inside the session.
	aiMsgID := uuid.New().String()

	go m.streamTurn(aiMsgID, seq)

	um := message{
		ID:             uuid.New().String(),
		Role:           "user",
		Content:        userContent,
		Timestamp:      time.Now(),
		StreamingState: "ended",
	}
	am := message{
		ID:             aiMsgID,
		Role:           "assistant",
		Timestamp:      time.Now(),
		StreamingState: "loading",
	}

	if err := m.templates.ExecuteTemplate(w, "user_message", um); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(w, "ai_message", am); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// streamTurn pumps one turn's snapshot sequence and republishes every growth of the assistant
// text to the subscribed browser. On a transport failure the partial text stays visible with an
// inline error annotation; nothing is committed for the failed attempt.
func (m Main) streamTurn(aiMsgID string, seq iter.Seq2[stream.Snapshot, error]) {
	// Ensure SSE connection cleanup on function exit
	defer func() {
		e := &sse.Message{Type: sse.Type("closeMessage")}
		e.AppendData("bye")
		_ = m.sseSrv.Publish(e)
	}()

	for snap, err := range seq {
		if err != nil {
			m.logger.Error("Error from chat stream", slog.String(errLoggerKey, err.Error()))
			m.publishMessage(aiMsgID, snap.Text+errorAnnotation(err))
			return
		}
		m.publishMessage(aiMsgID, snap.Text)
	}
}

func errorAnnotation(err error) string {
	return fmt.Sprintf("\n\n**Error:** %s", err.Error())
}

func (m Main) publishMessage(aiMsgID, content string) {
	html, err := m.renderMarkdown(content)
	if err != nil {
		m.logger.Error("Failed to render contents", slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{Type: messagesSSEType}
	msg.AppendData(string(html))
	if err := m.sseSrv.Publish(&msg, messageIDTopic(aiMsgID)); err != nil {
		m.logger.Error("Failed to publish message", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleNewChat creates an empty chat through the backend and switches the session to it.
func (m Main) HandleNewChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ch, err := m.backend.CreateChat(r.Context(), "New Chat")
	if err != nil {
		m.logger.Error("Failed to create chat", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := m.store.PutChat(r.Context(), ch); err != nil {
		m.logger.Error("Failed to mirror chat", slog.String(errLoggerKey, err.Error()))
	}
	if err := m.sess.SetConversation(ch.ID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	http.Redirect(w, r, "/?chat_id="+ch.ID, http.StatusSeeOther)
}

// HandleRenameChat updates a chat's title through the backend.
func (m Main) HandleRenameChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	chatID := r.FormValue("chat_id")
	title := r.FormValue("title")
	if chatID == "" || title == "" {
		http.Error(w, "chat_id and title are required", http.StatusBadRequest)
		return
	}

	if err := m.backend.RenameChat(r.Context(), chatID, title); err != nil {
		m.logger.Error("Failed to rename chat", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.store.PutChat(r.Context(), models.Chat{ID: chatID, Title: title, UpdatedAt: time.Now()}); err != nil {
		m.logger.Error("Failed to mirror chat title", slog.String(errLoggerKey, err.Error()))
	}

	http.Redirect(w, r, "/?chat_id="+chatID, http.StatusSeeOther)
}

// HandleDeleteChat deletes a chat and its messages through the backend.
func (m Main) HandleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	chatID := r.FormValue("chat_id")
	if chatID == "" {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	if err := m.backend.DeleteChat(r.Context(), chatID); err != nil {
		m.logger.Error("Failed to delete chat", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.store.DeleteChat(r.Context(), chatID); err != nil {
		m.logger.Error("Failed to remove mirrored chat", slog.String(errLoggerKey, err.Error()))
	}

	if m.sess.Conversation() == chatID {
		if err := m.sess.SetConversation(""); err != nil {
			m.logger.Error("Failed to reset conversation", slog.String(errLoggerKey, err.Error()))
		}
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
