// Package session coordinates a single chat turn from composing through streaming to settled.
package session

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pencroft/chat-web-ui/internal/models"
	"github.com/pencroft/chat-web-ui/internal/stream"
)

// State identifies where the session is in its turn lifecycle.
type State string

const (
	// StateIdle means the session is ready for a submission.
	StateIdle State = "idle"
	// StateSubmitting means a submission was accepted and the optimistic user message is being
	// recorded.
	StateSubmitting State = "submitting"
	// StateStreaming means the turn's event stream is being pumped.
	StateStreaming State = "streaming"
	// StateSettling means a finished turn's result is being committed to the message log.
	StateSettling State = "settling"
	// StateFailed means the in-flight turn ended in a transport failure.
	StateFailed State = "failed"
)

var (
	// ErrEmptyMessage is returned when a submission contains no text after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTurnInFlight is returned when a submission arrives while another turn is streaming.
	ErrTurnInFlight = errors.New("a turn is already in flight")
)

const errLoggerKey = "err"

// TurnOpener opens the one-directional event stream answering a single chat turn. An empty chatID
// asks the backend to create a new conversation; an empty modelID selects the backend's default
// model.
type TurnOpener interface {
	StreamTurn(ctx context.Context, content, chatID, modelID string) (io.ReadCloser, error)
}

// MessageLog is the append-only transcript owned by the surrounding UI layer. The session writes
// the optimistic user message into it at submission time and the final assistant message after a
// clean completion; a failed turn commits nothing.
type MessageLog interface {
	AppendMessage(ctx context.Context, chatID string, msg models.Message) error
}

// ChatList is the chat-list collaborator. It is notified once when a conversation acquires its
// identity and every time the backend assigns a title.
type ChatList interface {
	ConversationAssigned(ctx context.Context, chatID string, isNew bool)
	TitleAssigned(ctx context.Context, chatID, title string)
}

// Session is the per-turn state machine of one conversation. At most one turn is in flight at a
// time; a second submission while streaming is rejected rather than queued. All suspension happens
// at stream-read points, and the event stream of a turn is consumed strictly in arrival order.
type Session struct {
	backend TurnOpener
	log     MessageLog
	chats   ChatList
	logger  *slog.Logger

	mu             sync.Mutex
	state          State
	conversationID string
}

// New creates a Session for the conversation identified by conversationID. An empty
// conversationID starts a brand-new conversation whose identity the backend assigns during the
// first turn's stream.
func New(backend TurnOpener, log MessageLog, chats ChatList, conversationID string, logger *slog.Logger) *Session {
	return &Session{
		backend:        backend,
		log:            log,
		chats:          chats,
		logger:         logger.With(slog.String("module", "session")),
		state:          StateIdle,
		conversationID: conversationID,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conversation returns the conversation id the session currently targets, or an empty string for
// a conversation that has not been created yet.
func (s *Session) Conversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SetConversation switches the session to another conversation. Switching while a turn is in
// flight is rejected.
func (s *Session) SetConversation(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrTurnInFlight
	}
	s.conversationID = chatID
	return nil
}

// Submit starts one turn for the given user text. It validates the submission, appends the
// optimistic user message, and returns the lazy sequence of snapshots produced by pumping the
// turn's event stream. The sequence must be consumed until it is exhausted; each item re-renders
// the in-progress assistant text, and the last one is either the frozen final result or an
// errored snapshot preserving the partial text. Abandoning the sequence stops the read loop
// without signaling the backend.
func (s *Session) Submit(ctx context.Context, text, modelID string) (iter.Seq2[stream.Snapshot, error], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	s.state = StateSubmitting
	chatID := s.conversationID
	s.mu.Unlock()

	userMsg := models.Message{
		ID:        models.NewProvisionalID(),
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}

	// A brand-new conversation has nothing to file the message under yet; in that case the
	// append happens as soon as the server assigns an id mid-stream.
	userLogged := false
	if chatID != "" {
		s.appendMessage(ctx, chatID, userMsg)
		userLogged = true
	}

	return func(yield func(stream.Snapshot, error) bool) {
		defer s.setState(StateIdle)
		s.setState(StateStreaming)

		acc := stream.NewAccumulator(s.logger)

		body, err := s.backend.StreamTurn(ctx, text, chatID, modelID)
		if err != nil {
			s.setState(StateFailed)
			yield(acc.Fail(err), err)
			return
		}
		defer body.Close()

		for ev, err := range stream.Events(body) {
			if err != nil {
				s.setState(StateFailed)
				yield(acc.Fail(err), err)
				return
			}

			assigned := acc.Snapshot().ConversationID
			snap := acc.Apply(ev)

			if assigned == "" && snap.ConversationID != "" {
				s.mu.Lock()
				s.conversationID = snap.ConversationID
				s.mu.Unlock()

				s.chats.ConversationAssigned(ctx, snap.ConversationID, snap.IsNewConversation)
				if !userLogged {
					s.appendMessage(ctx, snap.ConversationID, userMsg)
					userLogged = true
				}
			}
			if ev.Title != nil && snap.ConversationID != "" {
				s.chats.TitleAssigned(ctx, snap.ConversationID, *ev.Title)
			}

			if !yield(snap, nil) {
				// The consumer walked away; the read loop simply stops being pumped.
				return
			}
		}

		s.setState(StateSettling)
		final := acc.Finish()

		convID := final.ConversationID
		if convID == "" {
			convID = chatID
		}
		if convID == "" {
			s.logger.Warn("Completed turn carries no conversation id; dropping assistant message")
		} else {
			s.appendMessage(ctx, convID, models.Message{
				ID:        models.NewProvisionalID(),
				Role:      models.RoleAssistant,
				Content:   final.Text,
				CreatedAt: time.Now(),
			})
		}

		yield(final, nil)
	}, nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) appendMessage(ctx context.Context, chatID string, msg models.Message) {
	if err := s.log.AppendMessage(ctx, chatID, msg); err != nil {
		s.logger.Error("Failed to append message",
			slog.String("chatID", chatID),
			slog.String("role", string(msg.Role)),
			slog.String(errLoggerKey, err.Error()))
	}
}
