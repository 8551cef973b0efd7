package stream

import (
	"log/slog"
	"strings"
)

// Status describes where a turn is in its lifecycle.
type Status string

const (
	// StatusPending means no frame has been folded yet.
	StatusPending Status = "pending"
	// StatusStreaming means at least one frame has been folded and the turn is still open.
	StatusStreaming Status = "streaming"
	// StatusCompleted means the turn finished cleanly and the snapshot is frozen.
	StatusCompleted Status = "completed"
	// StatusErrored means the turn failed before completion; the partial text is preserved.
	StatusErrored Status = "errored"
)

// Snapshot is the state of one turn after folding a prefix of its frames. A new snapshot is
// emitted after every frame so the UI can re-render the in-progress assistant text.
type Snapshot struct {
	ConversationID    string
	IsNewConversation bool
	Title             string
	Text              string
	Status            Status

	// Err is set when Status is StatusErrored.
	Err error
}

// Accumulator folds decoded frames into a turn snapshot. The fold is strictly order-preserving:
// content fragments only ever extend the text, the conversation id is assigned at most once, and
// the last title before completion wins. Frames arriving after a terminal status are ignored.
type Accumulator struct {
	snap   Snapshot
	text   strings.Builder
	logger *slog.Logger
}

// NewAccumulator creates an Accumulator for a single turn.
func NewAccumulator(logger *slog.Logger) *Accumulator {
	return &Accumulator{
		snap:   Snapshot{Status: StatusPending},
		logger: logger.With(slog.String("module", "stream")),
	}
}

// Apply folds one frame and returns the updated snapshot.
func (a *Accumulator) Apply(ev Event) Snapshot {
	if a.terminal() {
		a.logger.Warn("Ignoring frame after terminal status",
			slog.String("status", string(a.snap.Status)))
		return a.Snapshot()
	}

	a.snap.Status = StatusStreaming

	if ev.Malformed != "" {
		a.logger.Warn("Skipping malformed frame", slog.String("raw", ev.Malformed))
		return a.Snapshot()
	}

	if ev.ChatID != nil {
		switch {
		case a.snap.ConversationID == "":
			a.snap.ConversationID = *ev.ChatID
			a.snap.IsNewConversation = ev.IsNew
		case a.snap.ConversationID != *ev.ChatID:
			// First assignment wins.
			a.logger.Warn("Ignoring conversation id reassignment",
				slog.String("assigned", a.snap.ConversationID),
				slog.String("rejected", *ev.ChatID))
		}
	}
	if ev.Content != nil {
		a.text.WriteString(*ev.Content)
	}
	if ev.Title != nil {
		a.snap.Title = *ev.Title
	}

	return a.Snapshot()
}

// Finish freezes the snapshot as the turn's final result.
func (a *Accumulator) Finish() Snapshot {
	if !a.terminal() {
		a.snap.Status = StatusCompleted
	}
	return a.Snapshot()
}

// Fail marks the turn errored. Whatever text already arrived stays in the snapshot so the user
// retains the partial response.
func (a *Accumulator) Fail(err error) Snapshot {
	if !a.terminal() {
		a.snap.Status = StatusErrored
		a.snap.Err = err
	}
	return a.Snapshot()
}

// Snapshot returns the current fold state without modifying it.
func (a *Accumulator) Snapshot() Snapshot {
	snap := a.snap
	snap.Text = a.text.String()
	return snap
}

func (a *Accumulator) terminal() bool {
	return a.snap.Status == StatusCompleted || a.snap.Status == StatusErrored
}
