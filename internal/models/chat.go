package models

import "time"

// Chat represents a conversation container in the chat system. The ID is assigned by the backend
// service; a chat that has not completed its first turn has no identity yet and is represented by
// an empty ID.
type Chat struct {
	ID        string    `json:"chat_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents an individual communication entry within a chat. Messages are immutable once
// appended to a transcript; the ID may be provisional until the authoritative log is refetched
// from the backend.
type Message struct {
	ID        string    `json:"message_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message submitted by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the assistant.
	RoleAssistant Role = "assistant"
)
