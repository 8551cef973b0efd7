package models

import "time"

// Memory is a stored user fact the backend injects into future conversations. Disabled memories
// are kept but not used.
type Memory struct {
	ID        string    `json:"memory_id"`
	Content   string    `json:"content"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelConfig is a named model configuration managed by the backend. At most one configuration is
// the default; a turn submitted without an explicit model selector falls back to it server-side.
type ModelConfig struct {
	ID          string  `json:"config_id"`
	Name        string  `json:"name"`
	ModelID     string  `json:"model_id"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Default     bool    `json:"is_default"`
}
