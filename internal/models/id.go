package models

import (
	"strings"

	"github.com/google/uuid"
)

// provisionalIDPrefix tags locally generated identifiers so they can never be confused with
// identifiers issued by the backend.
const provisionalIDPrefix = "local-"

// NewProvisionalID returns a locally generated placeholder identifier for a message whose
// server-side identity is not known. The authoritative identifiers live in the backend's log and
// replace provisional ones on the next full refetch.
func NewProvisionalID() string {
	return provisionalIDPrefix + uuid.New().String()
}

// IsProvisionalID reports whether id was generated locally by NewProvisionalID.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalIDPrefix)
}
