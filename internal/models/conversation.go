package models

import (
	"time"
)

// Role is a chat message role on the normalized wire format.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three allowed roles.
func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// ChatMessage is the normalized message shape sent to providers.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationMessage is one entry in a user's chat history. History is
// append-only; messages are immutable once created.
type ConversationMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
