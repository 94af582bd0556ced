// Package tutor implements the AI tutor chat: persisted history, custom instructions and the
// completers that produce model turns.
package tutor

import (
	"context"
	"time"
)

// Role is the author of a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is one turn of the tutor conversation.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Completer produces the next model turn for a conversation.
type Completer interface {
	Name() string
	Complete(ctx context.Context, messages []ChatMessage) (ChatMessage, error)
}

// Validator is implemented by completers that can check their credentials.
type Validator interface {
	Validate(ctx context.Context) error
}
