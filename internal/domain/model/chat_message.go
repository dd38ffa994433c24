package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const tempIDPrefix = "tmp_"

// ChatMessage is one transcript entry. Content is mutable while the
// assistant reply streams in.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ImageURLs []string  `json:"imageUrls,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Pending   bool      `json:"pending,omitempty"`
}

// NewTempID returns a client-side correlation id for an optimistic message.
func NewTempID() string {
	return tempIDPrefix + strings.ToLower(ulid.Make().String())
}

func IsTempID(id string) bool { return strings.HasPrefix(id, tempIDPrefix) }
