package types

import "time"

// Role represents the role of a message participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a conversation message in the supervisor workflow.
// The message log is append-only; the only removal is the evaluator-message
// scrub performed at turn termination.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates an assistant message attributed to the named
// agent.
func NewAssistantMessage(name, content string) Message {
	return Message{Role: RoleAssistant, Content: content, Name: name, Timestamp: time.Now()}
}

// NewToolMessage creates a tool message (handoff markers and similar
// workflow bookkeeping).
func NewToolMessage(name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, Timestamp: time.Now()}
}
