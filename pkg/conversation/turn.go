package conversation

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry of the conversation history.
type Turn struct {
	ID        string    `yaml:"id" json:"id"`
	Role      Role      `yaml:"role" json:"role"`
	Content   string    `yaml:"content" json:"content"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Round is the COT round that produced an assistant or tool turn, -1 otherwise.
	Round int `yaml:"round" json:"round"`
	// ToolName and ToolStatus are set on tool turns.
	ToolName   string `yaml:"tool_name,omitempty" json:"tool_name,omitempty"`
	ToolStatus string `yaml:"tool_status,omitempty" json:"tool_status,omitempty"`
}

func newTurn(role Role, content string, round int) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Round:     round,
	}
}

func NewUserTurn(content string) Turn {
	return newTurn(RoleUser, content, -1)
}

func NewSystemTurn(content string) Turn {
	return newTurn(RoleSystem, content, -1)
}

func NewAssistantTurn(content string, round int) Turn {
	return newTurn(RoleAssistant, content, round)
}

func NewToolTurn(toolName, status, content string, round int) Turn {
	t := newTurn(RoleTool, content, round)
	t.ToolName = toolName
	t.ToolStatus = status
	return t
}

// NewAlertTurn is a user-role turn injected by the loop during a round. It
// carries the round index so it is not counted as a new exchange.
func NewAlertTurn(content string, round int) Turn {
	return newTurn(RoleUser, content, round)
}
