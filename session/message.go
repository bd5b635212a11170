package session

// ThreadID names a durable conversation context held by the remote agent service.
type ThreadID string

// NoThread marks a turn that must not read or persist any conversation history.
const NoThread ThreadID = ""

// DefaultAssistantID is the assistant targeted when none is configured.
const DefaultAssistantID = "agent"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message type tags used by LangGraph-style services in place of a role.
const (
	TypeHuman = "human"
	TypeAI    = "ai"
	TypeTool  = "tool"
)

// Message is one transcript entry as exchanged with the agent service.
type Message struct {
	ID      string  `json:"id,omitempty"`
	Role    Role    `json:"role,omitempty"`
	Type    string  `json:"type,omitempty"`
	Name    string  `json:"name,omitempty"`
	Content Content `json:"content"`
}

// UserMessage builds the single input message of a turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: TextContent(text)}
}

// IsAssistant reports whether the message was authored by the agent.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant || m.Type == TypeAI
}

// IsUser reports whether the message was authored by the caller.
func (m Message) IsUser() bool {
	return m.Role == RoleUser || m.Type == TypeHuman
}

// Values is a full conversation state snapshot.
type Values struct {
	Messages []Message `json:"messages"`
}

// LastMessage returns the final message of the snapshot.
func (v Values) LastMessage() (Message, bool) {
	if len(v.Messages) == 0 {
		return Message{}, false
	}
	return v.Messages[len(v.Messages)-1], true
}

// LastReply returns the most recent agent-authored message written after
// the latest user message. Replies to earlier turns are never returned.
func (v Values) LastReply() (Message, bool) {
	for i := len(v.Messages) - 1; i >= 0; i-- {
		switch message := v.Messages[i]; {
		case message.IsAssistant():
			return message, true
		case message.IsUser():
			return Message{}, false
		}
	}
	return Message{}, false
}

// ThreadState is the accumulated state of a thread.
type ThreadState struct {
	ThreadID ThreadID `json:"thread_id,omitempty"`
	Values   Values   `json:"values"`
}

// TurnInput carries the new messages submitted by a turn.
type TurnInput struct {
	Messages []Message `json:"messages"`
}

// TurnRequest is one turn submission against the agent service.
type TurnRequest struct {
	ThreadID    ThreadID
	AssistantID string
	Input       TurnInput
	StreamMode  StreamMode
}

// CloneMessages returns copies of all messages, including their content parts.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i := range in {
		out[i] = in[i]
		out[i].Content = in[i].Content.clone()
	}
	return out
}

// Assistant describes an agent graph exposed by the service.
type Assistant struct {
	AssistantID string `json:"assistant_id" yaml:"assistant_id"`
	GraphID     string `json:"graph_id,omitempty" yaml:"graph_id,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
}
