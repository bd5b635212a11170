package inmem

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Gurpartap/carecompanion/session"
)

// Agent produces the reply messages for one turn. transcript ends with the
// turn's user input and is owned by the agent.
type Agent interface {
	Respond(ctx context.Context, transcript []session.Message) ([]session.Message, error)
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx context.Context, transcript []session.Message) ([]session.Message, error)

func (f AgentFunc) Respond(ctx context.Context, transcript []session.Message) ([]session.Message, error) {
	return f(ctx, transcript)
}

// AssistantText builds an assistant reply with string content.
func AssistantText(text string) session.Message {
	return session.Message{
		Role:    session.RoleAssistant,
		Type:    session.TypeAI,
		Content: session.TextContent(text),
	}
}

// Reply configures one turn in a scripted sequence.
type Reply struct {
	Messages []session.Message
	Err      error
}

// ScriptedAgent replays a fixed sequence of replies, one per turn.
type ScriptedAgent struct {
	mu      sync.Mutex
	index   int
	replies []Reply
}

var _ Agent = (*ScriptedAgent)(nil)

func NewScriptedAgent(replies ...Reply) *ScriptedAgent {
	cloned := make([]Reply, len(replies))
	copy(cloned, replies)
	return &ScriptedAgent{replies: cloned}
}

func (a *ScriptedAgent) Respond(_ context.Context, _ []session.Message) ([]session.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.index >= len(a.replies) {
		return nil, fmt.Errorf("script exhausted at turn %d", a.index+1)
	}
	current := a.replies[a.index]
	a.index++
	if current.Err != nil {
		return nil, current.Err
	}
	return session.CloneMessages(current.Messages), nil
}

// EchoAgent repeats the latest user message.
type EchoAgent struct{}

func (EchoAgent) Respond(_ context.Context, transcript []session.Message) ([]session.Message, error) {
	text := ""
	if last, ok := lastUserText(transcript); ok {
		text = last
	}
	return []session.Message{AssistantText(text)}, nil
}

var (
	factPattern     = regexp.MustCompile(`(?i)\bmy ([a-z][a-z ]*?) is ([^,.!?;]+)`)
	questionPattern = regexp.MustCompile(`(?i)^\s*what(?: is|'s) my ([a-z][a-z ]*?)\s*\?*\s*$`)
)

// RecallAgent remembers "my X is Y" statements made earlier in the
// transcript and answers "what is my X?" from them. It sees only what the
// transcript carries, so it recalls nothing across threads or stateless turns.
type RecallAgent struct{}

func (RecallAgent) Respond(_ context.Context, transcript []session.Message) ([]session.Message, error) {
	latest, ok := lastUserText(transcript)
	if !ok {
		return []session.Message{AssistantText("Hello! How can I help you today?")}, nil
	}

	if match := questionPattern.FindStringSubmatch(latest); match != nil {
		key := normalizeKey(match[1])
		facts := collectFacts(transcript[:len(transcript)-1])
		if value, ok := facts[key]; ok {
			return []session.Message{AssistantText(fmt.Sprintf("Your %s is %s.", key, value))}, nil
		}
		return []session.Message{AssistantText(fmt.Sprintf("I don't know your %s yet.", key))}, nil
	}

	if len(factPattern.FindAllStringSubmatch(latest, -1)) > 0 {
		return []session.Message{AssistantText("Got it, I'll remember that.")}, nil
	}
	return []session.Message{AssistantText("Hello! How can I help you today?")}, nil
}

func collectFacts(transcript []session.Message) map[string]string {
	facts := map[string]string{}
	for _, message := range transcript {
		if message.IsAssistant() || message.Type == session.TypeTool {
			continue
		}
		text := session.Normalize(message.Content)
		if questionPattern.MatchString(text) {
			continue
		}
		for _, match := range factPattern.FindAllStringSubmatch(text, -1) {
			facts[normalizeKey(match[1])] = strings.TrimSpace(match[2])
		}
	}
	return facts
}

func lastUserText(transcript []session.Message) (string, bool) {
	for i := len(transcript) - 1; i >= 0; i-- {
		message := transcript[i]
		if message.Role == session.RoleUser || message.Type == session.TypeHuman {
			return session.Normalize(message.Content), true
		}
	}
	return "", false
}

func normalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), " ")
}
