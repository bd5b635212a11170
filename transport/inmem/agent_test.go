package inmem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gurpartap/carecompanion/session"
	"github.com/Gurpartap/carecompanion/transport/inmem"
)

func replyText(t *testing.T, messages []session.Message) string {
	t.Helper()
	if len(messages) != 1 {
		t.Fatalf("expected one reply message, got %d", len(messages))
	}
	if !messages[0].IsAssistant() {
		t.Fatalf("reply is not assistant output: %+v", messages[0])
	}
	return session.Normalize(messages[0].Content)
}

func TestRecallAgent(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		transcript []string
		want       string
	}{
		{
			name:       "recalls fact from earlier turn",
			transcript: []string{"My name is Ada", "what is my name?"},
			want:       "Your name is Ada.",
		},
		{
			name:       "multi word key",
			transcript: []string{"My secret number is 999,", "What is my secret number?"},
			want:       "Your secret number is 999.",
		},
		{
			name:       "latest statement wins",
			transcript: []string{"my city is Lisbon", "my city is Porto", "what's my city"},
			want:       "Your city is Porto.",
		},
		{
			name:       "unknown fact",
			transcript: []string{"What is my secret number?"},
			want:       "I don't know your secret number yet.",
		},
		{
			name:       "acknowledges statements",
			transcript: []string{"my dog is Rex"},
			want:       "Got it, I'll remember that.",
		},
		{
			name:       "greeting",
			transcript: []string{"hi"},
			want:       "Hello! How can I help you today?",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			transcript := make([]session.Message, 0, len(tc.transcript))
			for _, text := range tc.transcript {
				transcript = append(transcript, session.UserMessage(text))
			}
			replies, err := inmem.RecallAgent{}.Respond(context.Background(), transcript)
			if err != nil {
				t.Fatalf("respond: %v", err)
			}
			if got := replyText(t, replies); got != tc.want {
				t.Fatalf("reply mismatch: got=%q want=%q", got, tc.want)
			}
		})
	}
}

func TestRecallAgent_IgnoresAssistantStatements(t *testing.T) {
	t.Parallel()

	transcript := []session.Message{
		inmem.AssistantText("my name is Bot"),
		session.UserMessage("what is my name?"),
	}
	replies, err := inmem.RecallAgent{}.Respond(context.Background(), transcript)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got, want := replyText(t, replies), "I don't know your name yet."; got != want {
		t.Fatalf("reply mismatch: got=%q want=%q", got, want)
	}
}

func TestScriptedAgent_ReplaysAndExhausts(t *testing.T) {
	t.Parallel()

	failure := errors.New("model offline")
	agent := inmem.NewScriptedAgent(
		inmem.Reply{Messages: []session.Message{inmem.AssistantText("first")}},
		inmem.Reply{Err: failure},
	)

	replies, err := agent.Respond(context.Background(), nil)
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if got := replyText(t, replies); got != "first" {
		t.Fatalf("first reply mismatch: got=%q", got)
	}
	if _, err := agent.Respond(context.Background(), nil); !errors.Is(err, failure) {
		t.Fatalf("expected scripted failure, got %v", err)
	}
	if _, err := agent.Respond(context.Background(), nil); err == nil {
		t.Fatal("expected exhausted script error")
	}
}

func TestEchoAgent(t *testing.T) {
	t.Parallel()

	replies, err := inmem.EchoAgent{}.Respond(context.Background(), []session.Message{session.UserMessage("ping")})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got := replyText(t, replies); got != "ping" {
		t.Fatalf("echo mismatch: got=%q", got)
	}
}
