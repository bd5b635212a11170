package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Gurpartap/carecompanion/session"
)

type messageView struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Role    string `json:"role,omitempty" yaml:"role,omitempty"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Content string `json:"content" yaml:"content"`
}

type threadStateView struct {
	ThreadID string        `json:"thread_id" yaml:"thread_id"`
	Messages []messageView `json:"messages" yaml:"messages"`
}

func newThreadStateView(state session.ThreadState) threadStateView {
	view := threadStateView{
		ThreadID: string(state.ThreadID),
		Messages: make([]messageView, 0, len(state.Values.Messages)),
	}
	for _, message := range state.Values.Messages {
		view.Messages = append(view.Messages, messageView{
			ID:      message.ID,
			Role:    string(message.Role),
			Type:    message.Type,
			Name:    message.Name,
			Content: session.Normalize(message.Content),
		})
	}
	return view
}

func writeFormatted(w io.Writer, format string, value any) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported format: %s (allowed: json, yaml)", format)
	}
}
