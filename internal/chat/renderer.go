package chat

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

const (
	clearLineControl = "\r\033[2K"
	defaultPrompt    = "you> "
)

type Renderer struct {
	out         io.Writer
	prompt      string
	mu          sync.Mutex
	promptShown bool
	markdown    *glamour.TermRenderer
}

func NewRenderer(out io.Writer, prompt string) *Renderer {
	if out == nil {
		out = io.Discard
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultPrompt
	}
	return &Renderer{
		out:    out,
		prompt: prompt,
	}
}

// EnableMarkdown renders assistant replies as terminal markdown. An empty
// style picks one from the terminal background.
func (r *Renderer) EnableMarkdown(style string, wordWrap int) error {
	styleOption := glamour.WithAutoStyle()
	if style != "" {
		styleOption = glamour.WithStandardStyle(style)
	}
	if wordWrap <= 0 {
		wordWrap = 80
	}

	termRenderer, err := glamour.NewTermRenderer(styleOption, glamour.WithWordWrap(wordWrap))
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.markdown = termRenderer
	return nil
}

func (r *Renderer) ShowPrompt() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := io.WriteString(r.out, r.prompt); err != nil {
		return err
	}
	r.promptShown = true
	return nil
}

func (r *Renderer) HidePrompt() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.promptShown = false
}

// PrintReply prints assistant text, through the markdown renderer when one
// is enabled.
func (r *Renderer) PrintReply(text string) error {
	r.mu.Lock()
	markdown := r.markdown
	r.mu.Unlock()

	if markdown == nil {
		return r.PrintLine(text)
	}
	rendered, err := markdown.Render(text)
	if err != nil {
		return r.PrintLine(text)
	}
	return r.PrintLine(strings.Trim(rendered, "\n"))
}

func (r *Renderer) PrintLine(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trimmed := strings.TrimRight(line, "\n")

	if r.promptShown {
		if _, err := io.WriteString(r.out, clearLineControl); err != nil {
			return err
		}
		if trimmed != "" {
			if _, err := io.WriteString(r.out, trimmed); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(r.out, "\n"); err != nil {
			return err
		}
		_, err := io.WriteString(r.out, r.prompt)
		return err
	}

	if trimmed != "" {
		if _, err := io.WriteString(r.out, trimmed); err != nil {
			return err
		}
	}
	_, err := io.WriteString(r.out, "\n")
	return err
}
