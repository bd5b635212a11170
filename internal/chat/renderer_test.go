package chat

import (
	"bytes"
	"strings"
	"testing"
)

func TestRendererPromptRedrawOnLine(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	renderer := NewRenderer(&out, "you> ")

	if err := renderer.ShowPrompt(); err != nil {
		t.Fatalf("show prompt: %v", err)
	}
	if err := renderer.PrintLine("reply arrived"); err != nil {
		t.Fatalf("print line: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, clearLineControl+"reply arrived\nyou> ") {
		t.Fatalf("expected clear/redraw sequence, got: %q", got)
	}
}

func TestRendererPrintLineWithoutPrompt(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	renderer := NewRenderer(&out, "")

	if err := renderer.PrintLine("plain output"); err != nil {
		t.Fatalf("print line: %v", err)
	}
	if got := out.String(); got != "plain output\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestRendererPrintReplyPlain(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	renderer := NewRenderer(&out, "you> ")

	if err := renderer.PrintReply("**take** your pills"); err != nil {
		t.Fatalf("print reply: %v", err)
	}
	if got := out.String(); got != "**take** your pills\n" {
		t.Fatalf("plain mode must print verbatim, got: %q", got)
	}
}

func TestRendererPrintReplyMarkdown(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	renderer := NewRenderer(&out, "you> ")
	if err := renderer.EnableMarkdown("dark", 60); err != nil {
		t.Fatalf("enable markdown: %v", err)
	}

	if err := renderer.PrintReply("# Plan\n\n- **take** your pills"); err != nil {
		t.Fatalf("print reply: %v", err)
	}

	got := out.String()
	if strings.Contains(got, "**take**") {
		t.Fatalf("expected emphasis markers to be rendered, got: %q", got)
	}
	if !strings.Contains(got, "take") || !strings.Contains(got, "Plan") {
		t.Fatalf("expected reply text in output, got: %q", got)
	}
}

func TestRendererRejectsUnknownStyle(t *testing.T) {
	t.Parallel()

	renderer := NewRenderer(nil, "")
	if err := renderer.EnableMarkdown("no-such-style", 0); err == nil {
		t.Fatalf("expected error for unknown style")
	}
}
