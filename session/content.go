package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContentKind tags the decoded shape of message content.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentParts
	ContentUnknown
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentParts:
		return "parts"
	default:
		return "unknown"
	}
}

// Part is one block of structured content (text, image_url, ...).
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	raw json.RawMessage
}

// MarshalJSON keeps fields the Part type does not model.
func (p Part) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	type plain Part
	return json.Marshal(plain(p))
}

// UnmarshalJSON decodes the known fields and remembers the raw block.
func (p *Part) UnmarshalJSON(data []byte) error {
	type plain Part
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = Part(decoded)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Content is message content: plain text, structured parts, or an
// unrecognised JSON value kept verbatim.
type Content struct {
	kind  ContentKind
	text  string
	parts []Part
	raw   json.RawMessage
}

// TextContent returns string content.
func TextContent(text string) Content {
	return Content{kind: ContentText, text: text}
}

// PartsContent returns structured content.
func PartsContent(parts ...Part) Content {
	cloned := make([]Part, len(parts))
	copy(cloned, parts)
	return Content{kind: ContentParts, parts: cloned}
}

func (c Content) Kind() ContentKind { return c.kind }

// Text returns the string payload; ok is false for non-text content.
func (c Content) Text() (string, bool) {
	if c.kind != ContentText {
		return "", false
	}
	return c.text, true
}

func (c Content) Parts() []Part {
	if c.kind != ContentParts {
		return nil
	}
	out := make([]Part, len(c.parts))
	copy(out, c.parts)
	return out
}

// Raw returns the wire bytes the content was decoded from, if any.
func (c Content) Raw() json.RawMessage {
	return append(json.RawMessage(nil), c.raw...)
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case ContentText:
		return json.Marshal(c.text)
	case ContentParts:
		if len(c.raw) > 0 {
			return c.raw, nil
		}
		if c.parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.parts)
	default:
		if len(c.raw) == 0 {
			return []byte("null"), nil
		}
		return c.raw, nil
	}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("decode content: empty payload")
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("decode content text: %w", err)
		}
		*c = Content{kind: ContentText, text: text}
	case '[':
		var parts []Part
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			// Arrays of non-object blocks are still valid content.
			if !json.Valid(trimmed) {
				return fmt.Errorf("decode content parts: %w", err)
			}
			*c = Content{kind: ContentUnknown, raw: append(json.RawMessage(nil), trimmed...)}
			return nil
		}
		*c = Content{kind: ContentParts, parts: parts, raw: append(json.RawMessage(nil), trimmed...)}
	default:
		if !json.Valid(trimmed) {
			return fmt.Errorf("decode content: invalid JSON")
		}
		*c = Content{kind: ContentUnknown, raw: append(json.RawMessage(nil), trimmed...)}
	}
	return nil
}

func (c Content) clone() Content {
	out := c
	if c.parts != nil {
		out.parts = make([]Part, len(c.parts))
		copy(out.parts, c.parts)
	}
	if c.raw != nil {
		out.raw = append(json.RawMessage(nil), c.raw...)
	}
	return out
}
