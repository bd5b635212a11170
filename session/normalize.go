package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Normalize reduces message content to a display string. Text is returned
// verbatim; structured and unknown content is rendered as compact JSON.
func Normalize(content Content) string {
	text, _ := normalize(content)
	return text
}

// NormalizeValue applies the same rule to an arbitrary value: strings pass
// through, JSON-serializable values are encoded, anything else is formatted
// with fmt.
func NormalizeValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case Content:
		return Normalize(v)
	case *Content:
		if v == nil {
			return "null"
		}
		return Normalize(*v)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}

// normalize reports fallback=true when the content could not be rendered as
// JSON and was coerced instead.
func normalize(content Content) (text string, fallback bool) {
	switch content.kind {
	case ContentText:
		return content.text, false
	case ContentParts, ContentUnknown:
		if len(content.raw) > 0 {
			var compacted bytes.Buffer
			if err := json.Compact(&compacted, content.raw); err != nil {
				return string(content.raw), true
			}
			return compacted.String(), false
		}
		encoded, err := json.Marshal(content)
		if err != nil {
			return fmt.Sprint(content.parts), true
		}
		return string(encoded), false
	default:
		return fmt.Sprint(content.raw), true
	}
}
