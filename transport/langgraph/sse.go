package langgraph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Gurpartap/carecompanion/session"
)

// Values snapshots repeat the whole transcript, so frames can grow large.
const maxFrameBytes = 8 * 1024 * 1024

// Reader decodes a text/event-stream body into stream events. Each frame is
// a run of event:, data:, id: and retry: lines closed by a blank line.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(source io.Reader) *Reader {
	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameBytes)
	return &Reader{scanner: scanner}
}

func (r *Reader) Next() (session.StreamEvent, error) {
	if r == nil || r.scanner == nil {
		return session.StreamEvent{}, io.EOF
	}

	var (
		event   string
		data    []string
		pending bool
	)
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if line == "" {
			if !pending {
				continue
			}
			return buildEvent(event, data)
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		case "id", "retry":
		default:
			// Unknown fields are ignored.
			continue
		}
		pending = true
	}

	if err := r.scanner.Err(); err != nil {
		return session.StreamEvent{}, fmt.Errorf("%w: %w", ErrReadResponse, err)
	}
	if pending {
		return buildEvent(event, data)
	}
	return session.StreamEvent{}, io.EOF
}

func buildEvent(event string, data []string) (session.StreamEvent, error) {
	if event == "" {
		event = "message"
	}
	out := session.StreamEvent{Event: event}
	if len(data) == 0 {
		return out, nil
	}

	payload := strings.Join(data, "\n")
	if !json.Valid([]byte(payload)) {
		return session.StreamEvent{}, fmt.Errorf("%w: event %q carries invalid JSON", ErrDecodeResponse, event)
	}
	out.Data = json.RawMessage(payload)
	return out, nil
}

// WriteEvent encodes one frame in the format Reader accepts.
func WriteEvent(w io.Writer, event session.StreamEvent) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Event); err != nil {
		return err
	}
	if len(event.Data) > 0 {
		for _, line := range strings.Split(string(event.Data), "\n") {
			if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}
