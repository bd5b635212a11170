package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Gurpartap/carecompanion/session"
	"github.com/Gurpartap/carecompanion/transport/langgraph"
)

func (h *handlers) handleOK(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) handleSearchAssistants(w http.ResponseWriter, r *http.Request) {
	var request langgraph.SearchAssistantsRequest
	if err := h.decode(w, r, &request, true); err != nil {
		writeMappedError(w, err)
		return
	}
	if request.Limit < 0 || request.Offset < 0 {
		writeInvalidRequest(w, "limit and offset must be >= 0")
		return
	}

	matched := make([]session.Assistant, 0)
	for _, assistant := range h.service.Assistants() {
		if request.GraphID != "" && assistant.GraphID != request.GraphID {
			continue
		}
		matched = append(matched, assistant)
	}
	if request.Offset >= len(matched) {
		matched = matched[:0]
	} else {
		matched = matched[request.Offset:]
	}
	if request.Limit > 0 && request.Limit < len(matched) {
		matched = matched[:request.Limit]
	}
	writeJSON(w, http.StatusOK, matched)
}

func (h *handlers) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var ignored map[string]any
	if err := h.decode(w, r, &ignored, true); err != nil {
		writeMappedError(w, err)
		return
	}

	threadID, err := h.service.CreateThread(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, langgraph.Thread{ThreadID: threadID, Status: "idle"})
}

func (h *handlers) handleThreadState(w http.ResponseWriter, r *http.Request) {
	threadID, err := pathThreadID(r)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	state, err := h.service.ThreadState(r.Context(), threadID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	values := state.Values
	if values.Messages == nil {
		values.Messages = []session.Message{}
	}
	writeJSON(w, http.StatusOK, langgraph.ThreadStateResponse{Values: values, Next: []string{}})
}

func (h *handlers) handleRunWait(w http.ResponseWriter, r *http.Request) {
	threadID, err := pathThreadID(r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	request, err := h.turnRequest(w, r, threadID)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	values, err := h.service.Wait(r.Context(), request)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// handleRunStream serves both the thread-scoped and the stateless stream
// endpoints as text/event-stream.
func (h *handlers) handleRunStream(w http.ResponseWriter, r *http.Request) {
	threadID := session.NoThread
	if r.PathValue("thread_id") != "" {
		parsed, err := pathThreadID(r)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		threadID = parsed
	}
	request, err := h.turnRequest(w, r, threadID)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming is unsupported by response writer")
		return
	}

	stream, err := h.service.Stream(r.Context(), request)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for {
		event, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			_ = writeStreamError(w, flusher, err)
			return
		}
		if err := langgraph.WriteEvent(w, event); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *handlers) turnRequest(w http.ResponseWriter, r *http.Request, threadID session.ThreadID) (session.TurnRequest, error) {
	var body langgraph.RunRequest
	if err := h.decode(w, r, &body, false); err != nil {
		return session.TurnRequest{}, err
	}

	mode := session.StreamMode("")
	for _, requested := range body.StreamMode {
		if requested != string(session.StreamModeValues) {
			return session.TurnRequest{}, invalidRequestError(fmt.Sprintf("unsupported stream_mode %q", requested))
		}
		mode = session.StreamModeValues
	}

	return session.TurnRequest{
		ThreadID:    threadID,
		AssistantID: strings.TrimSpace(body.AssistantID),
		Input:       session.TurnInput{Messages: body.Input.Messages},
		StreamMode:  mode,
	}, nil
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	return decodeJSONBody(r, dst, optional)
}

func pathThreadID(r *http.Request) (session.ThreadID, error) {
	raw := strings.TrimSpace(r.PathValue("thread_id"))
	if raw == "" {
		return session.NoThread, invalidRequestError("thread_id is required")
	}
	return session.ThreadID(raw), nil
}

func writeStreamError(w io.Writer, flusher http.Flusher, cause error) error {
	data, err := marshalStreamError(cause)
	if err != nil {
		return err
	}
	if err := langgraph.WriteEvent(w, session.StreamEvent{Event: session.EventError, Data: data}); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func marshalStreamError(cause error) ([]byte, error) {
	return json.Marshal(langgraph.StreamError{Kind: "RunError", Message: cause.Error()})
}
