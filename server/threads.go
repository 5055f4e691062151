package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/smallnest/fabflow/fab"
)

// AssistantID is the id of the only assistant this server hosts.
const AssistantID = "agent"

// InterruptKey keys the suspension event payload.
const InterruptKey = "__interrupt__"

const errNoInput = "No input or command provided"

func (s *Server) handleOK(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAssistants(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, []map[string]string{{
		"assistant_id": AssistantID,
		"graph_id":     AssistantID,
		"name":         "Semiconductor Agent",
	}})
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"thread_id": s.service.NewThread()})
}

// handleState never fails: an unknown thread or a broken store both yield an
// empty state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	snap, err := s.service.State(r.Context(), threadID)
	if err != nil {
		s.logger.Warn("state of thread %s unavailable: %v", threadID, err)
		s.writeJSON(w, http.StatusOK, map[string]any{"values": map[string]any{}, "next": []string{}})
		return
	}
	if snap.Next == nil {
		snap.Next = []string{}
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	snaps, err := s.service.History(r.Context(), threadID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if snaps == nil {
		snaps = []*fab.Snapshot{}
	}
	s.writeJSON(w, http.StatusOK, snaps)
}

// runRequest is the body of a stream request. assistant_id, config and
// stream_mode are accepted for client compatibility; only "updates" is streamed.
type runRequest struct {
	AssistantID string          `json:"assistant_id"`
	Input       json.RawMessage `json:"input"`
	Command     *struct {
		Resume json.RawMessage `json:"resume"`
	} `json:"command"`
	Config     map[string]any `json:"config"`
	StreamMode []string       `json:"stream_mode"`
}

func (r *runRequest) resume() (json.RawMessage, bool) {
	if r.Command == nil {
		return nil, false
	}
	raw := bytes.TrimSpace(r.Command.Resume)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	return raw, true
}

// runInput is the validated text of a new run.
type runInput struct {
	Text string `validate:"required,max=20000"`
}

// inputText accepts a bare string, {"input_text"}, {"user_request"} or a
// {"messages": [...]} list whose last content is used.
func inputText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}

	var obj struct {
		InputText   string `json:"input_text"`
		UserRequest string `json:"user_request"`
		Messages    []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	switch {
	case strings.TrimSpace(obj.InputText) != "":
		return strings.TrimSpace(obj.InputText)
	case strings.TrimSpace(obj.UserRequest) != "":
		return strings.TrimSpace(obj.UserRequest)
	case len(obj.Messages) > 0:
		return strings.TrimSpace(obj.Messages[len(obj.Messages)-1].Content)
	}
	return ""
}

// handleStream reads and checks the whole request before the event stream
// opens: once the response is flushed the HTTP/1.1 server closes the body.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	raw, resuming := body.resume()
	in := runInput{Text: inputText(body.Input)}

	stream, err := newEventStream(w)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	ctx := r.Context()
	onUpdate := func(ctx context.Context, node string, update fab.State) error {
		return stream.send("updates", map[string]any{node: update})
	}

	var res *fab.Result
	if resuming {
		verdict, derr := fab.DecodeVerdictJSON(raw)
		if derr != nil {
			s.streamError(stream, threadID, derr)
			return
		}
		res, err = s.service.Resume(ctx, threadID, verdict, onUpdate)
	} else {
		if s.validate.Struct(in) != nil {
			if in.Text == "" {
				stream.send("error", map[string]string{"error": errNoInput})
			} else {
				stream.send("error", map[string]string{"error": "input too long"})
			}
			return
		}
		res, err = s.service.Start(ctx, threadID, in.Text, onUpdate)
	}
	if err != nil {
		s.streamError(stream, threadID, err)
		return
	}

	if res.Suspended() {
		stream.send("updates", map[string]any{InterruptKey: []any{res.Interrupt}})
	}
	stream.send("end", struct{}{})
}

func (s *Server) streamError(stream *eventStream, threadID string, err error) {
	payload := map[string]string{"error": err.Error()}
	if errors.Is(err, fab.ErrSessionNotFound) {
		payload["type"] = "session_not_found"
		s.logger.Warn("thread %s: %v", threadID, err)
	} else {
		s.logger.Error("run of thread %s failed: %v", threadID, err)
	}
	stream.send("error", payload)
}
