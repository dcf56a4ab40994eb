package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/groupchat/artifact"
	"github.com/hupe1980/groupchat/groupchat"
	"github.com/hupe1980/groupchat/session"
)

const maxRequestBytes = 1 << 20

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message  string `json:"message"`
	Workflow string `json:"workflow,omitempty"`
}

// Message is one transcript entry of a ChatResponse.
type Message struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// ChatResponse is the result of POST /chat.
type ChatResponse struct {
	SessionID    string         `json:"session_id"`
	Workflow     string         `json:"workflow"`
	Reason       string         `json:"reason"`
	Completed    bool           `json:"completed"`
	Rounds       int            `json:"rounds"`
	Context      map[string]any `json:"context"`
	SpeakerOrder []string       `json:"speaker_order"`
	Transcript   []Message      `json:"transcript"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newChatResponse(res groupchat.Result) ChatResponse {
	out := ChatResponse{
		SessionID:    res.SessionID,
		Workflow:     res.Workflow,
		Reason:       string(res.Reason),
		Completed:    res.Completed(),
		Rounds:       res.Rounds,
		Context:      res.Context,
		SpeakerOrder: res.SpeakerOrder,
		Transcript:   make([]Message, 0, len(res.Transcript)),
	}
	if out.SpeakerOrder == nil {
		out.SpeakerOrder = []string{}
	}
	for _, ev := range res.Transcript {
		out.Transcript = append(out.Transcript, Message{Author: ev.Author, Text: EventText(ev)})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWorkflows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":   s.opts.DefaultWorkflow,
		"workflows": s.workflowNames(),
	})
}

// handleChat runs one non-interactive session. A hand-back to the operator
// ends the session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	workflow, chat, ok := s.chat(req.Workflow)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown workflow: "+workflow)
		return
	}

	logger := s.opts.Logger
	res, err := chat.Run(r.Context(), req.Message)
	if err != nil {
		logger.Error("server.chat.error", "request_id", middleware.GetReqID(r.Context()),
			"workflow", workflow, "session_id", res.SessionID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "session failed: "+err.Error())
		return
	}
	logger.Info("server.chat.done", "request_id", middleware.GetReqID(r.Context()),
		"workflow", workflow, "session_id", res.SessionID, "reason", string(res.Reason))
	writeJSON(w, http.StatusOK, newChatResponse(res))
}

func (s *Server) handleListReports(w http.ResponseWriter, _ *http.Request) {
	ids, err := s.opts.Reports.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": ids})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.opts.Reports.Get(id)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found: "+id)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// handleListSessions lists the sessions currently running.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.opts.Sessions.List()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.opts.Sessions.Get(id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found: "+id)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
