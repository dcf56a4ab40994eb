package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/artifact"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/engine"
	"github.com/hupe1980/groupchat/groupchat"
	"github.com/hupe1980/groupchat/handoff"
	"github.com/hupe1980/groupchat/metrics"
	"github.com/hupe1980/groupchat/model"
	"github.com/hupe1980/groupchat/session"
	"github.com/hupe1980/groupchat/workflow"
)

type fixture struct {
	llm      *model.MockModel
	reports  *artifact.InMemoryStore
	sessions *session.InMemoryStore
	server   *Server
}

// newFixture serves the weather workflow and a one-agent "echo" workflow
// that hands back to the operator after every reply.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	llm := model.NewMockModel("mock", "test")
	reports := artifact.NewInMemoryStore()
	sessions := session.NewInMemoryStore()
	eng := engine.New(llm)
	withReports := func(o *groupchat.Options) {
		o.ReportStore = reports
		o.SessionStore = sessions
	}

	def, err := workflow.Lookup(workflow.WeatherName)
	require.NoError(t, err)
	weatherPattern, err := def.Pattern(func(o *workflow.Options) {
		o.Now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	})
	require.NoError(t, err)
	weather, err := groupchat.New(weatherPattern, eng, withReports)
	require.NoError(t, err)

	assistant := agent.MustNew("assistant", func(o *agent.Options) {
		o.Handoffs = handoff.NewHandoffs().SetAfterWork(core.RevertToUser())
	})
	echo, err := groupchat.New(groupchat.Pattern{
		Name:         "echo",
		InitialAgent: "assistant",
		Agents:       []*agent.Agent{assistant},
		MaxRounds:    6,
	}, eng, withReports)
	require.NoError(t, err)

	srv, err := New(func(o *Options) {
		o.Workflows = map[string]Chat{workflow.WeatherName: weather, "echo": echo}
		o.DefaultWorkflow = workflow.WeatherName
		o.Reports = reports
		o.Sessions = sessions
		o.Metrics = metrics.NewCollector("")
		o.InsecureSkipVerify = true
	})
	require.NoError(t, err)
	return &fixture{llm: llm, reports: reports, sessions: sessions, server: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New()
	assert.Error(t, err)

	_, err = New(func(o *Options) {
		o.Workflows = map[string]Chat{"a": nil}
		o.DefaultWorkflow = "b"
		o.Reports = artifact.NewInMemoryStore()
	})
	assert.Error(t, err)

	_, err = New(func(o *Options) {
		o.Workflows = map[string]Chat{"a": nil}
		o.DefaultWorkflow = "a"
	})
	assert.Error(t, err)
}

func TestHealthAndWorkflows(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/workflows", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"default":"weather","workflows":["echo","weather"]}`, rec.Body.String())
}

func TestChat_WeatherSessionAndReport(t *testing.T) {
	f := newFixture(t)
	f.llm.EnqueueToolCall("c1", "weather_forecast", map[string]any{"city": "Berlin"})
	f.llm.EnqueueText("Sunny skies over Berlin. TERMINATE")

	rec := f.do(t, http.MethodPost, "/chat", ChatRequest{Message: "Weather in Berlin?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "weather", resp.Workflow)
	assert.Equal(t, string(groupchat.ReasonTerminationMessage), resp.Reason)
	assert.True(t, resp.Completed)
	assert.Equal(t, []string{"chatbot"}, resp.SpeakerOrder)
	require.Len(t, resp.Transcript, 4)
	assert.Equal(t, Message{Author: "user", Text: "Weather in Berlin?"}, resp.Transcript[0])
	assert.Equal(t, `call weather_forecast({"city":"Berlin"})`, resp.Transcript[1].Text)
	assert.Equal(t, "weather_forecast -> The weather forecast for Berlin at 2025-06-01 09:00:00 is sunny.", resp.Transcript[2].Text)

	rec = f.do(t, http.MethodGet, "/reports/"+resp.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report core.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, resp.SessionID, report.SessionID)
	assert.Equal(t, "termination_message", report.Reason)

	rec = f.do(t, http.MethodGet, "/reports/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), resp.SessionID)
}

func TestChat_RevertsToUserWithoutHuman(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/chat", ChatRequest{Message: "hi", Workflow: "echo"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(groupchat.ReasonRevertedToUser), resp.Reason)
	assert.False(t, resp.Completed)
	assert.Equal(t, "Mock response to: hi", resp.Transcript[1].Text)
}

func TestChat_BadRequests(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"empty message", ChatRequest{Message: "  "}},
		{"unknown workflow", ChatRequest{Message: "hi", Workflow: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestChat_SessionFailure(t *testing.T) {
	f := newFixture(t)
	f.llm.EnqueueError(errors.New("rate limited"))

	rec := f.do(t, http.MethodPost, "/chat", ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limited")
}

func TestReport_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/reports/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.llm.EnqueueText("TERMINATE")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/chat", ChatRequest{Message: "hi"}).Code)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `groupchat_sessions_ended_total{reason="termination_message",workflow="weather"} 1`)
}

// -------------------- WebSocket bridge --------------------

func dial(t *testing.T, f *fixture, query string) (*websocket.Conn, context.Context) {
	t.Helper()
	ts := httptest.NewServer(f.server.WebSocketHandler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) Frame {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f), string(data))
	assert.NotEmpty(t, f.Content.UUID)
	return f
}

// edge reduces a frame to what the agent flow graph uses.
func edge(f Frame) [4]string {
	return [4]string{f.Type, f.Content.Sender, f.Content.Recipient, f.Content.Content}
}

func TestWebSocket_StreamsSessionThenTerminates(t *testing.T) {
	f := newFixture(t)
	f.llm.EnqueueText("Sunny everywhere. TERMINATE")
	conn, ctx := dial(t, f, "")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("What's the weather?")))
	assert.Equal(t, [4]string{FrameText, "user", "chatbot", "What's the weather?"}, edge(readFrame(t, ctx, conn)))
	assert.Equal(t, [4]string{FrameText, "chatbot", "terminate", "Sunny everywhere. TERMINATE"}, edge(readFrame(t, ctx, conn)))

	end := readFrame(t, ctx, conn)
	assert.Equal(t, [4]string{FrameTermination, "chatbot", "", "Session ended: termination_message"}, edge(end))
	assert.Equal(t, "termination_message", end.Content.TerminationReason)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("TERMINATE\nignored")))
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestWebSocket_ToolFramesAndRawShape(t *testing.T) {
	f := newFixture(t)
	f.llm.EnqueueToolCall("c1", "weather_forecast", map[string]any{"city": "Paris"})
	f.llm.EnqueueText("Sunny in Paris. TERMINATE")
	conn, ctx := dial(t, f, "?workflow=weather")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("Weather in Paris?")))

	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "text", generic["type"])
	content, ok := generic["content"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"uuid", "sender", "recipient", "content"} {
		assert.Contains(t, content, key)
	}

	call := readFrame(t, ctx, conn)
	assert.Equal(t, [4]string{FrameTypeToolCall, "chatbot", "weather_forecast", `call weather_forecast({"city":"Paris"})`}, edge(call))
	require.Len(t, call.Content.ToolCalls, 1)
	assert.Equal(t, "c1", call.Content.ToolCalls[0].ID)

	resp := readFrame(t, ctx, conn)
	assert.Equal(t, FrameTypeToolResponse, resp.Type)
	assert.Equal(t, "weather_forecast", resp.Content.Sender)
	assert.Equal(t, "chatbot", resp.Content.Recipient)
	require.Len(t, resp.Content.ToolResponses, 1)
	assert.Equal(t, "tool", resp.Content.ToolResponses[0].Role)
	assert.Equal(t, "c1", resp.Content.ToolResponses[0].ToolCallID)
	assert.Equal(t, "The weather forecast for Paris at 2025-06-01 09:00:00 is sunny.", resp.Content.Content)

	assert.Equal(t, [4]string{FrameText, "chatbot", "terminate", "Sunny in Paris. TERMINATE"}, edge(readFrame(t, ctx, conn)))
	assert.Equal(t, FrameTermination, readFrame(t, ctx, conn).Type)
}

func TestWebSocket_TerminateFirstStartsNoSession(t *testing.T) {
	f := newFixture(t)
	conn, ctx := dial(t, f, "?workflow=echo")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("TERMINATE")))
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	assert.Empty(t, f.llm.Requests())
	ids, err := f.reports.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWebSocket_HumanInputFromConnection(t *testing.T) {
	f := newFixture(t)
	conn, ctx := dial(t, f, "?workflow=echo")
	inputRequest := [4]string{FrameInputRequest, "system", "user", HumanInstruction}

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("hi")))
	assert.Equal(t, [4]string{FrameText, "user", "assistant", "hi"}, edge(readFrame(t, ctx, conn)))
	assert.Equal(t, [4]string{FrameText, "assistant", "user", "Mock response to: hi"}, edge(readFrame(t, ctx, conn)))
	assert.Equal(t, inputRequest, edge(readFrame(t, ctx, conn)))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("more please")))
	assert.Equal(t, [4]string{FrameText, "user", "assistant", "more please"}, edge(readFrame(t, ctx, conn)))
	assert.Equal(t, [4]string{FrameText, "assistant", "user", "Mock response to: more please"}, edge(readFrame(t, ctx, conn)))
	assert.Equal(t, inputRequest, edge(readFrame(t, ctx, conn)))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("exit")))
	assert.Equal(t, [4]string{FrameText, "user", "terminate", "exit"}, edge(readFrame(t, ctx, conn)))
	end := readFrame(t, ctx, conn)
	assert.Equal(t, FrameTermination, end.Type)
	assert.Equal(t, "user_exit", end.Content.TerminationReason)

	// The connection accepts the next session.
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("again")))
	assert.Equal(t, [4]string{FrameText, "user", "assistant", "again"}, edge(readFrame(t, ctx, conn)))
}

func TestSessions_OnlyRunningSessionsAreServed(t *testing.T) {
	f := newFixture(t)
	conn, ctx := dial(t, f, "?workflow=echo")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("hi")))
	for i := 0; i < 3; i++ {
		readFrame(t, ctx, conn)
	}

	// The session waits for operator input.
	var list struct {
		Sessions []string `json:"sessions"`
	}
	rec := f.do(t, http.MethodGet, "/sessions/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)

	rec = f.do(t, http.MethodGet, "/sessions/"+list.Sessions[0], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var live struct {
		Workflow string `json:"workflow"`
		Events   []struct {
			Author string `json:"author"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))
	assert.Equal(t, "echo", live.Workflow)
	require.Len(t, live.Events, 2)
	assert.Equal(t, "assistant", live.Events[1].Author)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("exit")))
	readFrame(t, ctx, conn)
	assert.Equal(t, FrameTermination, readFrame(t, ctx, conn).Type)

	assert.Zero(t, f.sessions.Len())
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/sessions/"+list.Sessions[0], nil).Code)
	_, err := f.reports.Get(list.Sessions[0])
	require.NoError(t, err)
}

func TestWebSocket_SessionErrorClosesConnection(t *testing.T) {
	f := newFixture(t)
	f.llm.EnqueueError(errors.New("boom"))
	conn, ctx := dial(t, f, "")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("hi")))
	assert.Equal(t, [4]string{FrameText, "user", "chatbot", "hi"}, edge(readFrame(t, ctx, conn)))
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
}

func TestWebSocket_UnknownWorkflow(t *testing.T) {
	f := newFixture(t)
	conn, ctx := dial(t, f, "?workflow=nope")
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestFormatEvent(t *testing.T) {
	ev := core.NewFunctionResponseEvent("s", "chatbot", "c1", "weather_forecast", nil, errors.New("bad city"))
	assert.Equal(t, "[chatbot] weather_forecast failed: bad city", FormatEvent(ev))

	call := core.NewFunctionCallEvent("s", "chatbot", core.FunctionCall{ID: "c1", Name: "initiate_research"})
	assert.Equal(t, "[chatbot] call initiate_research({})", FormatEvent(call))
}
