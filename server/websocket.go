package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/groupchat"
)

// TerminateCommand closes a bridge connection when sent as the first line
// of a message.
const TerminateCommand = "TERMINATE"

// HumanInstruction asks the operator for input.
const HumanInstruction = "Provide feedback. Type 'exit' to end the conversation:"

// HumanPrompt is the terminal rendering of HumanInstruction.
const HumanPrompt = "[system] " + HumanInstruction

// serveWebSocket runs the per connection loop: read one message, run one
// session on it while streaming every event back as a JSON Frame, then read
// the next.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: s.opts.InsecureSkipVerify})
	if err != nil {
		s.opts.Logger.Warn("server.ws.accept_failed", "error", err.Error())
		return
	}
	defer conn.CloseNow()

	if m := s.opts.Metrics; m != nil {
		m.ConnectionOpened()
		defer m.ConnectionClosed()
	}

	ctx := r.Context()
	workflow, chat, ok := s.chat(r.URL.Query().Get("workflow"))
	if !ok {
		_ = conn.Close(websocket.StatusPolicyViolation, closeReason("unknown workflow: %s", workflow))
		return
	}
	logger := s.opts.Logger
	logger.Info("server.ws.connected", "remote", r.RemoteAddr, "workflow", workflow)

	for {
		msg, err := readText(ctx, conn)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				logger.Debug("server.ws.closed", "remote", r.RemoteAddr)
			default:
				logger.Warn("server.ws.read_failed", "remote", r.RemoteAddr, "error", err.Error())
			}
			return
		}
		if firstLine(msg) == TerminateCommand {
			logger.Info("server.ws.terminate", "remote", r.RemoteAddr)
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		stream := &frameStream{ctx: ctx, conn: conn}
		res, err := chat.Run(ctx, msg, func(o *groupchat.RunOptions) {
			o.OnEvent = stream.OnEvent
			o.OnHandoff = stream.OnHandoff
			o.Human = func(ctx context.Context, _ []core.Event) (string, error) {
				if err := stream.requestInput(); err != nil {
					return "", err
				}
				return readText(ctx, conn)
			}
		})
		if err == nil {
			err = stream.terminate(res)
		}
		if err != nil {
			logger.Error("server.ws.session_failed", "remote", r.RemoteAddr, "workflow", workflow,
				"session_id", res.SessionID, "error", err.Error())
			_ = conn.Close(websocket.StatusInternalError, "session failed")
			return
		}
		logger.Info("server.ws.session_done", "remote", r.RemoteAddr, "workflow", workflow,
			"session_id", res.SessionID, "reason", string(res.Reason))
	}
}

func readText(ctx context.Context, conn *websocket.Conn) (string, error) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return "", err
	}
	if typ != websocket.MessageText {
		return "", errors.New("binary messages are not supported")
	}
	return string(data), nil
}

func firstLine(msg string) string {
	line, _, _ := strings.Cut(msg, "\n")
	return strings.TrimSpace(line)
}

// closeReason keeps the reason within the control frame payload limit.
func closeReason(format string, args ...any) string {
	reason := fmt.Sprintf(format, args...)
	if len(reason) > 120 {
		reason = reason[:120]
	}
	return reason
}
