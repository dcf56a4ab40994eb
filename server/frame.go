package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/groupchat"
)

// Frame types sent over the WebSocket bridge.
const (
	FrameText             = "text"
	FrameTypeToolCall     = "tool_call"
	FrameTypeToolResponse = "tool_response"
	FrameInputRequest     = "input_request"
	FrameTermination      = "termination"
)

// Frame is one JSON message of the WebSocket bridge. Sender and Recipient
// form the edges of the agent flow graph drawn by clients.
type Frame struct {
	Type    string       `json:"type"`
	Content FrameContent `json:"content"`
}

// FrameContent is the payload of a Frame.
type FrameContent struct {
	UUID              string              `json:"uuid"`
	Sender            string              `json:"sender"`
	Recipient         string              `json:"recipient,omitempty"`
	Content           string              `json:"content"`
	ToolCalls         []FrameToolCall     `json:"tool_calls,omitempty"`
	ToolResponses     []FrameToolResponse `json:"tool_responses,omitempty"`
	TerminationReason string              `json:"termination_reason,omitempty"`
}

// FrameToolCall is a tool invocation requested by a participant.
type FrameToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FrameToolResponse is the result of a tool invocation.
type FrameToolResponse struct {
	Role       string `json:"role"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// frameStream turns session events into frames. A message is held back
// until the next hand-off so that its recipient is known.
type frameStream struct {
	ctx     context.Context
	conn    *websocket.Conn
	pending *core.Event
	// speaker is the participant that received control last.
	speaker string
}

func (s *frameStream) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// OnEvent is wired to groupchat.RunOptions.OnEvent.
func (s *frameStream) OnEvent(ev core.Event) error {
	for _, fc := range ev.GetFunctionCalls() {
		args := fc.Arguments
		if args == "" {
			args = "{}"
		}
		if err := s.write(Frame{Type: FrameTypeToolCall, Content: FrameContent{
			UUID:      ev.ID,
			Sender:    ev.Author,
			Recipient: fc.Name,
			Content:   fmt.Sprintf("call %s(%s)", fc.Name, args),
			ToolCalls: []FrameToolCall{{ID: fc.ID, Name: fc.Name, Arguments: args}},
		}}); err != nil {
			return err
		}
	}
	for _, fr := range ev.GetFunctionResponses() {
		text := fmt.Sprintf("%v", fr.Response)
		if fr.Error != "" {
			text = "error: " + fr.Error
		}
		if err := s.write(Frame{Type: FrameTypeToolResponse, Content: FrameContent{
			UUID:          ev.ID,
			Sender:        fr.Name,
			Recipient:     ev.Author,
			Content:       text,
			ToolResponses: []FrameToolResponse{{Role: "tool", ToolCallID: fr.ID, Content: text}},
		}}); err != nil {
			return err
		}
	}
	if ev.Text() == "" {
		return nil
	}
	if err := s.flush(""); err != nil {
		return err
	}
	s.pending = &ev
	return nil
}

// OnHandoff is wired to groupchat.RunOptions.OnHandoff. When the session
// ends the unfollowed target names the recipient.
func (s *frameStream) OnHandoff(h groupchat.Handoff) error {
	recipient := h.To
	if h.To != "" {
		s.speaker = h.To
	} else {
		recipient = h.Target.String()
	}
	return s.flush(recipient)
}

func (s *frameStream) flush(recipient string) error {
	if s.pending == nil {
		return nil
	}
	ev := *s.pending
	s.pending = nil
	return s.write(Frame{Type: FrameText, Content: FrameContent{
		UUID:      ev.ID,
		Sender:    ev.Author,
		Recipient: recipient,
		Content:   ev.Text(),
	}})
}

func (s *frameStream) requestInput() error {
	return s.write(Frame{Type: FrameInputRequest, Content: FrameContent{
		UUID:      uuid.NewString(),
		Sender:    "system",
		Recipient: s.speaker,
		Content:   HumanInstruction,
	}})
}

func (s *frameStream) terminate(res groupchat.Result) error {
	if err := s.flush(""); err != nil {
		return err
	}
	return s.write(Frame{Type: FrameTermination, Content: FrameContent{
		UUID:              uuid.NewString(),
		Sender:            res.LastSpeaker,
		Content:           fmt.Sprintf("Session ended: %s", res.Reason),
		TerminationReason: string(res.Reason),
	}})
}
