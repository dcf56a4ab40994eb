package core

import (
	"time"

	"github.com/google/uuid"
)

// UserAuthor is the author name used for operator messages.
const UserAuthor = "user"

// EventActions encodes side-effects attached to an Event. StateDelta lists
// context variables written by tool actions while producing the event;
// Handoff carries a tool-suggested next target.
type EventActions struct {
	StateDelta map[string]any `json:"state_delta,omitempty"`
	Handoff    *Target        `json:"handoff,omitempty"`
}

// Event is the unit of communication between participants, the engine and
// external clients. After emission it should be treated as immutable.
type Event struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id,omitempty"`
	Author    string       `json:"author"`
	Actions   EventActions `json:"actions"`
	Timestamp time.Time    `json:"timestamp"`
	Content   *Content     `json:"content,omitempty"`
}

// NewEvent creates a bare event authored by author.
func NewEvent(sessionID, author string) Event {
	return Event{
		ID:        NewID(),
		SessionID: sessionID,
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEvent creates an assistant message event with a single text part.
func NewMessageEvent(sessionID, author, message string) Event {
	e := NewEvent(sessionID, author)
	e.Content = &Content{Role: "assistant", Parts: []Part{TextPart{Text: message}}}
	return e
}

// NewUserMessageEvent creates an operator-authored text message event.
func NewUserMessageEvent(sessionID, message string) Event {
	e := NewEvent(sessionID, UserAuthor)
	e.Content = &Content{Role: "user", Parts: []Part{TextPart{Text: message}}}
	return e
}

// NewFunctionCallEvent represents a participant requesting execution of one
// or more tools.
func NewFunctionCallEvent(sessionID, author string, calls ...FunctionCall) Event {
	e := NewEvent(sessionID, author)
	parts := make([]Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, FunctionCallPart{FunctionCall: c})
	}
	e.Content = &Content{Role: "assistant", Parts: parts}
	return e
}

// NewFunctionResponseEvent records the result (or error) of a tool call.
func NewFunctionResponseEvent(sessionID, author, id, functionName string, result any, err error) Event {
	e := NewEvent(sessionID, author)
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }

// Text returns the concatenated text parts of the event.
func (e Event) Text() string { return e.Content.Text() }

// GetFunctionCalls returns the FunctionCall parts in order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns the FunctionResponse parts in order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse reports whether the event is a plain reply without pending
// tool calls or tool responses.
func (e Event) IsFinalResponse() bool {
	return len(e.GetFunctionCalls()) == 0 && len(e.GetFunctionResponses()) == 0
}
