// Package groupchat runs group chat sessions.
//
// A Pattern declares the participants of a workflow, the context variable
// schema, the hand-off rules (attached to each agent) and the session limits.
// GroupChat.Run executes one session: participants take strictly sequential
// turns through the conversation engine, and after every turn the hand-off
// router decides who acts next, whether control returns to the human
// operator, or whether the session ends.
package groupchat
