// Package session houses concrete implementations of core.SessionStore.
// The interface itself lives in core so that the group chat loop does not
// depend on a storage backend; only the wiring layer picks one.
package session
