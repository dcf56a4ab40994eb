package core

import "time"

// Report is the terminal artifact of a session: the context snapshot plus
// how the session ended.
type Report struct {
	SessionID    string         `json:"session_id"`
	Workflow     string         `json:"workflow"`
	Reason       string         `json:"reason"`
	Completed    bool           `json:"completed"`
	Rounds       int            `json:"rounds"`
	SpeakerOrder []string       `json:"speaker_order"`
	Context      map[string]any `json:"context"`
	Created      time.Time      `json:"created"`
}

// ReportStore persists session reports. Implementations should be thread-safe.
type ReportStore interface {
	Save(r Report) error
	Get(sessionID string) (Report, error)
	List() ([]string, error)
	Delete(sessionID string) error
}
