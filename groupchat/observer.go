package groupchat

import "time"

// Observer receives session lifecycle notifications. metrics.Collector
// implements it.
type Observer interface {
	SessionStarted(workflow string)
	SessionEnded(workflow, reason string, err error)
	TurnCompleted(workflow, agent string, d time.Duration, err error)
	HandoffDecided(workflow, from, source, target string)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(string) {}
func (nopObserver) SessionEnded(string, string, error) {}
func (nopObserver) TurnCompleted(string, string, time.Duration, error) {}
func (nopObserver) HandoffDecided(string, string, string, string) {}
