package server

import (
	"fmt"
	"strings"

	"github.com/hupe1980/groupchat/core"
)

// FormatEvent renders an event as one bridge frame: "[author] text". Tool
// calls and tool responses are rendered on their own lines.
func FormatEvent(ev core.Event) string {
	return "[" + ev.Author + "] " + EventText(ev)
}

// EventText renders the body of an event without the author prefix.
func EventText(ev core.Event) string {
	var lines []string
	if text := ev.Text(); text != "" {
		lines = append(lines, text)
	}
	for _, fc := range ev.GetFunctionCalls() {
		args := fc.Arguments
		if args == "" {
			args = "{}"
		}
		lines = append(lines, fmt.Sprintf("call %s(%s)", fc.Name, args))
	}
	for _, fr := range ev.GetFunctionResponses() {
		if fr.Error != "" {
			lines = append(lines, fmt.Sprintf("%s failed: %s", fr.Name, fr.Error))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s -> %v", fr.Name, fr.Response))
	}
	return strings.Join(lines, "\n")
}
