package engine

import (
	"strings"

	"github.com/hupe1980/groupchat/core"
)

// Contents maps the shared transcript to the model view of participant
// active. Its own messages and tool exchanges keep their roles; text from
// every other author becomes a user message prefixed with the author name.
// Tool exchanges of other participants are not visible.
func Contents(active string, transcript []core.Event) []core.Content {
	contents := make([]core.Content, 0, len(transcript))
	for _, ev := range transcript {
		if ev.Content == nil {
			continue
		}
		if ev.Author == active {
			contents = append(contents, *ev.Content)
			continue
		}
		text := ev.Text()
		if text == "" {
			continue
		}
		if ev.Author != core.UserAuthor {
			text = ev.Author + ": " + text
		}
		contents = append(contents, core.Content{
			Role:  "user",
			Parts: []core.Part{core.TextPart{Text: text}},
		})
	}
	return contents
}

// Render formats the text messages of a transcript one per line as
// "author: text".
func Render(transcript []core.Event) string {
	var b strings.Builder
	for _, ev := range transcript {
		text := strings.TrimSpace(ev.Text())
		if text == "" {
			continue
		}
		b.WriteString(ev.Author)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}
