package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/model"
)

// ErrNoSpeaker is returned when speaker selection names no candidate.
var ErrNoSpeaker = errors.New("no speaker selected")

var (
	leadingAnswer = regexp.MustCompile(`(?i)^\W*(yes|no)\b`)
	yesWord       = regexp.MustCompile(`(?i)\byes\b`)
	noWord        = regexp.MustCompile(`(?i)\bno\b`)
)

const judgeInstructions = "You evaluate a group conversation and answer a single question about it. " +
	"Answer with YES or NO only."

// Judge answers a semantic hand-off question about the transcript with a
// yes/no model call. It implements handoff.Judge.
//
// Unclear answers are retried with a corrective message. When every attempt
// is unclear the condition is reported as not holding.
func (e *Engine) Judge(ctx context.Context, transcript []core.Event, question string) (bool, error) {
	if e.llm == nil {
		return false, ErrNoModel
	}
	prompt := fmt.Sprintf("Conversation:\n%s\nQuestion: %s\nAnswer YES or NO.", Render(transcript), question)
	contents := []core.Content{userText(prompt)}

	for attempt := 0; attempt <= e.opts.JudgeRetries; attempt++ {
		resp, err := e.generate(ctx, "", "judge", e.llm, model.Request{
			Instructions: judgeInstructions,
			Contents:     contents,
		})
		if err != nil {
			return false, fmt.Errorf("judge: %w", err)
		}
		answer := strings.TrimSpace(resp.Content.Text())
		if yes, ok := parseJudgement(answer); ok {
			return yes, nil
		}
		e.opts.Logger.Warn("engine.judge.unclear", "attempt", attempt+1, "answer", answer)
		contents = append(contents, resp.Content, userText(fmt.Sprintf(
			"Your answer %q was neither YES nor NO. Reply with YES or NO only.", answer)))
	}
	return false, nil
}

// parseJudgement accepts answers starting with YES or NO, or containing
// exactly one of the two words.
func parseJudgement(answer string) (yes, ok bool) {
	if m := leadingAnswer.FindStringSubmatch(answer); m != nil {
		return strings.EqualFold(m[1], "yes"), true
	}
	hasYes, hasNo := yesWord.MatchString(answer), noWord.MatchString(answer)
	if hasYes == hasNo {
		return false, false
	}
	return hasYes, true
}

// SelectSpeaker asks the model which candidate should speak next. A reply
// is accepted when it is exactly a candidate name, or when exactly one
// candidate name is mentioned in it.
func (e *Engine) SelectSpeaker(ctx context.Context, transcript []core.Event, candidates []*agent.Agent) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoSpeaker
	}
	if len(candidates) == 1 {
		return candidates[0].Name(), nil
	}
	if e.llm == nil {
		return "", ErrNoModel
	}

	names := make([]string, len(candidates))
	var roles strings.Builder
	for i, c := range candidates {
		names[i] = c.Name()
		fmt.Fprintf(&roles, "%s: %s\n", c.Name(), c.Description())
	}
	instructions := fmt.Sprintf("You are in a role play game. The following roles are available:\n%s\n"+
		"Read the following conversation. Then select the next role from %v to play. Only return the role.",
		roles.String(), names)
	contents := []core.Content{userText(Render(transcript))}

	for attempt := 0; attempt <= e.opts.SelectRetries; attempt++ {
		resp, err := e.generate(ctx, "", "speaker_selector", e.llm, model.Request{
			Instructions: instructions,
			Contents:     contents,
		})
		if err != nil {
			return "", fmt.Errorf("select speaker: %w", err)
		}
		answer := strings.TrimSpace(resp.Content.Text())
		if name, ok := matchCandidate(answer, names); ok {
			return name, nil
		}
		e.opts.Logger.Warn("engine.select.invalid", "attempt", attempt+1, "answer", answer)
		contents = append(contents, resp.Content, userText(fmt.Sprintf(
			"Your answer %q did not name exactly one role. Reply with one of %v only.", answer, names)))
	}
	return "", ErrNoSpeaker
}

func matchCandidate(answer string, names []string) (string, bool) {
	for _, n := range names {
		if strings.EqualFold(answer, n) {
			return n, true
		}
	}
	var found []string
	for _, n := range names {
		re := regexp.MustCompile(`(?i)(^|[^\w])` + regexp.QuoteMeta(n) + `([^\w]|$)`)
		if re.MatchString(answer) {
			found = append(found, n)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

func userText(text string) core.Content {
	return core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: text}}}
}
