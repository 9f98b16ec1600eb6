package chat

import (
	"fmt"
	"strings"
)

// Termination decides whether a run stops after an agent turn. Check returns
// the stop reason, or "" to continue.
type Termination interface {
	Check(turn int, last *TextMessage) string
}

type maxTurns struct {
	max int
}

// MaxTurns stops once max agent turns have been taken.
func MaxTurns(max int) Termination {
	return maxTurns{max: max}
}

func (m maxTurns) Check(turn int, _ *TextMessage) string {
	if turn >= m.max {
		return fmt.Sprintf("Maximum number of turns %d reached.", m.max)
	}
	return ""
}

type textMention struct {
	text string
}

// TextMention stops when the latest message contains text.
func TextMention(text string) Termination {
	return textMention{text: text}
}

func (t textMention) Check(_ int, last *TextMessage) string {
	if last != nil && t.text != "" && strings.Contains(last.Text, t.text) {
		return fmt.Sprintf("Text '%s' mentioned", t.text)
	}
	return ""
}

type anyOf []Termination

// Or stops as soon as any of the conditions does.
func Or(conditions ...Termination) Termination {
	return anyOf(conditions)
}

func (a anyOf) Check(turn int, last *TextMessage) string {
	for _, c := range a {
		if reason := c.Check(turn, last); reason != "" {
			return reason
		}
	}
	return ""
}
