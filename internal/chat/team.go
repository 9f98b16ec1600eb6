package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mpataki/ftry/internal/llm"
	"github.com/mpataki/ftry/internal/logging"
	"github.com/sirupsen/logrus"
)

var log = logging.NewLogger("chat")

const selectorInstructions = `

Roles:
{roles}

Conversation:
{history}

Read the above conversation. Then select the next role from {participants} to play. Only return the role.`

// Team is a selector group chat: before every turn the team model picks the
// next speaker among the participants.
type Team struct {
	name           string
	participants   []*Agent
	model          llm.Client
	selectorPrompt string
	termination    Termination
}

func NewTeam(name string, participants []*Agent, model llm.Client, selectorPrompt string, termination Termination) (*Team, error) {
	if len(participants) == 0 {
		return nil, errors.New("team needs at least one participant")
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if seen[p.Name()] {
			return nil, fmt.Errorf("duplicate participant name %q", p.Name())
		}
		seen[p.Name()] = true
	}
	if termination == nil {
		return nil, errors.New("team needs a termination condition")
	}

	return &Team{
		name:           name,
		participants:   participants,
		model:          model,
		selectorPrompt: selectorPrompt,
		termination:    termination,
	}, nil
}

func (t *Team) Name() string {
	return t.name
}

func (t *Team) Participants() []*Agent {
	return t.participants
}

// RunStream runs turns until the termination condition fires. Each message
// joins the shared history only after the consumer resumes the stream, so
// edits made by the consumer are what later speakers see.
func (t *Team) RunStream(ctx context.Context, task string) Stream {
	return func(yield func(Event, error) bool) {
		taskMsg := &TextMessage{Source: userSource, Text: task}
		if !yield(taskMsg, nil) {
			return
		}
		history := []*TextMessage{taskMsg}

		previous := ""
		for turn := 1; ; turn++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			speaker, err := t.selectSpeaker(ctx, history, previous)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(&SpeakerSelected{Team: t.name, Speaker: speaker.Name()}, nil) {
				return
			}

			msg, err := speaker.Reply(ctx, history)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
			history = append(history, msg)
			previous = speaker.Name()

			if reason := t.termination.Check(turn, msg); reason != "" {
				yield(&TaskResult{Source: t.name, Messages: history, StopReason: reason}, nil)
				return
			}
		}
	}
}

func (t *Team) selectSpeaker(ctx context.Context, history []*TextMessage, previous string) (*Agent, error) {
	candidates := t.participants
	if len(candidates) > 1 && previous != "" {
		candidates = make([]*Agent, 0, len(t.participants)-1)
		for _, p := range t.participants {
			if p.Name() != previous {
				candidates = append(candidates, p)
			}
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	prompt := renderSelectorPrompt(t.selectorPrompt, candidates, history)
	reply, err := t.model.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("speaker selection: %w", err)
	}

	if speaker := matchSpeaker(reply, candidates); speaker != nil {
		return speaker, nil
	}

	fallback := t.nextAfter(previous, candidates)
	log.WithFields(logrus.Fields{
		"team":     t.name,
		"reply":    reply,
		"fallback": fallback.Name(),
	}).Warn("Selector reply named no participant")
	return fallback, nil
}

// nextAfter picks the first candidate following previous in declaration order.
func (t *Team) nextAfter(previous string, candidates []*Agent) *Agent {
	start := 0
	for i, p := range t.participants {
		if p.Name() == previous {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(t.participants); i++ {
		p := t.participants[(start+i)%len(t.participants)]
		for _, c := range candidates {
			if c == p {
				return c
			}
		}
	}
	return candidates[0]
}

func renderSelectorPrompt(prompt string, candidates []*Agent, history []*TextMessage) string {
	if !strings.Contains(prompt, "{roles}") && !strings.Contains(prompt, "{history}") && !strings.Contains(prompt, "{participants}") {
		prompt += selectorInstructions
	}

	roles := make([]string, len(candidates))
	names := make([]string, len(candidates))
	for i, c := range candidates {
		roles[i] = fmt.Sprintf("%s: %s", c.Name(), c.Description())
		names[i] = c.Name()
	}

	turns := make([]string, len(history))
	for i, m := range history {
		turns[i] = fmt.Sprintf("%s: %s", m.Source, m.Text)
	}

	return strings.NewReplacer(
		"{roles}", strings.Join(roles, "\n"),
		"{participants}", "["+strings.Join(names, ", ")+"]",
		"{history}", strings.Join(turns, "\n\n"),
	).Replace(prompt)
}

// matchSpeaker returns the candidate named by reply: an exact match first,
// otherwise the earliest mention, preferring the longest name at a position.
func matchSpeaker(reply string, candidates []*Agent) *Agent {
	trimmed := strings.ToLower(strings.Trim(strings.TrimSpace(reply), "\"'`.[]"))
	for _, c := range candidates {
		if strings.ToLower(c.Name()) == trimmed {
			return c
		}
	}

	lower := strings.ToLower(reply)
	var best *Agent
	bestIdx := -1
	for _, c := range candidates {
		idx := strings.Index(lower, strings.ToLower(c.Name()))
		if idx < 0 {
			continue
		}
		if best == nil || idx < bestIdx || (idx == bestIdx && len(c.Name()) > len(best.Name())) {
			best, bestIdx = c, idx
		}
	}
	return best
}
