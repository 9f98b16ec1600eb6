package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mpataki/ftry/internal/chat"
	"github.com/mpataki/ftry/internal/llm"
	"github.com/mpataki/ftry/internal/logging"
	"github.com/mpataki/ftry/internal/manifest"
	"github.com/mpataki/ftry/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logging.NewLogger("builder")

const describePrompt = "Describe the following prompt message in 1 short sentence: "

// Builder turns agent and team configs into runnable chat participants.
type Builder struct {
	factory llm.Factory
}

// New returns a builder creating model clients with factory, or llm.New when
// factory is nil.
func New(factory llm.Factory) *Builder {
	if factory == nil {
		factory = llm.New
	}
	return &Builder{factory: factory}
}

// BuildAgent validates cfg and creates its agent. A blank description is
// generated from the prompt with one model call.
func (b *Builder) BuildAgent(ctx context.Context, cfg *models.AgentConfig) (*chat.Agent, error) {
	if err := manifest.ValidateAgent(cfg); err != nil {
		return nil, err
	}

	client, err := b.factory(*cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
	}

	description := strings.TrimSpace(cfg.Description)
	if description == "" {
		description, err = describe(ctx, client, cfg.Prompt)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"agent":       cfg.Name,
			"description": description,
		}).Debug("Generated agent description")
	}

	return chat.NewAgent(cfg.Name, description, cfg.Prompt, client), nil
}

func describe(ctx context.Context, client llm.Client, prompt string) (string, error) {
	out, err := client.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: describePrompt + prompt}})
	if err != nil {
		var invocation *llm.ModelInvocationError
		if errors.As(err, &invocation) {
			return "", err
		}
		return "", &llm.ModelInvocationError{Model: client.Model(), Err: err}
	}
	return strings.TrimSpace(out), nil
}

func (b *Builder) BuildAgentFile(ctx context.Context, path string) (*chat.Agent, error) {
	cfg, err := manifest.LoadAgent(path)
	if err != nil {
		return nil, err
	}
	agent, err := b.BuildAgent(ctx, cfg)
	if err != nil {
		return nil, withPath(err, path)
	}
	return agent, nil
}

// BuildTeam validates cfg and builds its agents concurrently. Participants
// keep the declaration order of cfg.Agents.
func (b *Builder) BuildTeam(ctx context.Context, cfg *models.TeamConfig) (*chat.Team, error) {
	if err := manifest.ValidateTeam(cfg); err != nil {
		return nil, err
	}

	client, err := b.factory(*cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("team model: %w", err)
	}

	agents := make([]*chat.Agent, len(cfg.Agents))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range cfg.Agents {
		g.Go(func() error {
			agent, err := b.BuildAgentFile(gctx, ref.File)
			if err != nil {
				return fmt.Errorf("failed to build agent %q: %w", ref.File, err)
			}
			agents[i] = agent
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = manifest.DefaultTeamName
	}
	termination := chat.Or(
		chat.MaxTurns(*cfg.Termination.MaxRound),
		chat.TextMention(cfg.Termination.Keyword),
	)

	team, err := chat.NewTeam(name, agents, client, cfg.Prompt, termination)
	if err != nil {
		return nil, fmt.Errorf("team %s: %w", name, err)
	}

	log.WithFields(logrus.Fields{
		"team":   name,
		"agents": len(agents),
	}).Debug("Built team")
	return team, nil
}

func (b *Builder) BuildTeamFile(ctx context.Context, path string) (*chat.Team, error) {
	cfg, err := manifest.LoadTeam(path)
	if err != nil {
		return nil, err
	}
	team, err := b.BuildTeam(ctx, cfg)
	if err != nil {
		return nil, withPath(err, path)
	}
	return team, nil
}

// withPath attributes a validation error to the file it came from.
func withPath(err error, path string) error {
	var parseErr *manifest.ConfigParseError
	if errors.As(err, &parseErr) && parseErr.Path == "" {
		parseErr.Path = path
	}
	var missing *manifest.MissingConfigKeyError
	if errors.As(err, &missing) && missing.Path == "" {
		missing.Path = path
	}
	return err
}
