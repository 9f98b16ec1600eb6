package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mpataki/ftry/internal/config"
	"github.com/mpataki/ftry/internal/hitl"
	"github.com/mpataki/ftry/internal/logging"
	"github.com/mpataki/ftry/internal/manifest"
	"github.com/mpataki/ftry/internal/orchestrator"
	"github.com/mpataki/ftry/internal/storage"
	"github.com/mpataki/ftry/internal/tui"
	"github.com/spf13/cobra"
)

var shoutStyle = lipgloss.NewStyle().
	Bold(true).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("205")).
	Padding(0, 2)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ftry",
		Short:        "Run agents and teams of agents from YAML files",
		Long:         "ftry builds chat agents and teams from YAML configuration and runs them, optionally with a human reviewing every message.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Settings file (default ~/.ftry/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(newPopCommand())
	rootCmd.AddCommand(newKickflipCommand())
	rootCmd.AddCommand(newShoutCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newBrowseCommand())
	return rootCmd
}

// app is what every store-backed command needs.
type app struct {
	cfg   *config.Config
	store *storage.Storage
	orch  *orchestrator.Orchestrator
	in    *bufio.Reader
}

func (a *app) Close() error {
	return a.store.Close()
}

func openApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.New()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	if level == "" {
		level = cfg.Log.Level
	}
	if format == "" {
		format = cfg.Log.Format
	}
	if err := logging.Configure(level, format); err != nil {
		return nil, err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := manifest.LoadEnvFiles(cfg.EnvFiles...); err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The task prompt and HITL reviews share one reader so neither
	// buffers input meant for the other.
	in := bufio.NewReader(cmd.InOrStdin())
	orch := orchestrator.New(orchestrator.Options{
		Storage:      store,
		Out:          cmd.OutOrStdout(),
		WorkspaceDir: filepath.Join(cfg.DataDir, "workspaces"),
		DefaultTask:  cfg.DefaultTask,
		HITL: hitl.Options{
			In:      in,
			Out:     cmd.OutOrStdout(),
			Logging: cfg.HITL.Logging,
			LogDir:  cfg.HITL.LogDir,
			Editor:  cfg.Editor(),
		},
	})

	return &app{cfg: cfg, store: store, orch: orch, in: in}, nil
}

func newPopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pop",
		Short: "Pop up an agent, a team, or several teams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			teamPath, _ := cmd.Flags().GetString("team")
			agentPath, _ := cmd.Flags().GetString("agent")
			teamsPath, _ := cmd.Flags().GetString("teams")
			prompt, _ := cmd.Flags().GetString("prompt")
			review, _ := cmd.Flags().GetBool("hitl")

			if teamsPath != "" && review {
				return errors.New("--hitl cannot be combined with --teams")
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if teamsPath != "" {
				if prompt != "" {
					fmt.Fprintln(out, "Task passed along: ", prompt)
				}
				_, _, err := a.orch.RunTeams(ctx, teamsPath, prompt)
				return err
			}

			task, err := readTask(a.in, out, prompt)
			if err != nil {
				return err
			}

			if agentPath != "" {
				_, err = a.orch.RunAgent(ctx, agentPath, task, review)
				return err
			}
			_, err = a.orch.RunTeam(ctx, teamPath, task, review)
			return err
		},
	}

	cmd.Flags().StringP("team", "t", "", "Team description file")
	cmd.Flags().StringP("agent", "a", "", "Agent description file")
	cmd.Flags().String("teams", "", "Multi-team description file; teams run in parallel")
	cmd.Flags().StringP("prompt", "p", "", "The prompt to use")
	cmd.Flags().Bool("hitl", false, "Review every AI message before it is passed along")
	cmd.MarkFlagsMutuallyExclusive("team", "agent", "teams")
	cmd.MarkFlagsOneRequired("team", "agent", "teams")
	return cmd
}

// readTask returns prompt when set, otherwise asks for the task on in.
func readTask(in *bufio.Reader, out io.Writer, prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprintln(out, "Task passed along: ", prompt)
		return prompt, nil
	}

	fmt.Fprint(out, "Task: ")
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read task: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func newKickflipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kickflip",
		Short: "Ask for a kickflip",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Hey bro! Do a kickflip!")
		},
	}
}

func newShoutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shout [message]",
		Short: "Print a message in a box",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, _ := cmd.Flags().GetString("message")
			if msg == "" && len(args) > 0 {
				msg = args[0]
			}
			if msg == "" {
				return errors.New("nothing to shout: pass a message or -m")
			}
			fmt.Fprintln(cmd.OutOrStdout(), shoutStyle.Render(strings.ToUpper(msg)))
			return nil
		},
	}

	cmd.Flags().StringP("message", "m", "", "Message to shout (wins over the argument)")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.orch.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				return nil
			}

			for _, s := range sessions {
				fmt.Fprintf(out, "%s %-5s [%s] %s %s\n",
					shortID(s.ID), s.Kind, s.Status,
					truncate(s.Source, 40), storage.FormatTimeAgo(s.CreatedAt))
			}
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show session status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			session, err := a.orch.GetSession(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s (%s)\n", session.ID, session.Kind)
			fmt.Fprintf(out, "Source: %s\n", session.Source)
			fmt.Fprintf(out, "Status: %s\n", session.Status)
			fmt.Fprintf(out, "Task: %s\n", session.Task)
			if session.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", session.Error)
			}
			if session.HITLLogPath != "" {
				fmt.Fprintf(out, "HITL log: %s\n", session.HITLLogPath)
			}

			runs, err := a.orch.GetTeamRuns(ctx, session.ID)
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				fmt.Fprintln(out, "\nTeams:")
				for _, run := range runs {
					line := fmt.Sprintf("  %d. %s [%s]", run.Index+1, run.Name, run.Status)
					if run.Error != "" {
						line += " " + run.Error
					}
					fmt.Fprintln(out, line)
				}
			}

			n, err := a.store.CountInterventions(ctx, session.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				fmt.Fprintf(out, "\nInterventions: %d\n", n)
			}
			return nil
		},
	}
}

func newBrowseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse session history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p := tea.NewProgram(tui.NewApp(a.orch), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
