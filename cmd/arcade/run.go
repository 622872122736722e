package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"arcadeops/internal/app"
	"arcadeops/internal/checklist"
	"arcadeops/internal/config"
	"arcadeops/internal/db"
	"arcadeops/internal/engine"
	"arcadeops/internal/inspect"
	"arcadeops/internal/notice"
	"arcadeops/internal/tui"
)

func checklistCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "checklist",
		Short: "Opening checklist",
		Long:  "The opening checklist is walked one step at a time. A step is answered Yes/Done or No/Issue, or by its action; the run is saved when you finish.",
	}
	c.AddCommand(checklistRunCmd())
	c.AddCommand(checklistProgressCmd())
	c.AddCommand(checklistHistoryCmd())
	return c
}

func checklistRunCmd() *cobra.Command {
	var prompt bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Walk the opening checklist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollaborators(cmd.Context(), func(ctx context.Context, cfg *config.Config, c app.Collaborators) error {
				reg, err := cfg.Registry()
				if err != nil {
					return err
				}
				if prompt || !interactive() {
					w := checklist.NewWizard(reg, checklist.WithRunSink(c.Runs), checklist.WithNotices(tui.PromptSink(os.Stdout)))
					return tui.RunWizardPrompt(ctx, w, os.Stdin, os.Stdout)
				}
				logSink, closeLog, err := sessionLog()
				if err != nil {
					return err
				}
				defer closeLog()
				ch := uiNotices(logSink)
				defer closeNotices(ch)
				w := checklist.NewWizard(reg, checklist.WithRunSink(c.Runs), checklist.WithNotices(notice.Fanout(ch, logSink)))
				return tui.RunWizard(ctx, w, ch.C())
			})
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "use line prompts instead of the full-screen UI")
	return cmd
}

func checklistProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show the X/N Done badge of the latest run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetString("server") != "" {
				p, err := remoteClient().ChecklistProgress(cmd.Context())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Println(p.Label)
				return nil
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ChecklistProgress(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Println(p.Label)
				return nil
			})
		},
	}
}

func checklistHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved checklist runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				runs, err := e.ListChecklistRuns(ctx, "", limit)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, table.Row{r.FinishedAt, fmt.Sprintf("%d/%d", r.Completed, r.TotalSteps), r.Answered, r.IssueCount, r.CompletedBy})
				}
				return printJSONOrTable(runs, table.Row{"Finished", "Done", "Answered", "Issues", "By"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs")
	return cmd
}

func inspectCmd() *cobra.Command {
	var prompt bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect one game category by category",
		Long:  "Pick a game, then mark Safety, Power/Boot, Reader, Controls, Sound, Screen, Lights, Tickets and Appearance as OK, Issue or N/A. Issues are filed in the background. A Reader issue marks Controls and Tickets N/A.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollaborators(cmd.Context(), func(ctx context.Context, cfg *config.Config, c app.Collaborators) error {
				if prompt || !interactive() {
					rec := &notice.Recorder{}
					sink := notice.Fanout(rec, tui.PromptSink(os.Stdout))
					d := inspect.NewAsyncDispatcher(c.Issues, sink)
					in, err := inspect.New(cfg.InspectSettings(), inspect.WithFinder(c.Units), inspect.WithDispatcher(d), inspect.WithNotices(sink))
					if err != nil {
						return err
					}
					return tui.RunInspectorPrompt(ctx, in, d, rec, os.Stdin, os.Stdout)
				}
				logSink, closeLog, err := sessionLog()
				if err != nil {
					return err
				}
				defer closeLog()
				ch := uiNotices(logSink)
				defer closeNotices(ch)
				sink := notice.Fanout(ch, logSink)
				d := inspect.NewAsyncDispatcher(c.Issues, sink)
				in, err := inspect.New(cfg.InspectSettings(), inspect.WithFinder(c.Units), inspect.WithDispatcher(d), inspect.WithNotices(sink))
				if err != nil {
					return err
				}
				return tui.RunInspector(ctx, in, d, ch.C())
			})
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "use line prompts instead of the full-screen UI")
	return cmd
}

// uiNotices buffers notices for the full-screen UI. Every notice already reaches
// the session log through logSink; a dropped one adds a marker line there.
func uiNotices(logSink notice.LogSink) *notice.Channel {
	return notice.NewChannel(64, notice.WithOverflow(notice.SinkFunc(func(n notice.Notice) {
		logSink.Logger.Warn("notice not shown", "code", n.Code, "level", string(n.Level))
	})))
}

func closeNotices(ch *notice.Channel) {
	ch.Close()
	if n := ch.Dropped(); n > 0 {
		slog.Warn("some notices were not shown; see .arcade/session.log", "dropped", n)
	}
}

// sessionLog mirrors notices into <workspace>/.arcade/session.log while the
// full-screen UI owns the terminal.
func sessionLog() (notice.LogSink, func(), error) {
	dir, err := db.EnsureWorkspace(viper.GetString("workspace"))
	if err != nil {
		return notice.LogSink{}, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "session.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return notice.LogSink{}, nil, err
	}
	logger, err := newLogger(f, "info")
	if err != nil {
		f.Close()
		return notice.LogSink{}, nil, err
	}
	return notice.LogSink{Logger: logger.With("actor", viper.GetString("actor-id"))}, func() { f.Close() }, nil
}
