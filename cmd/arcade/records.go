package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"arcadeops/internal/domain"
	"arcadeops/internal/engine"
	"arcadeops/internal/repo"
	arcadesdk "arcadeops/sdk/go"
)

func gameCmd() *cobra.Command {
	g := &cobra.Command{Use: "game", Short: "Manage games on the floor"}
	g.AddCommand(gameAddCmd())
	g.AddCommand(gameListCmd())
	g.AddCommand(gameUpdateCmd())
	g.AddCommand(gameDeleteCmd())
	return g
}

func gameAddCmd() *cobra.Command {
	var opts engine.GameCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.CreateGame(ctx, opts)
				if err != nil {
					return err
				}
				return printGames([]domain.Game{g})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "game name")
	cmd.Flags().StringVar(&opts.Status, "status", "Up", "Up or Down")
	cmd.Flags().StringVar(&opts.DownReason, "down-reason", "", "why the game is down")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func gameListCmd() *cobra.Command {
	var f repo.GameFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List or search games",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetString("server") != "" {
				c := remoteClient()
				var (
					games []arcadesdk.Game
					err   error
				)
				if f.Query != "" {
					games, err = c.SearchGames(cmd.Context(), f.Query, f.Limit)
				} else {
					games, err = c.ListGames(cmd.Context(), f.Status)
				}
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(games))
				for _, g := range games {
					rows = append(rows, table.Row{g.ID, g.Name, g.Status, ""})
				}
				return printJSONOrTable(games, table.Row{"ID", "Name", "Status", "Down reason"}, rows)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				games, err := e.ListGames(ctx, f)
				if err != nil {
					return err
				}
				return printGames(games)
			})
		},
	}
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "name contains")
	cmd.Flags().StringVar(&f.Status, "status", "", "Up or Down")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func gameUpdateCmd() *cobra.Command {
	var name, status, reason string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a game or change its up/down status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.GameUpdateOptions{
				ID:         args[0],
				Name:       changed(cmd, "name", name),
				Status:     changed(cmd, "status", status),
				DownReason: changed(cmd, "down-reason", reason),
				ActorID:    viper.GetString("actor-id"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.UpdateGame(ctx, opts)
				if err != nil {
					return err
				}
				return printGames([]domain.Game{g})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&status, "status", "", "Up or Down")
	cmd.Flags().StringVar(&reason, "down-reason", "", "why the game is down")
	return cmd
}

func gameDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteGame(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func printGames(games []domain.Game) error {
	rows := make([]table.Row, 0, len(games))
	for _, g := range games {
		rows = append(rows, table.Row{g.ID, g.Name, g.Status, g.DownReason})
	}
	return printJSONOrTable(games, table.Row{"ID", "Name", "Status", "Down reason"}, rows)
}

func issueCmd() *cobra.Command {
	is := &cobra.Command{
		Use:   "issue",
		Short: "Manage issues",
		Long:  "Issues get sequential IS-### ids. Filing an issue that matches an open one (same game and category, or same area, location and description) is refused unless --allow-duplicate is given.",
	}
	is.AddCommand(issueAddCmd())
	is.AddCommand(issueListCmd())
	is.AddCommand(issueShowCmd())
	is.AddCommand(issueUpdateCmd())
	is.AddCommand(issueDeleteCmd())
	is.AddCommand(issueCountsCmd())
	return is
}

func issueAddCmd() *cobra.Command {
	var opts engine.IssueCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "File an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if viper.GetString("server") != "" {
				is, err := remoteClient().CreateIssue(cmd.Context(), arcadesdk.IssueRequest{
					Type: opts.Type, Area: opts.Area, GameID: opts.GameID, EquipmentName: opts.EquipmentName,
					EquipmentLocation: opts.EquipmentLocation, Category: opts.Category, Priority: opts.Priority,
					Description: opts.Description, Notes: opts.Notes, Status: opts.Status, AllowDuplicate: opts.AllowDuplicate,
				})
				if err != nil {
					return duplicateHint(err)
				}
				return printJSON(is)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				is, err := e.CreateIssue(ctx, opts)
				if err != nil {
					return duplicateHint(err)
				}
				return printIssues([]domain.Issue{is})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", "facility", "facility or game")
	cmd.Flags().StringVar(&opts.Area, "area", "", "area of the building")
	cmd.Flags().StringVar(&opts.GameID, "game-id", "", "game id for game issues")
	cmd.Flags().StringVar(&opts.EquipmentName, "equipment", "", "equipment name")
	cmd.Flags().StringVar(&opts.EquipmentLocation, "location", "", "equipment location")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (defaults per config)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "what is wrong")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&opts.Status, "status", "", "initial status")
	cmd.Flags().StringVar(&opts.TargetDate, "target-date", "", "target date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "assignee")
	cmd.Flags().BoolVar(&opts.AllowDuplicate, "allow-duplicate", false, "file even if an equivalent issue is open")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

// duplicateHint points at --allow-duplicate when the backend refused a duplicate.
func duplicateHint(err error) error {
	var dup interface{ ExistingIssueID() string }
	if errors.As(err, &dup) {
		return fmt.Errorf("%w (rerun with --allow-duplicate to file it anyway)", err)
	}
	return err
}

func issueListCmd() *cobra.Command {
	var f repo.IssueFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetString("server") != "" {
				issues, err := remoteClient().ListIssues(cmd.Context(), arcadesdk.IssueFilters{
					Status: f.Status, Area: f.Area, GameID: f.GameID, Query: f.Query, Limit: f.Limit,
				})
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(issues))
				for _, is := range issues {
					rows = append(rows, table.Row{is.ID, is.Priority, is.Status, is.EquipmentLocation, is.Category, is.Description})
				}
				return printJSONOrTable(issues, issueHeader, rows)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				issues, err := e.ListIssues(ctx, f)
				if err != nil {
					return err
				}
				return printIssues(issues)
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter, e.g. open or \"in progress\"")
	cmd.Flags().StringVar(&f.Area, "area", "", "area filter")
	cmd.Flags().StringVar(&f.GameID, "game-id", "", "game filter")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "text search")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func issueShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				is, err := e.Repo.GetIssue(ctx, nil, args[0])
				if err != nil {
					return err
				}
				return printJSON(is)
			})
		},
	}
}

func issueUpdateCmd() *cobra.Command {
	var area, location, category, priority, desc, notes, status, target, assigned string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.IssueUpdateOptions{
				ID:                args[0],
				Area:              changed(cmd, "area", area),
				EquipmentLocation: changed(cmd, "location", location),
				Category:          changed(cmd, "category", category),
				Priority:          changed(cmd, "priority", priority),
				Description:       changed(cmd, "description", desc),
				Notes:             changed(cmd, "notes", notes),
				Status:            changed(cmd, "status", status),
				TargetDate:        changed(cmd, "target-date", target),
				AssignedTo:        changed(cmd, "assigned-to", assigned),
				ActorID:           viper.GetString("actor-id"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				is, err := e.UpdateIssue(ctx, opts)
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{is})
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "area")
	cmd.Flags().StringVar(&location, "location", "", "equipment location")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&status, "status", "", "status, e.g. \"in progress\" or resolved")
	cmd.Flags().StringVar(&target, "target-date", "", "target date YYYY-MM-DD")
	cmd.Flags().StringVar(&assigned, "assigned-to", "", "assignee")
	return cmd
}

func issueDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteIssue(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func issueCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show open and urgent issue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var open, urgent int
			if viper.GetString("server") != "" {
				c, err := remoteClient().IssueCounts(cmd.Context())
				if err != nil {
					return err
				}
				open, urgent = c.Open, c.Urgent
			} else {
				err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					c, err := e.IssueCounts(ctx, "")
					open, urgent = c.Open, c.Urgent
					return err
				})
				if err != nil {
					return err
				}
			}
			counts := domain.IssueCounts{Open: open, Urgent: urgent}
			return printJSONOrTable(counts, table.Row{"Open", "Urgent"}, []table.Row{{open, urgent}})
		},
	}
}

var issueHeader = table.Row{"ID", "Priority", "Status", "Location", "Category", "Description"}

func printIssues(issues []domain.Issue) error {
	rows := make([]table.Row, 0, len(issues))
	for _, is := range issues {
		rows = append(rows, table.Row{is.ID, is.Priority, is.Status, is.EquipmentLocation, is.Category, is.Description})
	}
	return printJSONOrTable(issues, issueHeader, rows)
}

func pmCmd() *cobra.Command {
	pm := &cobra.Command{Use: "pm", Short: "Preventative maintenance log"}
	var opts engine.PMLogOptions
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Record a PM visit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.CompletedBy == "" {
				opts.CompletedBy = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.LogPM(ctx, opts)
				if err != nil {
					return err
				}
				return printPMs([]domain.PMLog{p})
			})
		},
	}
	logCmd.Flags().StringVar(&opts.GameName, "game", "", "game name")
	logCmd.Flags().StringVar(&opts.PMDate, "date", "", "PM date YYYY-MM-DD (default today)")
	logCmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	logCmd.Flags().StringVar(&opts.CompletedBy, "by", "", "technician (default --actor-id)")
	_ = logCmd.MarkFlagRequired("game")

	var game string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List PM visits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pms, err := e.ListPMs(ctx, "", game, limit)
				if err != nil {
					return err
				}
				return printPMs(pms)
			})
		},
	}
	listCmd.Flags().StringVar(&game, "game", "", "game name filter")
	listCmd.Flags().IntVar(&limit, "limit", 50, "max results")

	pm.AddCommand(logCmd, listCmd)
	return pm
}

func printPMs(pms []domain.PMLog) error {
	rows := make([]table.Row, 0, len(pms))
	for _, p := range pms {
		rows = append(rows, table.Row{p.PMDate, p.GameName, p.CompletedBy, p.Notes})
	}
	return printJSONOrTable(pms, table.Row{"Date", "Game", "By", "Notes"}, rows)
}

func settingsCmd() *cobra.Command {
	s := &cobra.Command{Use: "settings", Short: "Facility settings"}
	tpt := &cobra.Command{Use: "tpt", Short: "Tickets-per-token targets"}
	tpt.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show TPT targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetString("server") != "" {
				t, err := remoteClient().TPTSettings(cmd.Context())
				if err != nil {
					return err
				}
				return printTPT(domain.TPTSettings{LowestDesired: t.LowestDesired, HighestDesired: t.HighestDesired, Target: t.Target, IncludeBirthdayBlast: t.IncludeBirthdayBlast, UpdatedAt: t.UpdatedAt})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.TPTSettings(ctx, "")
				if err != nil {
					return err
				}
				return printTPT(t)
			})
		},
	})
	var next domain.TPTSettings
	set := &cobra.Command{
		Use:   "set",
		Short: "Change TPT targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cur, err := e.TPTSettings(ctx, "")
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("lowest") {
					cur.LowestDesired = next.LowestDesired
				}
				if cmd.Flags().Changed("highest") {
					cur.HighestDesired = next.HighestDesired
				}
				if cmd.Flags().Changed("target") {
					cur.Target = next.Target
				}
				if cmd.Flags().Changed("birthday-blast") {
					cur.IncludeBirthdayBlast = next.IncludeBirthdayBlast
				}
				t, err := e.SetTPTSettings(ctx, "", cur, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printTPT(t)
			})
		},
	}
	set.Flags().Float64Var(&next.LowestDesired, "lowest", 0, "lowest desired TPT")
	set.Flags().Float64Var(&next.HighestDesired, "highest", 0, "highest desired TPT")
	set.Flags().Float64Var(&next.Target, "target", 0, "target TPT")
	set.Flags().BoolVar(&next.IncludeBirthdayBlast, "birthday-blast", false, "include the birthday blaster on the sheet")
	tpt.AddCommand(set)
	s.AddCommand(tpt)
	return s
}

func printTPT(t domain.TPTSettings) error {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return printJSONOrTable(t, table.Row{"Lowest", "Target", "Highest", "Birthday blaster"},
		[]table.Row{{f(t.LowestDesired), f(t.Target), f(t.HighestDesired), t.IncludeBirthdayBlast}})
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "API keys for kiosks and scripts"}
	var name, actor string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, raw, err := e.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": raw})
				}
				fmt.Printf("API key for %s: %s\nStore it now; it cannot be shown again.\n", key.ActorID, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	create.Flags().StringVar(&actor, "actor", "", "actor the key acts as (default --actor-id)")

	var owner string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for _, key := range keys {
					rows = append(rows, table.Row{key.ID, key.ActorID, key.Name, key.CreatedAt})
				}
				return printJSONOrTable(keys, table.Row{"ID", "Actor", "Name", "Created"}, rows)
			})
		},
	}
	list.Flags().StringVar(&owner, "actor", "", "only keys of this actor")

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	k.AddCommand(create, list, revoke)
	return k
}

func eventsCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the audit log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(events))
				for _, ev := range events {
					rows = append(rows, table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.ActorID})
				}
				return printJSONOrTable(events, table.Row{"ID", "Time", "Type", "Entity", "Actor"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().Int64Var(&f.Before, "before", 0, "only events older than this id")
	return cmd
}
