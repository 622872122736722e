package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"arcadeops/internal/app"
	"arcadeops/internal/config"
	"arcadeops/internal/db"
	"arcadeops/internal/engine"
	"arcadeops/internal/migrate"
	arcadesdk "arcadeops/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "arcade",
	Short: "Arcade facility operations",
	Long: `arcade runs the day-to-day paperwork of an arcade floor.
- Opening checklist: a step-by-step walk of the building before doors open; each step is answered yes/no or by an action such as printing the TPT sheet.
- Inspection: pick a game, then mark every category OK, Issue or N/A. Each Issue becomes a ticket. When the card reader is down, Controls and Tickets are skipped.
- Issues: tickets with IS-### ids, priorities and statuses; duplicates of open tickets are refused unless forced.
- Games, PM log and TPT targets are kept per facility.
Everything is stored in <workspace>/.arcade/arcade.db, or sent to a running 'arcade serve' with --server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(os.Stderr, viper.GetString("log-level"))
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		if viper.GetString("server") != "" {
			return nil
		}
		_, err = db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ARCADE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("facility", "", "facility id (defaults to the only facility in the workspace)")
	flags.String("server", "", "base URL of an arcade API server, e.g. http://127.0.0.1:8080/v0")
	flags.String("api-key", "", "API key for --server")
	flags.String("token", "", "bearer token for --server")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "actor-id", "facility", "server", "api-key", "token", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checklistCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(gameCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(pmCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(eventsCmd())
}

func initCmd() *cobra.Command {
	var id, name, file string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a facility in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
				cfg := config.Default(id)
				if file != "" {
					loaded, err := config.FromFile(file)
					if err != nil {
						return err
					}
					loaded.Facility.ID = id
					cfg = loaded
				}
				f, err := engine.New(conn, cfg).InitFacility(ctx, id, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(f)
				}
				fmt.Printf("Facility %s ready in %s\n", f.ID, db.Path(viper.GetString("workspace")))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "facility id")
	cmd.Flags().StringVar(&name, "name", "", "facility display name")
	cmd.Flags().StringVar(&file, "config", "", "initial arcade.yml (defaults to the stock config)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Show or import the facility config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the facility config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config)
				}
				out, err := e.Config.YAML()
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(out)
				return err
			})
		},
	})
	var file string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Replace the facility config from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg, err := config.FromFile(file)
				if err != nil {
					return err
				}
				if cfg.Facility.ID == "" {
					cfg.Facility.ID = e.FacilityID()
				}
				if cfg.Facility.ID != e.FacilityID() {
					return fmt.Errorf("config is for facility %q, workspace facility is %q", cfg.Facility.ID, e.FacilityID())
				}
				if err := e.ImportConfig(ctx, cfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("Imported %s (%d checklist steps)\n", filepath.Base(file), len(cfg.Checklist.Steps))
				return nil
			})
		},
	}
	imp.Flags().StringVar(&file, "file", "", "path to arcade.yml")
	_ = imp.MarkFlagRequired("file")
	cfg.AddCommand(imp)
	return cfg
}

// --- helpers ---

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func withDB(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	return fn(ctx, conn)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	if viper.GetString("server") != "" {
		return fmt.Errorf("this command works on the local workspace only; drop --server")
	}
	return withDB(ctx, func(ctx context.Context, conn *sql.DB) error {
		cfg, err := app.ResolveFacilityAndConfig(ctx, conn, viper.GetString("facility"), viper.GetString("actor-id"))
		if err != nil {
			return err
		}
		return fn(ctx, engine.New(conn, cfg))
	})
}

// withCollaborators hands fn the facility config and the issue, game and run
// backends, either the local engine or the --server API.
func withCollaborators(ctx context.Context, fn func(context.Context, *config.Config, app.Collaborators) error) error {
	if viper.GetString("server") == "" {
		return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
			return fn(ctx, e.Config, app.Local(e, viper.GetString("actor-id")))
		})
	}
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default(viper.GetString("facility"))
	}
	return fn(ctx, cfg, app.Remote(remoteClient()))
}

func remoteClient() *arcadesdk.Client {
	c := arcadesdk.New(viper.GetString("server"))
	c.APIKey = viper.GetString("api-key")
	c.BearerToken = viper.GetString("token")
	c.ActorID = viper.GetString("actor-id")
	return c
}

// interactive reports whether both ends of the session are a terminal.
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

// changed returns a pointer to v when the flag was set, for partial updates.
func changed(cmd *cobra.Command, flag, v string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &v
}
