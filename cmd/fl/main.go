package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"fleetline/internal/app"
	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/migrate"
	"fleetline/internal/repo"
	"fleetline/internal/seed"
	"fleetline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fleetline CLI",
	Long: `Fleetline runs the maintenance workflow for a vehicle fleet.
A maintenance event collects the ordered actions, blockers, part demands and
tool requirements for one asset; every business change is narrated into an
append-only log. 'fl build' prepares a database in phases: schema, critical
reference data, and optionally the debug data set.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLEETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int64("actor", 2, "acting actor id")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(blockerCmd())
	rootCmd.AddCommand(demandCmd())
	rootCmd.AddCommand(toolCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage fleet configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write default fleetline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	return cfg
}

func buildCmd() *cobra.Command {
	var debug bool
	var dataDir string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the database: migrate, install and verify critical data, optionally seed debug data",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if !debug {
				debug = cfg.Seeding.Debug
			}
			if dataDir == "" {
				dataDir = cfg.Seeding.DataDir
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			return app.Build(cmd.Context(), conn, cfg, logger(), app.BuildOptions{Debug: debug, DataDir: dataDir})
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "also install the debug data set")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory of seed data files overriding the embedded defaults")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the critical data set is present",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				crit := seed.Critical{Repo: r, Log: logger()}
				if err := crit.Verify(ctx); err != nil {
					return err
				}
				fmt.Println("critical data ok")
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install the debug data set",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if dataDir == "" {
				dataDir = cfg.Seeding.DataDir
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			return app.Build(cmd.Context(), conn, cfg, logger(), app.BuildOptions{Debug: true, DataDir: dataDir})
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory of seed data files overriding the embedded defaults")
	return cmd
}

func eventCmd() *cobra.Command {
	ev := &cobra.Command{Use: "event", Short: "Inspect maintenance events"}
	ev.AddCommand(&cobra.Command{
		Use:   "show <event-id>",
		Short: "Show one maintenance event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				e, err := r.GetEvent(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(e)
			})
		},
	})
	ev.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List maintenance events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, 0)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Asset", "Status", "Capability", "Scheduled start"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.AssetID, e.Status, e.CapabilityStatus, deref(e.ScheduledStart)})
				}
				tw.Render()
				return nil
			})
		},
	})
	start := &cobra.Command{
		Use:   "start <event-id>",
		Short: "Record the actual work start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			startAt, _ := cmd.Flags().GetString("start")
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				out, err := e.Context(id).Start(ctx, startAt, viper.GetInt64("actor"))
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	start.Flags().String("start", "", "start time (RFC 3339, default now)")
	ev.AddCommand(start)
	return ev
}

func actionCmd() *cobra.Command {
	act := &cobra.Command{Use: "action", Short: "Manage the ordered action list of an event"}

	list := &cobra.Command{
		Use:   "list <event-id>",
		Short: "List actions in sequence order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				actions, err := e.Context(id).Actions().List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "ID", "Name", "Source", "Done"})
				for _, a := range actions {
					tw.AppendRow(table.Row{a.Seq, a.ID, a.Name, a.Source, a.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	act.AddCommand(list)

	var position int
	var description string
	add := &cobra.Command{
		Use:   "add <event-id> <name>",
		Short: "Add a blank action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.Context(id).Actions().Create(ctx, engine.ActionCreateOptions{
					Name:        args[1],
					Description: description,
					Position:    position,
					ActorID:     viper.GetInt64("actor"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	add.Flags().IntVar(&position, "position", 0, "1-based insert position, 0 appends")
	add.Flags().StringVar(&description, "description", "", "action description")
	act.AddCommand(add)

	var protoPos int
	addProto := &cobra.Command{
		Use:   "add-proto <event-id> <proto-id>",
		Short: "Add an action from a proto",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0])
			if err != nil {
				return err
			}
			protoID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.Context(eventID).Actions().CreateFromProto(ctx, protoID, protoPos, viper.GetInt64("actor"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	addProto.Flags().IntVar(&protoPos, "position", 0, "1-based insert position, 0 appends")
	act.AddCommand(addProto)

	var tplPos int
	addTemplate := &cobra.Command{
		Use:   "add-template <event-id> <template-id>",
		Short: "Add an action from the template library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0])
			if err != nil {
				return err
			}
			tplID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.Context(eventID).Actions().CreateFromTemplate(ctx, tplID, tplPos, viper.GetInt64("actor"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	addTemplate.Flags().IntVar(&tplPos, "position", 0, "1-based insert position, 0 appends")
	act.AddCommand(addTemplate)

	var dupPos int
	var copyDemands, copyTools bool
	dup := &cobra.Command{
		Use:   "duplicate <event-id> <action-id>",
		Short: "Duplicate an action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0])
			if err != nil {
				return err
			}
			actionID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.Context(eventID).Actions().Duplicate(ctx, actionID, engine.DuplicateOptions{
					Position:    dupPos,
					ActorID:     viper.GetInt64("actor"),
					CopyDemands: copyDemands,
					CopyTools:   copyTools,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	dup.Flags().IntVar(&dupPos, "position", 0, "1-based insert position, 0 appends")
	dup.Flags().BoolVar(&copyDemands, "copy-demands", false, "copy open part demands")
	dup.Flags().BoolVar(&copyTools, "copy-tools", false, "copy tool requirements")
	act.AddCommand(dup)

	act.AddCommand(&cobra.Command{
		Use:   "delete <event-id> <action-id>",
		Short: "Delete an action and close the sequence gap",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0])
			if err != nil {
				return err
			}
			actionID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.Context(eventID).Actions().Delete(ctx, actionID, viper.GetInt64("actor"))
			})
		},
	})
	return act
}

func blockerCmd() *cobra.Command {
	bl := &cobra.Command{Use: "blocker", Short: "Manage capability blockers"}

	bl.AddCommand(&cobra.Command{
		Use:   "list <event-id>",
		Short: "List blockers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				blockers, err := e.Context(id).Blockers().List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(blockers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Code", "Reason", "Priority", "Start", "End"})
				for _, b := range blockers {
					tw.AppendRow(table.Row{b.ID, b.StatusCode, b.Reason, deref(b.Priority), b.StartTime, deref(b.EndTime)})
				}
				tw.Render()
				return nil
			})
		},
	})

	var priority, startTime, comment string
	open := &cobra.Command{
		Use:   "open <event-id> <status-code> <reason>",
		Short: "Open a blocker",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				opts := engine.BlockerOpenOptions{
					StatusCode: args[1],
					Reason:     args[2],
					StartTime:  startTime,
					ActorID:    viper.GetInt64("actor"),
					Comment:    comment,
				}
				if priority != "" {
					opts.Priority = &priority
				}
				b, err := e.Context(id).Blockers().Open(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	open.Flags().StringVar(&priority, "priority", "", "blocker priority")
	open.Flags().StringVar(&startTime, "start", "", "start time (RFC3339), defaults to now")
	open.Flags().StringVar(&comment, "comment", "", "operator comment")
	bl.AddCommand(open)

	var endTime, notes, closeComment string
	closeCmd := &cobra.Command{
		Use:   "close <event-id> <blocker-id>",
		Short: "Close a blocker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0])
			if err != nil {
				return err
			}
			blockerID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				b, err := e.Context(eventID).Blockers().Close(ctx, blockerID, engine.BlockerCloseOptions{
					EndTime: endTime,
					Notes:   notes,
					ActorID: viper.GetInt64("actor"),
					Comment: closeComment,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	closeCmd.Flags().StringVar(&endTime, "end", "", "end time (RFC3339), defaults to now")
	closeCmd.Flags().StringVar(&notes, "notes", "", "resolution notes")
	closeCmd.Flags().StringVar(&closeComment, "comment", "", "operator comment")
	bl.AddCommand(closeCmd)

	return bl
}

func demandCmd() *cobra.Command {
	dm := &cobra.Command{Use: "demand", Short: "Manage part demands"}

	dm.AddCommand(&cobra.Command{
		Use:   "add <event-id> <action-id> <part-id> <quantity>",
		Short: "Create a part demand",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, actionID, partID, qty, err := parseDemandArgs(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				d, err := e.Context(eventID).Demands().Create(ctx, actionID, partID, qty, viper.GetInt64("actor"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	})

	demandOp := func(use, short string, op func(ctx context.Context, e *engine.Engine, eventID, demandID int64) (domain.PartDemand, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				eventID, err := parseID(args[0])
				if err != nil {
					return err
				}
				demandID, err := parseID(args[1])
				if err != nil {
					return err
				}
				return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
					d, err := op(ctx, e, eventID, demandID)
					if err != nil {
						return err
					}
					return printJSONOrTable(d)
				})
			},
		}
	}

	dm.AddCommand(demandOp("approve <event-id> <demand-id>", "Approve a demand",
		func(ctx context.Context, e *engine.Engine, eventID, demandID int64) (domain.PartDemand, error) {
			return e.Context(eventID).Demands().Approve(ctx, demandID, viper.GetInt64("actor"))
		}))
	dm.AddCommand(demandOp("cancel <event-id> <demand-id>", "Cancel a demand",
		func(ctx context.Context, e *engine.Engine, eventID, demandID int64) (domain.PartDemand, error) {
			return e.Context(eventID).Demands().Cancel(ctx, demandID, viper.GetInt64("actor"))
		}))

	quantityOp := func(use, short string, op func(ctx context.Context, e *engine.Engine, eventID, demandID int64, qty float64) (domain.PartDemand, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				eventID, err := parseID(args[0])
				if err != nil {
					return err
				}
				demandID, err := parseID(args[1])
				if err != nil {
					return err
				}
				qty, err := parseQuantity(args[2])
				if err != nil {
					return err
				}
				return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
					d, err := op(ctx, e, eventID, demandID, qty)
					if err != nil {
						return err
					}
					return printJSONOrTable(d)
				})
			},
		}
	}

	dm.AddCommand(quantityOp("issue <event-id> <demand-id> <quantity>", "Issue quantity against a demand",
		func(ctx context.Context, e *engine.Engine, eventID, demandID int64, qty float64) (domain.PartDemand, error) {
			return e.Context(eventID).Demands().Issue(ctx, demandID, qty, viper.GetInt64("actor"))
		}))
	dm.AddCommand(quantityOp("undo-issue <event-id> <demand-id> <quantity>", "Undo an issue",
		func(ctx context.Context, e *engine.Engine, eventID, demandID int64, qty float64) (domain.PartDemand, error) {
			return e.Context(eventID).Demands().UndoIssue(ctx, demandID, qty, viper.GetInt64("actor"))
		}))
	dm.AddCommand(quantityOp("update <event-id> <demand-id> <quantity>", "Change the required quantity",
		func(ctx context.Context, e *engine.Engine, eventID, demandID int64, qty float64) (domain.PartDemand, error) {
			return e.Context(eventID).Demands().Update(ctx, demandID, qty, viper.GetInt64("actor"))
		}))

	return dm
}

func toolCmd() *cobra.Command {
	tl := &cobra.Command{Use: "tool", Short: "Manage tool requirements"}
	var quantity float64
	add := &cobra.Command{
		Use:   "add <event-id> <action-id> <tool-id>",
		Short: "Attach a tool requirement to an action",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0])
			if err != nil {
				return err
			}
			actionID, err := parseID(args[1])
			if err != nil {
				return err
			}
			toolID, err := parseID(args[2])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var qty *float64
				if cmd.Flags().Changed("quantity") {
					qty = &quantity
				}
				t, err := e.Context(eventID).Tools().Add(ctx, actionID, toolID, qty, viper.GetInt64("actor"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	add.Flags().Float64Var(&quantity, "quantity", 0, "tool quantity")
	tl.AddCommand(add)
	return tl
}

func completeCmd() *cobra.Command {
	var start, end, comment string
	var hours float64
	var meters []float64
	cmd := &cobra.Command{
		Use:   "complete <event-id>",
		Short: "Complete a maintenance event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				opts := engine.CompletionOptions{
					StartDate:     start,
					EndDate:       end,
					BillableHours: hours,
					Comment:       comment,
					ActorID:       viper.GetInt64("actor"),
				}
				for i := 0; i < len(meters) && i < 4; i++ {
					v := meters[i]
					opts.Meters[i] = &v
				}
				ev, err := e.Context(id).Completion().Complete(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "work start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "work end (RFC3339)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "billable hours")
	cmd.Flags().StringVar(&comment, "comment", "", "completion comment")
	cmd.Flags().Float64SliceVar(&meters, "meter", nil, "meter readings in slot order, up to four")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Read the narration log"}
	var limit int
	var eventID int64
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent narration entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.TailNarration(ctx, eventID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Event", "Actor", "Kind", "Entry"})
				for _, n := range entries {
					tw.AppendRow(table.Row{n.TS, n.EventID, n.ActorID, n.Provenance, n.Body})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 20, "number of entries")
	tail.Flags().Int64Var(&eventID, "event", 0, "restrict to one event")
	lg.AddCommand(tail)
	return lg
}

func tokenCmd() *cobra.Command {
	var roles []string
	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Mint a bearer token for the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := parseID(args[0])
			if err != nil {
				return err
			}
			secret := os.Getenv("FLEETLINE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("FLEETLINE_JWT_SECRET is required")
			}
			token, err := server.IssueToken(secret, actorID, roles)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claims")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			log := logger()
			e := engine.New(conn, cfg, log)
			secret := os.Getenv("FLEETLINE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("FLEETLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, Logger: log},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Fleetline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8484", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	e := engine.New(conn, cfg, logger())
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func logger() *zap.Logger {
	if viper.GetBool("verbose") {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseQuantity(s string) (float64, error) {
	var q float64
	if _, err := fmt.Sscanf(s, "%g", &q); err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return q, nil
}

func parseDemandArgs(args []string) (eventID, actionID, partID int64, qty float64, err error) {
	if eventID, err = parseID(args[0]); err != nil {
		return
	}
	if actionID, err = parseID(args[1]); err != nil {
		return
	}
	if partID, err = parseID(args[2]); err != nil {
		return
	}
	qty, err = parseQuantity(args[3])
	return
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
