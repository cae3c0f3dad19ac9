package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planforge/internal/config"
	"planforge/internal/db"
	"planforge/internal/engine"
	"planforge/internal/migrate"
	"planforge/internal/plan"
)

var rootCmd = &cobra.Command{
	Use:   "pf",
	Short: "Planforge CLI",
	Long: `Planforge keeps a hierarchy of work plans as plain markdown documents.
- Project: plan.md at the root, rolling up its workstreams.
- Workstreams: workstreams/WS-*/plan.md, rolling up their jobs.
- Jobs: workstreams/WS-*/jobs/WI-*/plan.md; the unit of execution with
  dependencies, stakes, iteration budgets and completion gates.
- orchestrate computes what can run now, in which waves, and the critical path.
- complete only succeeds when agreement, dependencies, truth, reward and
  evidence gates all pass; then the completion promise is emitted.
- invalidate resets downstream truth state when a job's outputs change.`,
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
	viper.SetEnvPrefix("PLANFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("project", "p", ".", "project directory (or any directory inside it)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(workstreamCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(orchestrateCmd())
	rootCmd.AddCommand(invalidateCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(logCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage the project plan"}
	prj.AddCommand(projectNewCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectNewCmd() *cobra.Command {
	var title, slug, dir string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Scaffold a new project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = viper.GetString("project")
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			return withEngineAt(cmd.Context(), dir, func(ctx context.Context, e engine.Engine) error {
				p, err := e.InitProject(ctx, title, slug, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&slug, "slug", "", "optional slug override")
	cmd.Flags().StringVar(&dir, "dir", "", "directory to create the project in")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the project with its workstreams and jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Store.Scan()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"project":     t.Project,
						"workstreams": t.Workstreams,
						"jobs":        t.Jobs,
					})
				}
				fmt.Printf("%s %s [%s]\n", t.Project.ID, t.Project.Title, t.Project.Status)
				for _, ws := range t.Workstreams {
					fmt.Printf("  %s %s [%s]\n", ws.ID, ws.Title, ws.Status)
					for _, j := range t.WorkstreamJobs(ws.ID) {
						fmt.Printf("    %s %s [%s]\n", j.ID, j.Title, j.Status)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func workstreamCmd() *cobra.Command {
	ws := &cobra.Command{Use: "workstream", Short: "Manage workstreams"}
	ws.AddCommand(workstreamAddCmd())
	return ws
}

func workstreamAddCmd() *cobra.Command {
	var title, slug string
	var dependsOn []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a workstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ws, err := e.AddWorkstream(ctx, title, slug, dependsOn, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "workstream title")
	cmd.Flags().StringVar(&slug, "slug", "", "optional slug override")
	cmd.Flags().StringArrayVar(&dependsOn, "depends-on", []string{}, "workstream dependency WS-... (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
		Long: `Jobs flow planned -> in_progress -> done, with blocked and cancelled as
exits. Starting requires agreement and met dependencies; completing requires
the full gate chain to pass.`,
	}
	job.AddCommand(jobAddCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobAgreeCmd())
	job.AddCommand(jobStartCmd())
	job.AddCommand(jobCompleteCmd())
	job.AddCommand(jobCancelCmd())
	job.AddCommand(jobTruthCmd())
	job.AddCommand(jobRewardCmd())
	job.AddCommand(jobSnapshotCmd())
	return job
}

func jobAddCmd() *cobra.Command {
	var opts engine.JobCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a job to a workstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.AddJob(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&opts.WorkstreamID, "workstream", "", "workstream id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "job title")
	cmd.Flags().StringVar(&opts.Slug, "slug", "", "optional slug override")
	cmd.Flags().StringArrayVar(&opts.DependsOn, "depends-on", []string{}, "dependency WI-... (repeatable)")
	cmd.Flags().StringVar(&opts.Stakes, "stakes", "", "stakes level (low, normal, high, critical)")
	cmd.Flags().Float64Var(&opts.EstimateHours, "estimate-hours", 0, "effort estimate in hours")
	_ = cmd.MarkFlagRequired("workstream")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func jobListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Store.Scan()
				if err != nil {
					return err
				}
				var jobs []plan.JobEntry
				for _, j := range t.Jobs {
					if status == "" || j.Status == status {
						jobs = append(jobs, j)
					}
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Workstream", "Depends On", "Stakes", "Iter"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{
						j.ID, j.Title, j.Status, j.WorkstreamID,
						strings.Join(j.DependsOn, ", "), j.Stakes,
						fmt.Sprintf("%d/%d", j.Iteration, j.MaxIterations),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func jobAgreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agree <id>",
		Short: "Record agreement on a job's scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.JobAgree(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobStartCmd() *cobra.Command {
	var override bool
	var note string
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.StartJob(ctx, args[0], override, note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().BoolVar(&override, "override", false, "start despite unmet dependencies")
	cmd.Flags().StringVar(&note, "note", "", "decision note recorded with an override")
	return cmd
}

func jobCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a job through the gate chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, res, err := e.CompleteJob(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(map[string]any{"job": j, "result": res}); err != nil {
						return err
					}
				} else if res.OK {
					fmt.Printf("%s done %s\n", j.ID, j.CompletedAt)
				} else if res.ForcedBlocked {
					fmt.Printf("%s blocked: %s\n", j.ID, res.Message)
				}
				if res.OK {
					return nil
				}
				if res.ForcedBlocked {
					return fmt.Errorf("job %s is blocked: %s", j.ID, res.Message)
				}
				return fmt.Errorf("gate %s failed: %s", res.Gate, res.Message)
			})
		},
		Args: cobra.ExactArgs(1),
	}
	return cmd
}

func jobCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.CancelJob(ctx, args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the job is cancelled")
	return cmd
}

func jobTruthCmd() *cobra.Command {
	var status string
	var failures []string
	cmd := &cobra.Command{
		Use:   "truth <id>",
		Short: "Record a verification outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.RecordTruth(ctx, args[0], status, failures, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pass, fail or unknown")
	cmd.Flags().StringArrayVar(&failures, "failure", []string{}, "failure description (repeatable)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func jobRewardCmd() *cobra.Command {
	var score float64
	cmd := &cobra.Command{
		Use:   "reward <id>",
		Short: "Record a reward score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.RecordReward(ctx, args[0], score, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().Float64Var(&score, "score", 0, "score 0-100")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func jobSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <id>",
		Short: "Capture a dependency-output input snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				path, err := e.CaptureSnapshot(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"path": path})
				}
				fmt.Println(path)
				return nil
			})
		},
	}
	return cmd
}

func orchestrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orchestrate",
		Short: "Compute runnable jobs, waves and the critical path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Orchestrate(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Runnable now (limit %d): %s\n", p.ParallelLimit, orNone(p.Runnable))
				for _, b := range p.Blocked {
					fmt.Printf("Blocked %s: %s\n", b.ID, strings.Join(b.Reasons, ", "))
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Wave", "Jobs"})
				for i, wave := range p.Waves {
					tw.AppendRow(table.Row{i + 1, strings.Join(wave, ", ")})
				}
				tw.Render()
				fmt.Printf("Critical path (%.1fh): %s\n", p.CriticalPath.TotalWeight, orNone(p.CriticalPath.Nodes))
				if len(p.Cycles) > 0 {
					fmt.Printf("Cycles: %s\n", strings.Join(p.Cycles, ", "))
				}
				return nil
			})
		},
	}
	return cmd
}

func invalidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate <id>",
		Short: "Reset downstream truth state after a job's outputs changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Invalidate(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Invalidated %d job(s) downstream of %s: %s\n",
					len(report.Stale), report.ChangedJob, orNone(report.Stale))
				return nil
			})
		},
	}
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Lint the plan tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Check()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(report); err != nil {
						return err
					}
				} else if len(report.Findings) > 0 {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Severity", "Code", "Path", "Message"})
					for _, f := range report.Findings {
						tw.AppendRow(table.Row{f.Severity, f.Code, f.Path, f.Message})
					}
					tw.Render()
				} else {
					fmt.Println("plan OK")
				}
				if n := report.Errors(); n > 0 {
					return fmt.Errorf("%d error(s) found", n)
				}
				return nil
			})
		},
	}
	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Recompute rollups and regenerate derived tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				changes, err := e.SyncPlan(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(changes)
				}
				if len(changes) == 0 {
					fmt.Println("no status changes")
					return nil
				}
				for _, c := range changes {
					fmt.Printf("%s: %s -> %s\n", c.ID, c.From, c.To)
				}
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Execution event log"}
	log.AddCommand(logAppendCmd())
	log.AddCommand(logTailCmd())
	return log
}

func logAppendCmd() *cobra.Command {
	var opts engine.AgentLogOptions
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a worker execution event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.LogAgentEvent(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AgentID, "agent-id", "", "worker identifier")
	cmd.Flags().StringVar(&opts.AgentType, "agent-type", "", "worker type")
	cmd.Flags().StringVar(&opts.WorkItemID, "work-item", "", "work item id")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status reported by the worker")
	cmd.Flags().StringVar(&opts.Message, "message", "", "free-form message")
	cmd.Flags().Float64Var(&opts.DurationSec, "duration-sec", 0, "run duration in seconds")
	_ = cmd.MarkFlagRequired("agent-id")
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor", "Payload"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.TS, ev.Type, ev.EntityKind + " " + ev.EntityID, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	root, err := plan.ResolveRoot(viper.GetString("project"))
	if err != nil {
		return err
	}
	return withEngineAt(ctx, root, fn)
}

func withEngineAt(ctx context.Context, root string, fn func(context.Context, engine.Engine) error) error {
	conn, err := db.Open(db.Config{Root: root})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(root)
	if err != nil {
		return err
	}
	e := engine.New(conn, plan.Store{Root: root}, cfg)
	return fn(ctx, e)
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

func orNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
