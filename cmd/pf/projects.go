package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"portfolio/internal/analytics"
	"portfolio/internal/archive"
	"portfolio/internal/config"
	"portfolio/internal/domain"
	"portfolio/internal/engine"
	"portfolio/internal/variance"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectSaveCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func addFilterFlags(cmd *cobra.Command, f *analytics.Filter) {
	cmd.Flags().StringVar(&f.Department, "department", "", "department filter")
	cmd.Flags().StringVar(&f.Leader, "leader", "", "leader filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
}

func projectListCmd() *cobra.Command {
	var filter analytics.Filter
	var includeDeleted bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, includeDeleted)
				if err != nil {
					return err
				}
				items = filter.Apply(items)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				md, err := e.Repo.GetMasterData(ctx)
				if err != nil {
					return err
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Leader", "Department", "Status", "Progress", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Leader, p.Department, statusLabel(md, p.Status), progressBar(p.Progress, 20), p.UpdatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	addFilterFlags(cmd, &filter)
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include soft-deleted projects")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its tasks and milestones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printProject(p)
				return nil
			})
		},
	}
}

func printProject(p domain.Project) {
	fmt.Println(titleStyle.Render(p.ID + "  " + p.Name))
	fmt.Printf("leader: %s  department: %s  status: %s  updated: %s\n", p.Leader, p.Department, p.Status, p.UpdatedAt)
	fmt.Println(progressBar(p.Progress, 40))
	if p.Description != "" {
		fmt.Println(p.Description)
	}
	tw := newTable()
	tw.SetTitle("Tasks")
	tw.AppendHeader(table.Row{"ID", "Name", "Start", "End", "Weight", "Progress"})
	for _, t := range p.Tasks {
		tw.AppendRow(table.Row{t.ID, t.Name, t.StartDate, t.EndDate, t.Weight, progressBar(t.Progress, 10)})
	}
	fmt.Println(tw.Render())
	if len(p.Milestones) > 0 {
		mw := newTable()
		mw.SetTitle("Milestones")
		mw.AppendHeader(table.Row{"ID", "Name", "Date", "Completed"})
		for _, m := range p.Milestones {
			mw.AppendRow(table.Row{m.ID, m.Name, m.Date, m.Completed})
		}
		fmt.Println(mw.Render())
	}
}

func projectSaveCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or update a project from a YAML or JSON file",
		Long:  "Omit id in the file to create a new project. Progress is always recomputed from the tasks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.Project
			if err := readDocument(file, &p); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SaveProject(ctx, engine.SaveOptions{
					Project: p,
					ActorID: viper.GetString("actor-id"),
					Force:   viper.GetBool("force"),
				})
				var we *engine.WeightAdvisoryError
				if errors.As(err, &we) {
					return fmt.Errorf("%w (rerun with --force)", err)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				verb := "saved"
				if res.Created {
					verb = "created"
				}
				fmt.Printf("%s %s (progress %d%%, snapshot %s)\n", verb, res.Project.ID, res.Project.Progress, res.HistoryID)
				if !res.Advisory.Balanced {
					fmt.Println(warnStyle.Render(fmt.Sprintf("warning: task weights total %g, expected %g", res.Advisory.Total, res.Advisory.Expected)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "project file (yaml or json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a project (history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.DeleteProject(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("deleted %s (snapshot %s)\n", res.Project.ID, res.HistoryID)
				return nil
			})
		},
	}
}

func historyCmd() *cobra.Command {
	h := &cobra.Command{Use: "history", Short: "Project history snapshots"}
	h.AddCommand(&cobra.Command{
		Use:   "list <id>",
		Short: "List snapshots, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.History(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Snapshot", "Updated", "Status", "Progress", "Tasks", "Milestones"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.UpdatedAt, s.Status, progressBar(s.Progress, 20), len(s.Tasks), len(s.Milestones)})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	})
	h.AddCommand(&cobra.Command{
		Use:   "export <id>",
		Short: "Archive snapshots and the variance report (PORTFOLIO_ARCHIVE_* settings)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				history, err := e.History(ctx, args[0])
				if err != nil {
					return err
				}
				store, err := archive.New(ctx, workspaceArchive(env.ArchiveEnv))
				if err != nil {
					return err
				}
				ex := archive.Exporter{Storage: store}
				paths, err := ex.ExportProject(ctx, args[0], history, variance.BuildReport(args[0], history))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(paths)
				}
				fmt.Printf("exported %d file(s) to %s archive\n", len(paths), env.ArchiveEnv.Type)
				for _, p := range paths {
					fmt.Println("  " + p)
				}
				return nil
			})
		},
	})
	h.AddCommand(&cobra.Command{
		Use:   "archived <id>",
		Short: "List snapshots stored in the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := archive.New(ctx, workspaceArchive(env.ArchiveEnv))
			if err != nil {
				return err
			}
			items, err := archive.Exporter{Storage: store}.LoadHistory(ctx, args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			if len(items) == 0 {
				fmt.Println(mutedStyle.Render("nothing archived for " + args[0]))
				return nil
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Snapshot", "Updated", "Status", "Progress"})
			for _, s := range items {
				tw.AppendRow(table.Row{s.ID, s.UpdatedAt, s.Status, progressBar(s.Progress, 20)})
			}
			fmt.Println(tw.Render())
			return nil
		},
	})
	return h
}

func masterCmd() *cobra.Command {
	m := &cobra.Command{Use: "master", Short: "Leaders, departments and statuses"}
	m.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show master data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				md, err := e.Repo.GetMasterData(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(md)
				}
				fmt.Println("leaders:     " + strings.Join(md.Leaders, ", "))
				fmt.Println("departments: " + strings.Join(md.Departments, ", "))
				labels := make([]string, 0, len(md.Statuses))
				for _, s := range md.Statuses {
					labels = append(labels, statusLabel(md, s.Name))
				}
				fmt.Println("statuses:    " + strings.Join(labels, ", "))
				return nil
			})
		},
	})
	var file string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Replace master data from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var md domain.MasterData
			if err := readDocument(file, &md); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				saved, err := e.ReplaceMasterData(ctx, md, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(saved)
				}
				fmt.Printf("master data replaced: %d leaders, %d departments, %d statuses\n", len(saved.Leaders), len(saved.Departments), len(saved.Statuses))
				return nil
			})
		},
	}
	imp.Flags().StringVarP(&file, "file", "f", "", "master data file")
	_ = imp.MarkFlagRequired("file")
	m.AddCommand(imp)
	return m
}

// importFile is the on-disk shape of an export from the document store.
type importFile struct {
	Projects   []map[string]any            `yaml:"projects"`
	Histories  []map[string]any            `yaml:"histories"`
	MasterData map[string][]map[string]any `yaml:"masterData"`
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import exported project, history and master data records",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in importFile
			if err := readDocument(file, &in); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ImportRecords(ctx, engine.ImportOptions{
					Projects:   in.Projects,
					Histories:  in.Histories,
					MasterData: in.MasterData,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("imported %d projects, %d snapshots (%d duplicates skipped)\n", res.Projects, res.Histories, res.DuplicateHistory)
				for _, r := range res.Rejected {
					fmt.Println(warnStyle.Render("rejected: " + r))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "export file (yaml or json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func statusLabel(md domain.MasterData, status string) string {
	return colored(status, analytics.StatusColor(md, status))
}

func colored(text, color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(text)
}

// progressBar renders pct as a filled bar followed by the number.
func progressBar(pct, width int) string {
	pct = min(max(pct, 0), 100)
	filled := pct * width / 100
	bar := lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")).Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3d%%", bar, pct)
}
