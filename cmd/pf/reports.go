package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"portfolio/internal/analytics"
	"portfolio/internal/engine"
	"portfolio/internal/variance"
)

const (
	chartWidth  = 60
	chartHeight = 12
	ganttWidth  = 48
)

func varianceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variance <id>",
		Short: "Show what changed between consecutive snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Variance(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				printTimeline(report.Timeline)
				return nil
			})
		},
	}
}

func printTimeline(timeline []variance.SnapshotDelta) {
	for _, d := range timeline {
		head := fmt.Sprintf("%s  %s  %s  %d%%", d.UpdatedAt, d.HistoryID, d.Status, d.Progress)
		if d.Initial {
			fmt.Println(titleStyle.Render(head) + mutedStyle.Render("  initial"))
			continue
		}
		fmt.Println(titleStyle.Render(head) + "  " + percent(d.ProgressDelta))
		tw := newTable()
		tw.AppendHeader(table.Row{"Task", "Progress", "Δ", "Start slip", "End slip"})
		for _, t := range d.Tasks {
			if t.IsNew {
				tw.AppendRow(table.Row{t.Name, t.Progress, "new", "", ""})
				continue
			}
			tw.AppendRow(table.Row{t.Name, t.Progress, percent(t.ProgressDelta), days(t.StartSlip), days(t.EndSlip)})
		}
		for _, m := range d.Milestones {
			slip := days(m.DateSlip)
			if m.IsNew {
				slip = "new"
			}
			tw.AppendRow(table.Row{"◆ " + m.Name, m.Date, "", "", slip})
		}
		fmt.Println(tw.Render())
	}
}

func days(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+dd", *v)
}

func progressionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progression <id>",
		Short: "Plot progress over time with milestone markers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Variance(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report.Series)
				}
				fmt.Println(renderProgression(report.Series, chartWidth, chartHeight))
				return nil
			})
		},
	}
}

func portfolioCmd() *cobra.Command {
	var filter analytics.Filter
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Latest change of every project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.PortfolioVariance(ctx, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Leader", "Status", "Progress", "Δ", "Slipped", "Max slip", "New", "Snapshots"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.ProjectID, r.Name, r.Leader, r.Status, progressBar(r.Progress, 10),
						percent(r.ProgressDelta), r.SlippedTasks, fmt.Sprintf("%dd", r.MaxEndSlip), r.NewTasks, r.Snapshots})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	addFilterFlags(cmd, &filter)
	return cmd
}

func leadersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaders",
		Short: "Rank leaders by average project progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.LeaderAnalytics(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Leader", "Projects", "Active", "Avg progress", "Milestones"})
				for i, r := range rows {
					tw.AppendRow(table.Row{i + 1, r.Leader, r.TotalProjects, r.ActiveProjects, progressBar(r.AvgProgress, 10),
						fmt.Sprintf("%d/%d (%d%%)", r.AchievedMilestones, r.TotalMilestones, r.MilestoneRate)})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func ganttCmd() *cobra.Command {
	var filter analytics.Filter
	var showTasks bool
	cmd := &cobra.Command{
		Use:   "gantt",
		Short: "Project spans on the dashboard timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				chart, err := e.Gantt(ctx, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(chart)
				}
				fmt.Println(mutedStyle.Render(fmt.Sprintf("%s .. %s", chart.Window.Start.Format("2006-01-02"), chart.Window.End.Format("2006-01-02"))))
				tw := newTable()
				tw.AppendHeader(table.Row{"Project", "Timeline", "Progress"})
				for _, r := range chart.Rows {
					track := mutedStyle.Render("no dated tasks")
					if r.Span != nil {
						track = ganttBar(r.Span.StartPos, r.Span.EndPos, ganttWidth, r.Color)
					}
					tw.AppendRow(table.Row{colored(r.Name, r.Color), track, fmt.Sprintf("%d%%", r.Progress)})
					if !showTasks {
						continue
					}
					for _, t := range r.Tasks {
						tw.AppendRow(table.Row{"  " + t.Name, ganttBar(t.StartPos, t.EndPos, ganttWidth, r.Color), fmt.Sprintf("%d%%", t.Progress)})
					}
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	addFilterFlags(cmd, &filter)
	cmd.Flags().BoolVar(&showTasks, "tasks", false, "show one bar per task")
	return cmd
}
