package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"flashflow-studio/internal/application/production"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect production jobs",
	}

	jobsCmd.AddCommand(newJobsOverdueCommand(ctx))

	return jobsCmd
}

func newJobsOverdueCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List open production jobs that breach their SLA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be a positive integer")
			}
			admin, err := ctx.ensureAdmin(cmd.Context())
			if err != nil {
				return err
			}
			overdue, err := admin.Briefs.Overdue(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printOverdue(cmd.OutOrStdout(), overdue)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum number of open jobs to scan")

	return cmd
}

func printOverdue(out io.Writer, overdue []production.OverdueJob) {
	if len(overdue) == 0 {
		fmt.Fprintln(out, "All production jobs on track")
		return
	}

	const stampLayout = "2006-01-02 15:04"
	rows := make([][]string, 0, len(overdue))
	for _, o := range overdue {
		late := "-"
		if o.Late > 0 {
			late = o.Late.Truncate(time.Minute).String()
		}
		rows = append(rows, []string{
			shortID(o.Job.ID),
			shortID(o.Job.CreativeID),
			o.Job.OwnerID,
			string(o.Job.Status),
			o.Breach,
			o.Job.DueAt.Local().Format(stampLayout),
			late,
		})
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Job", "Creative", "Owner", "Status", "Breach", "Due", "Late"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
	fmt.Fprintf(out, "%d overdue\n", len(overdue))
}
