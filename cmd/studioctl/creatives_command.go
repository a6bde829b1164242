package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
)

func newCreativesCommand(ctx *commandContext) *cobra.Command {
	creativesCmd := &cobra.Command{
		Use:   "creatives",
		Short: "Inspect saved creatives",
	}

	creativesCmd.AddCommand(newCreativesListCommand(ctx))

	return creativesCmd
}

func newCreativesListCommand(ctx *commandContext) *cobra.Command {
	var (
		owner    string
		status   string
		format   string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's saved creatives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !entity.CreativeStatus(status).Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			admin, err := ctx.ensureAdmin(cmd.Context())
			if err != nil {
				return err
			}

			filter := &repository.CreativeFilter{
				Status:        entity.CreativeStatus(status),
				ContentFormat: entity.ContentFormat(format),
			}
			result, err := admin.Creatives.ListByOwner(cmd.Context(), owner, filter, repository.NewPagination(page, pageSize))
			if err != nil {
				return err
			}
			printCreatives(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner user ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (draft, approved, produced, posted, archived)")
	cmd.Flags().StringVar(&format, "format", "", "Filter by content format")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Items per page")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func printCreatives(out io.Writer, result *repository.PagedResult[*entity.SavedCreative]) {
	if result == nil || len(result.Items) == 0 {
		fmt.Fprintln(out, "No creatives found")
		return
	}

	const stampLayout = "2006-01-02 15:04"
	rows := make([][]string, 0, len(result.Items))
	for _, c := range result.Items {
		score := "-"
		if c.OverallScore != nil {
			score = strconv.FormatFloat(*c.OverallScore, 'f', 1, 64)
		}
		rating := "-"
		if c.Rating != nil {
			rating = strconv.Itoa(*c.Rating)
		}
		job := "-"
		if c.ProductionJobID != nil {
			job = shortID(*c.ProductionJobID)
		}
		rows = append(rows, []string{
			shortID(c.ID),
			c.Title,
			string(c.Status),
			string(c.ContentFormat),
			score,
			rating,
			job,
			c.UpdatedAt.Local().Format(stampLayout),
		})
	}

	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Title", "Status", "Format", "Score", "Rating", "Job", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
	fmt.Fprintf(out, "Page %d of %d (%d total)\n", result.Page, result.TotalPages, result.Total)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
