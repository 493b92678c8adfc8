package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docuvet/docuvet/internal/data"
	"github.com/docuvet/docuvet/internal/domain/model"
)

func newBulkStatusCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "bulk-status <bulk-job-id>",
		Short: "Show the stored aggregate and a live recount for a bulk job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := connectInfra(logger)
			if err != nil {
				return err
			}
			defer closeDB(db, logger)

			bulkJobID := args[0]
			repo := data.NewBulkJobRepo(db)

			job, err := repo.GetByID(cmd.Context(), bulkJobID)
			if err != nil {
				return fmt.Errorf("get bulk job %s: %w", bulkJobID, err)
			}
			counts, err := repo.CountRequestStatuses(cmd.Context(), bulkJobID)
			if err != nil {
				return fmt.Errorf("count bulk job requests: %w", err)
			}

			return renderBulkStatus(cmd.OutOrStdout(), job, counts)
		},
	}
}

// renderBulkStatus prints the stored aggregate next to a live recount so a
// stale aggregate is visible at a glance.
func renderBulkStatus(w io.Writer, job *model.BulkJob, counts model.BulkCounts) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Bulk job:\t%s\n", job.ID)
	fmt.Fprintf(tw, "Owner:\t%s\n", job.OwnerID)
	fmt.Fprintf(tw, "Stored status:\t%s (%d/%d completed)\n", job.Status, job.Completed, job.Total)
	fmt.Fprintf(tw, "Live status:\t%s\n", model.DeriveBulkStatus(counts))
	fmt.Fprintf(tw, "Linked requests:\t%d\n", counts.Total)
	fmt.Fprintf(tw, "  verified:\t%d\n", counts.Verified)
	fmt.Fprintf(tw, "  rejected:\t%d\n", counts.Rejected)
	fmt.Fprintf(tw, "  failed:\t%d\n", counts.Failed)
	fmt.Fprintf(tw, "  in progress:\t%d\n", counts.InProgress)
	if err := tw.Flush(); err != nil {
		return err
	}

	if model.DeriveBulkStatus(counts) != job.Status {
		fmt.Fprintln(w, "warning: stored aggregate is stale; a terminal member observation will refresh it")
	}
	return nil
}
