package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/docuvet/docuvet/internal/data"
	"github.com/docuvet/docuvet/internal/domain/model"
)

func newReprocessCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <request-id>",
		Short: "Re-arm a terminal verification request for another pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := connectInfra(logger)
			if err != nil {
				return err
			}
			defer closeDB(db, logger)

			requestID := args[0]
			reprocessed, err := data.NewVerificationRepo(db).Reprocess(cmd.Context(), requestID)
			if err != nil {
				return fmt.Errorf("reprocess request %s: %w", requestID, err)
			}
			if !reprocessed {
				return fmt.Errorf("request %s is not in a terminal state", requestID)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "request %s re-armed; the poller will pick it up on its next sweep\n", requestID)
			return nil
		},
	}
}

func newAuditCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <request-id>",
		Short: "Show the audit trail of a verification request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := connectInfra(logger)
			if err != nil {
				return err
			}
			defer closeDB(db, logger)

			requestID := args[0]
			records, err := data.NewAuditRepo(db).ListByRequest(cmd.Context(), requestID)
			if err != nil {
				return fmt.Errorf("list audit records for %s: %w", requestID, err)
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no audit records for request %s\n", requestID)
				return nil
			}

			return renderAuditTrail(cmd.OutOrStdout(), records)
		},
	}
}

func renderAuditTrail(w io.Writer, records []*model.AuditRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCATEGORY\tDETAIL")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Category,
			rec.Detail,
		)
	}
	return tw.Flush()
}
