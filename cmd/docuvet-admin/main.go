// Command docuvet-admin provides operational tooling for the verification pipeline.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/docuvet/docuvet/internal/bootstrap"
)

func main() {
	logger := bootstrap.InitLogger()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must exit with failure status when a command fails
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "docuvet-admin",
		Short:         "Operational tooling for the docuvet verification pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(logger),
		newSeedDocTypesCmd(logger),
		newDocTypesCmd(logger),
		newReprocessCmd(logger),
		newBulkStatusCmd(logger),
		newAuditCmd(logger),
	)

	return root
}
