package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docuvet/docuvet/internal/data"
	"github.com/docuvet/docuvet/internal/devseed"
	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/service"
)

func newSeedDocTypesCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-doctypes",
		Short: "Upsert the global baseline document-type configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := connectInfra(logger)
			if err != nil {
				return err
			}
			defer closeDB(db, logger)

			return devseed.NewServices(db).Seed(cmd.Context(), logger)
		},
	}
}

func newDocTypesCmd(logger *slog.Logger) *cobra.Command {
	var ownerID string

	cmd := &cobra.Command{
		Use:   "doctypes",
		Short: "List document-type configurations visible to an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := connectInfra(logger)
			if err != nil {
				return err
			}
			defer closeDB(db, logger)

			doctypes := service.MustNewDocTypeService(service.DocTypeServiceOptions{
				Repo:   data.NewDocTypeRepo(db),
				Logger: logger,
			})

			configs, err := doctypes.List(cmd.Context(), ownerID)
			if err != nil {
				return fmt.Errorf("list doctypes: %w", err)
			}

			return renderDocTypes(cmd.OutOrStdout(), configs)
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "owner whose overrides shadow the global configs")
	return cmd
}

func renderDocTypes(w io.Writer, configs []*model.DocumentTypeConfig) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tSCOPE\tREQUIRED FIELDS\tFORMATS")
	for _, cfg := range configs {
		scope := cfg.OwnerID
		if scope == "" {
			scope = "global"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			cfg.Code,
			scope,
			strings.Join(cfg.RequiredFields, ","),
			strings.Join(cfg.AllowedFormats, ","),
		)
	}
	return tw.Flush()
}
