package main

import (
	"fmt"
	"io"
	"os"

	"github.com/phototag/catalog-service/internal/catalog"
	"github.com/phototag/catalog-service/internal/database"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOut    string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  `Create the catalog, job ledger and work queue tables. Safe to run repeatedly.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Migrate(cmd.Context(), database.Pool()); err != nil {
			return err
		}
		logger.Info().Msg("Schema applied")
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog as CSV or XLSX",
	Example: `  catalog export --format xlsx --out images.xlsx
  catalog export > images.csv`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var purgeQueueCmd = &cobra.Command{
	Use:   "purge-queue <import|update>",
	Short: "Delete queue rows of finished jobs so their payloads can be queued again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := catApp.Queue.PurgeInactive(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d queue row(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, exportCmd, purgeQueueCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Export format: csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := catalog.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	rows, err := catApp.Catalog.ExportRows(cmd.Context())
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	if err := catalog.WriteExport(w, format, rows); err != nil {
		return err
	}
	if exportOut != "" {
		logger.Info().Str("file", exportOut).Int("rows", len(rows)).Msg("Export written")
	}
	return nil
}
