package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/importer"
	"github.com/sells-group/crm-cli/internal/sheet"
)

var (
	importFile       string
	importPipelineID int64
	importSheet      string
	importChunked    bool
	importAtomic     bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an .xlsx pipeline export into the CRM",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		ws, err := sheet.Open(importFile, sheet.Options{
			SheetName: importSheet,
			MaxBytes:  cfg.Import.MaxFileBytes(),
		})
		if err != nil {
			return eris.Wrap(err, "import: open workbook")
		}

		table, err := loadStageTable()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "import: init store")
		}
		defer st.Close() //nolint:errcheck

		opts := importer.OptionsFromConfig(cfg.Import)
		if importAtomic {
			opts.Transactional = true
		}

		res, err := importer.New(st, table, opts).Run(ctx, ws, importer.Request{
			PipelineID:     importPipelineID,
			Chunked:        importChunked,
			RequireCompany: importChunked,
		})
		if res != nil {
			formatResult(cmd.OutOrStdout(), res)
		}
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import finished",
			zap.String("file", importFile),
			zap.String("run_id", res.RunID.String()),
		)
		return nil
	},
}

// formatResult prints the import summary and any per-row errors.
func formatResult(out io.Writer, res *importer.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "State:\t%s\n", res.State)
	_, _ = fmt.Fprintf(w, "Rows parsed:\t%d\n", res.RowsParsed)
	_, _ = fmt.Fprintf(w, "Rows skipped:\t%d\n", res.RowsSkipped)
	_, _ = fmt.Fprintf(w, "Companies created:\t%d\n", res.CompaniesCreated)
	_, _ = fmt.Fprintf(w, "Contacts created:\t%d\n", res.ContactsCreated)
	_, _ = fmt.Fprintf(w, "Deals created:\t%d\n", res.DealsCreated)
	_, _ = fmt.Fprintf(w, "Notes created:\t%d\n", res.NotesCreated)
	_ = w.Flush()

	if res.State == importer.StateDone && res.RowsParsed == 0 {
		_, _ = fmt.Fprintln(out, "Nothing to import.")
	}
	if len(res.Errors) > 0 {
		_, _ = fmt.Fprintf(out, "\nErrors (%d):\n", len(res.Errors))
		for _, e := range res.Errors {
			_, _ = fmt.Fprintf(out, "  %s\n", e)
		}
	}
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to .xlsx file (required)")
	importCmd.Flags().Int64Var(&importPipelineID, "pipeline", 0, "target pipeline id (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "worksheet name (default first sheet)")
	importCmd.Flags().BoolVar(&importChunked, "chunked", false, "process rows in chunks and continue past failed chunks")
	importCmd.Flags().BoolVar(&importAtomic, "atomic", false, "write each batch in one transaction")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("pipeline")
	rootCmd.AddCommand(importCmd)
}
