package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/crm-cli/internal/stage"
)

var (
	stageList     bool
	stagePipeline []string
)

var stageCmd = &cobra.Command{
	Use:   "stage [label...]",
	Short: "Canonicalize free-text deal stage labels",
	Long:  "Prints the deal stage each label maps to. --pipeline-stage supplies a pipeline stage list for the fallback.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("stage"); err != nil {
			return err
		}

		table, err := loadStageTable()
		if err != nil {
			return err
		}

		if stageList || len(args) == 0 {
			formatAllowed(cmd.OutOrStdout(), table)
			return nil
		}
		formatCanonical(cmd.OutOrStdout(), table, args, stagePipeline)
		return nil
	},
}

func formatAllowed(out io.Writer, t *stage.Table) {
	for _, s := range t.Allowed() {
		marker := ""
		if s == t.Default() {
			marker = " (default)"
		}
		_, _ = fmt.Fprintf(out, "%s%s\n", s, marker)
	}
}

func formatCanonical(out io.Writer, t *stage.Table, labels, pipelineStages []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LABEL\tSTAGE")
	_, _ = fmt.Fprintln(w, "-----\t-----")
	for _, l := range labels {
		_, _ = fmt.Fprintf(w, "%q\t%s\n", l, t.Canonicalize(l, pipelineStages))
	}
	_ = w.Flush()
}

func init() {
	stageCmd.Flags().BoolVar(&stageList, "list", false, "list the allowed stages")
	stageCmd.Flags().StringSliceVar(&stagePipeline, "pipeline-stage", nil, "pipeline stage labels used as fallback, in order")
	rootCmd.AddCommand(stageCmd)
}
