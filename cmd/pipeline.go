package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-cli/internal/model"
)

var (
	pipelineName   string
	pipelineStages []string
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Manage deal pipelines",
}

var pipelineAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pipeline"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: init store")
		}
		defer st.Close() //nolint:errcheck

		p := &model.Pipeline{Name: pipelineName, Stages: pipelineStages}
		if err := st.CreatePipeline(ctx, p); err != nil {
			return eris.Wrap(err, "pipeline: create")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created pipeline %d (%s)\n", p.ID, p.Name)
		return nil
	},
}

var pipelineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipelines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pipeline"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: init store")
		}
		defer st.Close() //nolint:errcheck

		pipelines, err := st.ListPipelines(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: list")
		}
		formatPipelines(cmd.OutOrStdout(), pipelines)
		return nil
	},
}

func formatPipelines(out io.Writer, pipelines []model.Pipeline) {
	if len(pipelines) == 0 {
		_, _ = fmt.Fprintln(out, "No pipelines.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTAGES\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-------")
	for _, p := range pipelines {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, strings.Join(p.Stages, ", "), p.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func init() {
	pipelineAddCmd.Flags().StringVar(&pipelineName, "name", "", "pipeline name (required)")
	pipelineAddCmd.Flags().StringSliceVar(&pipelineStages, "stages", nil, "ordered stage labels")
	_ = pipelineAddCmd.MarkFlagRequired("name")
	pipelineCmd.AddCommand(pipelineAddCmd, pipelineListCmd)
	rootCmd.AddCommand(pipelineCmd)
}
