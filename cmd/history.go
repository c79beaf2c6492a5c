package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived scans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		target, _ := cmd.Flags().GetString("target")
		limit, _ := cmd.Flags().GetInt("limit")

		archive, err := appCtx.openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		var tasks []scan.Task
		if target != "" {
			tasks, err = archive.FindByTarget(cmd.Context(), target)
		} else {
			tasks, err = archive.FindAll(cmd.Context())
		}
		if err != nil {
			return err
		}
		if limit > 0 && len(tasks) > limit {
			tasks = tasks[:limit]
		}

		out := cmd.OutOrStdout()
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No archived scans.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTARGET\tKIND\tSTATUS\tCOMPLETED")
		fmt.Fprintln(w, "--\t------\t----\t------\t---------")
		for _, t := range tasks {
			completed := "-"
			if t.CompletedAt != nil {
				completed = t.CompletedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Target, t.Kind, t.Status, completed)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived scan report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		output, _ := cmd.Flags().GetString("output")
		format, err := validateOutput(output)
		if err != nil {
			return err
		}

		archive, err := appCtx.openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		report, err := archive.FindByID(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("scan %s: %w", args[0], err)
		}
		return renderReport(cmd.OutOrStdout(), report, format)
	},
}

func init() {
	historyCmd.Flags().String("target", "", "only show scans of this exact target")
	historyCmd.Flags().Int("limit", 0, "maximum number of scans to list (0 = all)")
	historyShowCmd.Flags().StringP("output", "o", outputText, "output format: text, json or yaml")
	historyCmd.AddCommand(historyShowCmd)
}
