package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/webrecon/internal/application/exchange"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a scan bundle into the archive",
	Long:  "Import a bundle written by export. Scans already in the archive are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		formatFlag, _ := cmd.Flags().GetString("format")
		path := args[0]

		format := exchange.FormatForPath(path)
		if formatFlag != "" {
			f, err := exchange.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			format = f
		}

		fh, err := os.Open(path) // #nosec G304 -- path chosen by the operator.
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer fh.Close()

		bundle, err := exchange.Decode(fh, format)
		if err != nil {
			return err
		}

		archive, err := appCtx.openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		svc := exchange.NewService(archive, appCtx.Logger.Desugar())
		result, err := svc.Import(cmd.Context(), bundle)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Imported %d scan(s)\n", colorSuccess("✓"), len(result.Imported))
		if len(result.Skipped) > 0 {
			fmt.Fprintf(out, "%s Skipped %d scan(s) already archived\n", colorWarn("!"), len(result.Skipped))
			for _, id := range result.Skipped {
				fmt.Fprintf(out, "  - %s\n", id)
			}
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("format", "", "bundle format: json or yaml (default from file extension)")
}
