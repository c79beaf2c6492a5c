package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/webrecon/internal/application/exchange"
	"github.com/khanhnv2901/webrecon/internal/shared/constants"
)

var exportCmd = &cobra.Command{
	Use:   "export [id...]",
	Short: "Export archived scans as a JSON or YAML bundle",
	Long:  "Export the given archived scans, or every archived scan when no IDs are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		file, _ := cmd.Flags().GetString("file")
		formatFlag, _ := cmd.Flags().GetString("format")

		format := exchange.FormatForPath(file)
		if formatFlag != "" {
			f, err := exchange.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			format = f
		}

		archive, err := appCtx.openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		svc := exchange.NewService(archive, appCtx.Logger.Desugar())
		bundle, err := svc.Export(cmd.Context(), args...)
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if file != "" {
			fh, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.DefaultFilePerm) // #nosec G304 -- path chosen by the operator.
			if err != nil {
				return fmt.Errorf("create %s: %w", file, err)
			}
			defer fh.Close()
			out = fh
		}
		if err := exchange.Encode(out, bundle, format); err != nil {
			return fmt.Errorf("encode bundle: %w", err)
		}
		if file != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported %d scan(s) to %s\n", colorSuccess("✓"), len(bundle.Scans), file)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("file", "f", "", "write the bundle to this file instead of stdout")
	exportCmd.Flags().String("format", "", "bundle format: json or yaml (default from file extension, else json)")
}
