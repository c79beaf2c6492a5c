package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

const closeTimeout = 10 * time.Second

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan one target and print its report",
	Long: `Run a scan against an http(s) target and print the report once every stage
has finished. Kinds: ` + kindList() + `.

The finished report is saved to the archive unless --no-archive is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		kind, _ := cmd.Flags().GetString("kind")
		output, _ := cmd.Flags().GetString("output")
		pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
		noArchive, _ := cmd.Flags().GetBool("no-archive")
		showProgress, _ := cmd.Flags().GetBool("progress")

		format, err := validateOutput(output)
		if err != nil {
			return err
		}
		if pollInterval <= 0 {
			pollInterval = 250 * time.Millisecond
		}

		c, err := appCtx.newContainer(!noArchive)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := c.Close(ctx); err != nil {
				appCtx.Logger.Warnw("failed to close scanner", "error", err)
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		id, err := c.Orchestrator.Start(ctx, args[0], kind)
		if err != nil {
			return err
		}
		appCtx.Logger.Infow("scan started", "task_id", id, "target", args[0], "kind", kind)

		var progress *progressPrinter
		if showProgress && format == outputText {
			progress = newProgressPrinter(cmd.ErrOrStderr(), kind)
			progress.Start()
		}

		task, err := waitForScan(ctx, c.Orchestrator, id, pollInterval, progress)
		if progress != nil {
			progress.Stop()
		}
		if err != nil {
			return err
		}

		// Shutdown returns once the report is sealed and archived.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := c.Orchestrator.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("wait for report: %w", err)
		}

		report, err := c.Orchestrator.Report(context.Background(), id)
		if errors.Is(err, sharedErrors.ErrNotFound) {
			report = scan.NewReport(task)
		} else if err != nil {
			return err
		}

		if err := renderReport(cmd.OutOrStdout(), report, format); err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		if report.Task.Status == scan.StatusFailed {
			return &ScanFailedError{ID: id, Reason: report.Task.Error}
		}
		return nil
	},
}

type scanPoller interface {
	Status(ctx context.Context, id string) (scan.Task, error)
	Cancel(ctx context.Context, id string) error
}

// waitForScan polls until the task is terminal. An interrupt cancels the
// scan once; polling continues until the orchestrator finalizes it.
func waitForScan(ctx context.Context, scans scanPoller, id string, interval time.Duration, progress *progressPrinter) (scan.Task, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	interrupted := ctx.Done()
	for {
		task, err := scans.Status(context.Background(), id)
		if err != nil {
			return scan.Task{}, err
		}
		if progress != nil {
			progress.Update(task.Status)
		}
		if task.Status.IsTerminal() {
			return task, nil
		}

		select {
		case <-interrupted:
			interrupted = nil
			if err := scans.Cancel(context.Background(), id); err != nil {
				return task, fmt.Errorf("cancel scan: %w", err)
			}
		case <-ticker.C:
		}
	}
}

func kindList() string {
	kinds := scan.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

func init() {
	scanCmd.Flags().StringP("kind", "k", string(scan.KindFull), "scan kind: "+kindList())
	scanCmd.Flags().StringP("output", "o", outputText, "output format: text, json or yaml")
	scanCmd.Flags().Duration("poll-interval", 250*time.Millisecond, "how often to check scan status")
	scanCmd.Flags().Bool("no-archive", false, "do not save the report to the archive")
	scanCmd.Flags().Bool("progress", true, "show a status line on stderr while scanning")
	addScannerFlags(scanCmd.Flags())
}
