package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/webrecon/internal/application"
	"github.com/khanhnv2901/webrecon/internal/infrastructure/persistence/bolt"
	"github.com/khanhnv2901/webrecon/internal/shared/security"
)

// AppContext carries what PersistentPreRunE resolved to the subcommands.
type AppContext struct {
	Logger  *zap.SugaredLogger
	DataDir string
	Config  *CLIConfig
}

type appContextKey struct{}

var globalAppContext *AppContext

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, appCtx))
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if ctx := cmd.Context(); ctx != nil {
		if appCtx, ok := ctx.Value(appContextKey{}).(*AppContext); ok {
			return appCtx
		}
	}
	return globalAppContext
}

// archivePath resolves the archive file inside the data directory.
func (a *AppContext) archivePath() (string, error) {
	return security.ArchivePath(a.DataDir, a.Config.Archive.Name)
}

// containerConfig maps the CLI config onto the application container. The
// archive path is set only when withArchive is set and archiving is enabled.
func (a *AppContext) containerConfig(withArchive bool) (application.Config, error) {
	scanner := a.Config.Scanner
	cfg := application.Config{
		AuditorTimeout:    scanner.AuditorTimeout,
		ProbeTimeout:      scanner.ProbeTimeout,
		RequestsPerSecond: scanner.RequestsPerSecond,
		Burst:             scanner.Burst,
		UserAgent:         scanner.UserAgent,
		ScanDeadline:      scanner.Deadline,
		MaxTasks:          scanner.MaxTasks,
		Logger:            a.Logger.Desugar(),
	}
	if withArchive && a.Config.Archive.Enabled {
		path, err := a.archivePath()
		if err != nil {
			return cfg, err
		}
		cfg.ArchivePath = path
	}
	return cfg, nil
}

func (a *AppContext) newContainer(withArchive bool) (*application.Container, error) {
	cfg, err := a.containerConfig(withArchive)
	if err != nil {
		return nil, err
	}
	return application.NewContainer(cfg)
}

// openArchive opens the bbolt archive for the history, export and import
// commands.
func (a *AppContext) openArchive() (*bolt.ReportArchive, error) {
	if !a.Config.Archive.Enabled {
		return nil, &ArchiveDisabledError{}
	}
	path, err := a.archivePath()
	if err != nil {
		return nil, err
	}
	archive, err := bolt.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return archive, nil
}
