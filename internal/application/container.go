package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/webrecon/internal/application/exchange"
	scanapp "github.com/khanhnv2901/webrecon/internal/application/scan"
	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/infrastructure/memory"
	"github.com/khanhnv2901/webrecon/internal/infrastructure/persistence/bolt"
	"github.com/khanhnv2901/webrecon/internal/metrics"
	"github.com/khanhnv2901/webrecon/internal/probe"
	"github.com/khanhnv2901/webrecon/internal/shared/constants"
)

// Config selects how the container builds its services. Zero values fall
// back to the package defaults.
type Config struct {
	// ArchivePath enables the bbolt archive when non-empty.
	ArchivePath string

	AuditorTimeout    time.Duration
	ProbeTimeout      time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	ScanDeadline      time.Duration
	MaxTasks          int

	// RuntimeMetrics adds the Go and process collectors to the registry.
	RuntimeMetrics bool
	Logger         *zap.Logger
}

// Container holds all application services and repositories
// This is a simple dependency injection container
type Container struct {
	// Stores
	Tasks   *memory.TaskStore
	Reports *memory.ReportStore
	Archive *bolt.ReportArchive

	// Services
	Metrics      *metrics.Metrics
	Orchestrator *scanapp.Orchestrator
	Exchange     *exchange.Service

	logger *zap.Logger
}

// NewContainer wires the scanner stages, the stores and the optional archive.
func NewContainer(cfg Config) (*Container, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AuditorTimeout <= 0 {
		cfg.AuditorTimeout = constants.AuditorTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = constants.ProbeTimeout
	}

	c := &Container{
		Reports: memory.NewReportStore(),
		Metrics: metrics.New(cfg.RuntimeMetrics),
		logger:  logger,
	}
	storeOpts := []memory.TaskStoreOption{memory.WithLogger(logger)}
	if cfg.MaxTasks > 0 {
		storeOpts = append(storeOpts, memory.WithMaxTasks(cfg.MaxTasks))
	}
	c.Tasks = memory.NewTaskStore(storeOpts...)

	auditClient := checker.NewHTTPClient(checker.ClientConfig{
		Timeout:         cfg.AuditorTimeout,
		FollowRedirects: true,
		UserAgent:       cfg.UserAgent,
	})
	probeClient := checker.NewHTTPClient(checker.ClientConfig{
		Timeout:   cfg.ProbeTimeout,
		UserAgent: cfg.UserAgent,
	})
	engine := probe.NewEngine(probe.Config{
		Client:            probeClient,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Logger:            logger.Named("probe"),
		Observer:          c.Metrics,
	})

	deps := scanapp.Dependencies{
		Tasks:         c.Tasks,
		Reports:       c.Reports,
		Headers:       checker.NewHeaderAuditor(auditClient, logger.Named("headers")),
		Certificates:  checker.NewCertificateAuditor(auditClient, logger.Named("ssl")),
		Fingerprinter: checker.NewTechnologyFingerprinter(auditClient, logger.Named("technology")),
		Engine:        engine,
		Legacy:        probe.NewLegacyScanner(engine),
		Metrics:       c.Metrics,
		Logger:        logger.Named("orchestrator"),
		ScanDeadline:  cfg.ScanDeadline,
	}

	if cfg.ArchivePath != "" {
		archive, err := bolt.Open(cfg.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open scan archive: %w", err)
		}
		c.Archive = archive
		// only a non-nil archive may be stored in the interface field
		deps.Archive = archive
		c.Exchange = exchange.NewService(archive, logger.Named("exchange"))
	}

	c.Orchestrator = scanapp.NewOrchestrator(deps)
	return c, nil
}

// Preload restores archived scans into the in-memory stores. It is a no-op
// without an archive.
func (c *Container) Preload(ctx context.Context) (int, error) {
	if c.Exchange == nil {
		return 0, nil
	}
	return c.Exchange.Preload(ctx, c.Orchestrator)
}

// Close stops in-flight scans and closes the archive.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if err := c.Orchestrator.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown orchestrator: %w", err))
	}
	if c.Archive != nil {
		if err := c.Archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Check reports liveness; a constructed container is always alive.
func (c *Container) Check(ctx context.Context) error {
	return ctx.Err()
}

// Ready fails while the archive cannot serve reads.
func (c *Container) Ready(ctx context.Context) error {
	if c.Archive == nil {
		return ctx.Err()
	}
	if err := c.Archive.Ping(ctx); err != nil {
		return fmt.Errorf("archive not ready: %w", err)
	}
	return nil
}
