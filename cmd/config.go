package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/khanhnv2901/webrecon/internal/shared/constants"
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Scanner ScannerConfig
	Server  ServerConfig
	Archive ArchiveConfig
}

// ScannerConfig tunes the stages of every scan.
type ScannerConfig struct {
	AuditorTimeout    time.Duration
	ProbeTimeout      time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	Deadline          time.Duration
	MaxTasks          int
}

// ServerConfig groups the REST API settings of `webrecon serve`.
type ServerConfig struct {
	Addr            string
	AuthToken       string
	CORSOrigins     []string
	RateLimit       int
	RateBurst       int
	ShutdownTimeout time.Duration
	ListLimit       int
}

// ArchiveConfig controls the bbolt archive under the data directory.
type ArchiveConfig struct {
	Enabled bool
	Name    string
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Scanner: ScannerConfig{
			AuditorTimeout:    constants.AuditorTimeout,
			ProbeTimeout:      constants.ProbeTimeout,
			RequestsPerSecond: 0,
			Burst:             1,
			UserAgent:         constants.DefaultUserAgent,
			Deadline:          constants.DefaultScanDeadline,
			MaxTasks:          1000,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			CORSOrigins:     []string{},
			RateLimit:       10,
			RateBurst:       20,
			ShutdownTimeout: 30 * time.Second,
			ListLimit:       100,
		},
		Archive: ArchiveConfig{
			Enabled: true,
		},
	}
}

// addScannerFlags registers the scanner tuning flags shared by scan and serve.
func addScannerFlags(flags *pflag.FlagSet) {
	s := &cliConfig.Scanner
	flags.DurationVar(&s.AuditorTimeout, "timeout", s.AuditorTimeout, "per-request timeout for header, TLS and fingerprint stages")
	flags.DurationVar(&s.ProbeTimeout, "probe-timeout", s.ProbeTimeout, "per-request timeout for vulnerability probes")
	flags.Float64Var(&s.RequestsPerSecond, "rps", s.RequestsPerSecond, "probe requests per second (0 = unlimited)")
	flags.IntVar(&s.Burst, "burst", s.Burst, "probe request burst size")
	flags.StringVar(&s.UserAgent, "user-agent", s.UserAgent, "User-Agent sent with every request")
	flags.DurationVar(&s.Deadline, "deadline", s.Deadline, "upper bound on a whole scan")
}

// applyConfigDefaults merges config file and WEBRECON_* values into the
// runtime config when the user did not explicitly set the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	flags := cmd.Flags()
	s := &cliConfig.Scanner
	srv := &cliConfig.Server
	arc := &cliConfig.Archive

	if viper.IsSet("scanner.auditor_timeout") {
		applyDefault(flags, "timeout", viper.GetDuration("scanner.auditor_timeout"), func(v time.Duration) { s.AuditorTimeout = v })
	}
	if viper.IsSet("scanner.probe_timeout") {
		applyDefault(flags, "probe-timeout", viper.GetDuration("scanner.probe_timeout"), func(v time.Duration) { s.ProbeTimeout = v })
	}
	if viper.IsSet("scanner.requests_per_second") {
		applyDefault(flags, "rps", viper.GetFloat64("scanner.requests_per_second"), func(v float64) { s.RequestsPerSecond = v })
	}
	if viper.IsSet("scanner.burst") {
		applyDefault(flags, "burst", viper.GetInt("scanner.burst"), func(v int) { s.Burst = v })
	}
	if viper.IsSet("scanner.user_agent") {
		applyDefault(flags, "user-agent", viper.GetString("scanner.user_agent"), func(v string) { s.UserAgent = v })
	}
	if viper.IsSet("scanner.deadline") {
		applyDefault(flags, "deadline", viper.GetDuration("scanner.deadline"), func(v time.Duration) { s.Deadline = v })
	}
	if viper.IsSet("scanner.max_tasks") {
		s.MaxTasks = viper.GetInt("scanner.max_tasks")
	}

	if viper.IsSet("server.addr") {
		applyDefault(flags, "addr", viper.GetString("server.addr"), func(v string) { srv.Addr = v })
	}
	if viper.IsSet("server.auth_token") {
		applyDefault(flags, "auth-token", viper.GetString("server.auth_token"), func(v string) { srv.AuthToken = v })
	}
	if viper.IsSet("server.cors_origins") {
		applyDefault(flags, "cors-origins", viper.GetStringSlice("server.cors_origins"), func(v []string) { srv.CORSOrigins = v })
	}
	if viper.IsSet("server.rate_limit") {
		applyDefault(flags, "rate-limit", viper.GetInt("server.rate_limit"), func(v int) { srv.RateLimit = v })
	}
	if viper.IsSet("server.rate_burst") {
		applyDefault(flags, "rate-burst", viper.GetInt("server.rate_burst"), func(v int) { srv.RateBurst = v })
	}
	if viper.IsSet("server.shutdown_timeout") {
		applyDefault(flags, "shutdown-timeout", viper.GetDuration("server.shutdown_timeout"), func(v time.Duration) { srv.ShutdownTimeout = v })
	}
	if viper.IsSet("server.list_limit") {
		srv.ListLimit = viper.GetInt("server.list_limit")
	}

	if viper.IsSet("archive.enabled") {
		arc.Enabled = viper.GetBool("archive.enabled")
	}
	if viper.IsSet("archive.name") {
		arc.Name = viper.GetString("archive.name")
	}
}

// applyDefault runs setter unless the named flag was set on the command line.
func applyDefault[T any](flags *pflag.FlagSet, name string, value T, setter func(T)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}
