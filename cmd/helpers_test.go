package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// resetCLIState restores the package-level command state so tests can run
// the root command repeatedly.
func resetCLIState(t *testing.T) {
	t.Helper()
	reset := func() {
		viper.Reset()
		*cliConfig = *newCLIConfig()
		resetFlags(rootCmd)
		cfgFile = ""
		dataDirFlag = ""
		logLevel = "warn"
		globalAppContext = nil
	}
	reset()
	t.Cleanup(reset)
}

func resetFlags(cmd *cobra.Command) {
	resetFlagSet := func(flags *pflag.FlagSet) {
		flags.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	resetFlagSet(cmd.Flags())
	resetFlagSet(cmd.PersistentFlags())
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// executeCommand runs the root command with args and returns what it wrote
// to stdout and stderr.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetCLIState(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv(dataDirEnvVar, "")
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
