package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/caravel-sh/caravel/internal/core/domain"
)

var (
	cfgFile string
	cfg     *Config
	logger  *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "caravel",
		Short: "Build, push, and deploy compose stacks to remote hosts over SSH",
		Long: `Caravel rolls single-host applications out in three steps: build the image
locally, push it to the registry, and deploy it to the target host, where
the running stack is swapped under a health check and the previous manifest
is kept as a rollback point.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			applyLogFlags(cmd, cfg)
			logger = SetupLogger(cfg)
			return nil
		},
	}
)

func init() {
	rootCmd.Version = fmt.Sprintf("%s (built %s)", Version, BuildTime)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default ./caravel.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// applyLogFlags lets the log flags win over file and environment settings.
func applyLogFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
}

// environmentArg returns the positional environment token, dev when omitted.
func environmentArg(args []string) string {
	if len(args) == 0 {
		return string(domain.EnvDev)
	}
	return args[0]
}

// addRemoteFlags registers the host override flags shared by every command
// that talks to a deployment host.
func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Remote host (overrides configuration)")
	cmd.Flags().String("user", "", "SSH user (overrides configuration)")
	cmd.Flags().Int("port", 22, "SSH port (overrides configuration)")
	cmd.Flags().String("app-dir", "", "Remote application directory (overrides configuration)")
	cmd.Flags().String("ssh-key", "", "SSH private key path (overrides configuration)")
}

// exitError carries a process exit code through cobra without re-printing
// an error the handler already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}
