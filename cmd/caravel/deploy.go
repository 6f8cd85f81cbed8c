package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/caravel-sh/caravel/internal/core/domain"
	"github.com/caravel-sh/caravel/internal/shell/compose"
	"github.com/caravel-sh/caravel/internal/shell/deploy"
	"github.com/caravel-sh/caravel/internal/shell/health"
	"github.com/caravel-sh/caravel/internal/shell/remote"
)

var (
	deployCmd = &cobra.Command{
		Use:   "deploy [environment]",
		Short: "Deploy the pushed image to an environment's host",
		Long: `Deploy renders the manifest template with the configured image, backs up
the manifest currently live on the host, transfers the new one, restarts
the stack from it, and polls the health endpoint until it answers or the
timeout runs out. An unhealthy deploy leaves the stack running for
inspection and prints the rollback command.

The environment defaults to dev when omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDeploy,
	}

	rollbackCmd = &cobra.Command{
		Use:   "rollback [environment]",
		Short: "Restore the previous manifest and restart the stack",
		Long: `Rollback restores the most recent manifest backup over the live manifest
and restarts the stack from it. When no backup exists the host is left
untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRollback,
	}
)

func init() {
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)

	addRemoteFlags(deployCmd)
	deployCmd.Flags().String("tag", "", "Image tag to deploy (overrides configuration)")
	deployCmd.Flags().Bool("rollback", false, "Roll back to the previous manifest instead of deploying")
	deployCmd.Flags().String("manifest", "", "Manifest template path (overrides configuration)")
	deployCmd.Flags().String("registry", "", "Registry host (overrides configuration)")
	deployCmd.Flags().String("app", "", "Application name (overrides configuration)")
	deployCmd.Flags().Duration("timeout", 0, "Health check budget (overrides configuration)")

	addRemoteFlags(rollbackCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	env, err := domain.ParseEnvironment(environmentArg(args))
	if err != nil {
		return err
	}
	dcfg := resolveConfig(cmd, cfg, env)

	if doRollback, _ := cmd.Flags().GetBool("rollback"); doRollback {
		return executeRollback(cmd, dcfg)
	}
	return executeDeploy(cmd, dcfg)
}

func runRollback(cmd *cobra.Command, args []string) error {
	env, err := domain.ParseEnvironment(environmentArg(args))
	if err != nil {
		return err
	}
	return executeRollback(cmd, resolveConfig(cmd, cfg, env))
}

func executeDeploy(cmd *cobra.Command, dcfg domain.Config) error {
	if err := dcfg.Validate(); err != nil {
		return err
	}

	channel, err := newChannel(dcfg)
	if err != nil {
		return err
	}
	defer channel.Close()

	backend := compose.NewBackend(channel, dcfg.ManifestPath(), logger)
	orch := deploy.New(dcfg, channel, backend, health.NewProber(nil, logger), logger)

	result := orch.Deploy(cmd.Context())
	printDiagnostics(cmd.Context(), cmd, backend, result)
	return finish(cmd, result)
}

func executeRollback(cmd *cobra.Command, dcfg domain.Config) error {
	if err := dcfg.ValidateRemote(); err != nil {
		return err
	}

	channel, err := newChannel(dcfg)
	if err != nil {
		return err
	}
	defer channel.Close()

	backend := compose.NewBackend(channel, dcfg.ManifestPath(), logger)
	orch := deploy.New(dcfg, channel, backend, health.NewProber(nil, logger), logger)

	result := orch.Rollback(cmd.Context())
	printDiagnostics(cmd.Context(), cmd, backend, result)
	return finish(cmd, result)
}

// newChannel opens the SSH channel for the target host. Key loading errors
// surface here, before the orchestrator touches anything.
func newChannel(dcfg domain.Config) (*remote.SSHChannel, error) {
	return remote.NewSSHChannel(remote.SSHConfig{
		Host:           dcfg.Host,
		User:           dcfg.User,
		Port:           dcfg.Port,
		KeyPath:        dcfg.SSHKeyPath,
		KnownHostsPath: cfg.SSH.KnownHosts,
		ConnectTimeout: dcfg.ConnectTimeout,
		CommandTimeout: dcfg.CommandTimeout,
	}, logger)
}

// finish prints the run summary and maps a failed run onto the process
// exit code.
func finish(cmd *cobra.Command, result domain.Result) error {
	if !result.Failed() {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s: %s in %s\n",
			result.Mode, result.RunID, result.State,
			result.Duration.Round(time.Millisecond))
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
		return nil
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "%s failed at %s: %v\n", result.Mode, result.FailedStep, result.Err)
	for _, w := range result.Warnings {
		fmt.Fprintf(errOut, "  warning: %s\n", w)
	}
	if result.Remedy != "" {
		fmt.Fprintf(errOut, "to recover: %s\n", result.Remedy)
	}
	return &exitError{code: result.ExitCode(), err: result.Err}
}

// printDiagnostics shows the host's view of the stack after a run: the
// service table and recent logs, on stdout for a successful run and on
// stderr when the health check failed. Diagnostic errors are logged and
// dropped, the run's verdict already stands.
func printDiagnostics(ctx context.Context, cmd *cobra.Command, backend *compose.Backend, result domain.Result) {
	var out io.Writer
	switch result.State {
	case domain.StateHealthy, domain.StateRolledBack:
		out = cmd.OutOrStdout()
	case domain.StateUnhealthy:
		out = cmd.ErrOrStderr()
	default:
		return
	}

	services, err := backend.Services(ctx)
	if err != nil {
		logger.Warn("could not fetch service table", "error", err)
		return
	}
	fmt.Fprint(out, services)

	logs, err := backend.Logs(ctx, 0)
	if err != nil {
		logger.Warn("could not fetch service logs", "error", err)
		return
	}
	fmt.Fprint(out, logs)
}
