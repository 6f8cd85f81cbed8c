package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caravel-sh/caravel/internal/core/backup"
	"github.com/caravel-sh/caravel/internal/core/domain"
	corehealth "github.com/caravel-sh/caravel/internal/core/health"
	"github.com/caravel-sh/caravel/internal/shell/compose"
	"github.com/caravel-sh/caravel/internal/shell/health"
	"github.com/caravel-sh/caravel/internal/shell/remote"
)

var (
	statusCmd = &cobra.Command{
		Use:   "status [environment]",
		Short: "Show the running stack and its health",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}

	historyCmd = &cobra.Command{
		Use:   "history [environment]",
		Short: "List manifest backups on the host, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)

	addRemoteFlags(statusCmd)
	addRemoteFlags(historyCmd)

	statusCmd.Flags().Int("tail", compose.DefaultLogTail, "log lines per service to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := domain.ParseEnvironment(environmentArg(args))
	if err != nil {
		return err
	}
	dcfg := resolveConfig(cmd, cfg, env)
	if err := dcfg.ValidateRemote(); err != nil {
		return err
	}

	channel, err := newChannel(dcfg)
	if err != nil {
		return err
	}
	defer channel.Close()

	ctx := cmd.Context()
	backend := compose.NewBackend(channel, dcfg.ManifestPath(), logger)
	if err := backend.Detect(ctx); err != nil {
		return err
	}

	services, err := backend.Services(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, services)

	prober := health.NewProber(nil, logger)
	status, err := prober.Check(ctx, dcfg.HealthURL(), 5*time.Second)
	switch {
	case err != nil:
		fmt.Fprintf(out, "health: %s unreachable (%v)\n", dcfg.HealthURL(), err)
	case corehealth.Accept(status):
		fmt.Fprintf(out, "health: %s ok (%d)\n", dcfg.HealthURL(), status)
	default:
		fmt.Fprintf(out, "health: %s failing (%d)\n", dcfg.HealthURL(), status)
	}

	tail, _ := cmd.Flags().GetInt("tail")
	logs, err := backend.Logs(ctx, tail)
	if err != nil {
		return err
	}
	fmt.Fprint(out, logs)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	env, err := domain.ParseEnvironment(environmentArg(args))
	if err != nil {
		return err
	}
	dcfg := resolveConfig(cmd, cfg, env)
	if err := dcfg.ValidateRemote(); err != nil {
		return err
	}

	channel, err := newChannel(dcfg)
	if err != nil {
		return err
	}
	defer channel.Close()

	out := cmd.OutOrStdout()
	listing, err := channel.Run(cmd.Context(), remote.Cmd("ls", "-1", dcfg.BackupDir()))
	if err != nil {
		// A missing backup directory means no deploy ever got that far.
		if _, ok := remote.AsCommandError(err); ok {
			fmt.Fprintln(out, "no backups")
			return nil
		}
		return err
	}

	records := backup.FromListing(domain.ManifestFileName, listing.Lines())
	if len(records) == 0 {
		fmt.Fprintln(out, "no backups")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(out, "%s  %s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.Name)
	}
	return nil
}
