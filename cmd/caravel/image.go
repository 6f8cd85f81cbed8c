package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caravel-sh/caravel/internal/core/domain"
	"github.com/caravel-sh/caravel/internal/shell/engine"
)

var (
	buildCmd = &cobra.Command{
		Use:   "build [environment]",
		Short: "Build the application image for an environment",
		Long: `Build produces the environment's image from the local build context. The
image is tagged {registry}/{app}-{environment}:{tag}, so dev and prod
builds never collide in the registry.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runBuild,
	}

	pushCmd = &cobra.Command{
		Use:   "push [environment]",
		Short: "Push the built image to the registry",
		Long: `Push uploads the environment's image to the registry. Credentials come
from CARAVEL_REGISTRY_USER and CARAVEL_REGISTRY_PASSWORD, falling back to
the Docker credentials at ~/.docker/config.json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPush,
	}
)

func init() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(pushCmd)

	for _, c := range []*cobra.Command{buildCmd, pushCmd} {
		c.Flags().String("tag", "", "Image tag (overrides configuration)")
		c.Flags().String("registry", "", "Registry host (overrides configuration)")
		c.Flags().String("app", "", "Application name (overrides configuration)")
	}
	buildCmd.Flags().String("context", "", "Build context directory (overrides configuration)")
	buildCmd.Flags().String("dockerfile", "", "Dockerfile path relative to the context (overrides configuration)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	env, err := domain.ParseEnvironment(environmentArg(args))
	if err != nil {
		return err
	}
	dcfg := resolveConfig(cmd, cfg, env)
	if err := dcfg.ValidateImage(); err != nil {
		return err
	}

	cli, err := engine.NewClient(logger)
	if err != nil {
		return err
	}
	defer cli.Close()

	ref := dcfg.Image()
	if err := cli.Build(cmd.Context(), dcfg.BuildContext, dcfg.Dockerfile, ref); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "built %s\n", ref)
	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
	env, err := domain.ParseEnvironment(environmentArg(args))
	if err != nil {
		return err
	}
	dcfg := resolveConfig(cmd, cfg, env)
	if err := dcfg.ValidateImage(); err != nil {
		return err
	}

	cli, err := engine.NewClient(logger)
	if err != nil {
		return err
	}
	defer cli.Close()

	ref := dcfg.Image()
	exists, err := cli.Exists(cmd.Context(), ref)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s, build it first", engine.ErrImageNotFound, ref)
	}

	auth, err := engine.ResolveRegistryAuth(dcfg.Registry)
	if err != nil {
		return err
	}
	if err := cli.Push(cmd.Context(), ref, auth); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pushed %s\n", ref)
	return nil
}
