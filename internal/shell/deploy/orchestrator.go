package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/caravel-sh/caravel/internal/core/backup"
	"github.com/caravel-sh/caravel/internal/core/domain"
	corehealth "github.com/caravel-sh/caravel/internal/core/health"
	"github.com/caravel-sh/caravel/internal/core/manifest"
	"github.com/caravel-sh/caravel/internal/shell/health"
	"github.com/caravel-sh/caravel/internal/shell/remote"
)

// =============================================================================
// Collaborators
// =============================================================================

// Backend is the slice of the compose backend the orchestrator drives.
type Backend interface {
	Detect(ctx context.Context) error
	Pull(ctx context.Context) error
	Stop(ctx context.Context) error
	Start(ctx context.Context) error
}

// Prober reports whether the application answers on its health endpoint
// within the plan's budget.
type Prober interface {
	Await(ctx context.Context, url string, plan corehealth.Plan) health.Report
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs deploys and rollbacks against a single host.
type Orchestrator struct {
	cfg     domain.Config
	channel remote.Channel
	backend Backend
	prober  Prober
	logger  *slog.Logger
	clock   func() time.Time
}

// New creates an orchestrator for the given host configuration.
func New(cfg domain.Config, channel remote.Channel, backend Backend, prober Prober, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		channel: channel,
		backend: backend,
		prober:  prober,
		logger:  logger.With("component", "orchestrator"),
		clock:   time.Now,
	}
}

// =============================================================================
// Deploy
// =============================================================================

// Deploy rolls the configured image out to the host and verifies it over
// the health endpoint. The returned result always carries a terminal state.
func (o *Orchestrator) Deploy(ctx context.Context) domain.Result {
	run := domain.NewRun(domain.ModeDeploy)
	logger := o.logger.With("run_id", run.ID)
	image := o.cfg.Image()

	logger.Info("starting deploy",
		"environment", string(o.cfg.Environment),
		"image", image.String(),
		"host", o.cfg.Host,
		"app_dir", o.cfg.AppDir,
	)

	var warnings []string

	// 1. Preconditions. Nothing on the host changes until all of them pass.
	if err := o.preflight(ctx, logger, o.cfg.Validate); err != nil {
		return o.fail(run, domain.StepPreflight, err, warnings)
	}
	if err := run.Transition(domain.StateValidated); err != nil {
		return o.fail(run, domain.StepPreflight, err, warnings)
	}

	// 2. Ensure the application and backup directories exist.
	if _, err := o.channel.Run(ctx, remote.Cmd("mkdir", "-p", o.cfg.BackupDir())); err != nil {
		return o.fail(run, domain.StepEnsureDirs, fmt.Errorf("failed to create %s: %w", o.cfg.BackupDir(), err), warnings)
	}
	if err := run.Transition(domain.StateDirReady); err != nil {
		return o.fail(run, domain.StepEnsureDirs, err, warnings)
	}

	// 3. Back up the manifest currently live on the host, if any.
	warnings = append(warnings, o.backupCurrent(ctx, logger)...)
	if err := run.Transition(domain.StateBackedUp); err != nil {
		return o.fail(run, domain.StepBackup, err, warnings)
	}

	// 4. Render the manifest for this image, validate it, and transfer it.
	rendered, err := o.renderManifest(logger)
	if err != nil {
		return o.fail(run, domain.StepRender, err, warnings)
	}
	if err := o.channel.Upload(ctx, []byte(rendered), o.cfg.ManifestPath()); err != nil {
		return o.fail(run, domain.StepTransfer, fmt.Errorf("failed to transfer manifest: %w", err), warnings)
	}
	logger.Info("manifest deployed", "path", o.cfg.ManifestPath())
	if err := run.Transition(domain.StateDescriptorDeployed); err != nil {
		return o.fail(run, domain.StepTransfer, err, warnings)
	}

	// 5. Pull the new image, stop the old stack, start the new one. A stop
	// failure is tolerated; there may be nothing running yet.
	if err := o.backend.Pull(ctx); err != nil {
		return o.fail(run, domain.StepPull, err, warnings)
	}
	if err := o.backend.Stop(ctx); err != nil {
		logger.Warn("stopping previous stack failed, continuing", "error", err)
		warnings = append(warnings, fmt.Sprintf("stop failed: %v", err))
	}
	if err := o.backend.Start(ctx); err != nil {
		return o.fail(run, domain.StepStart, err, warnings)
	}
	if err := run.Transition(domain.StateRunning); err != nil {
		return o.fail(run, domain.StepStart, err, warnings)
	}
	logger.Info("stack started", "image", image.String())

	// 6. Poll the health endpoint until it answers or the budget runs out.
	// The stack stays up either way; recovery from an unhealthy deploy is a
	// rollback, not a stop.
	plan := corehealth.Plan{Interval: o.cfg.HealthInterval, Budget: o.cfg.HealthTimeout}
	report := o.prober.Await(ctx, o.cfg.HealthURL(), plan)

	if report.Healthy {
		if err := run.Transition(domain.StateHealthy); err != nil {
			return o.fail(run, domain.StepHealthCheck, err, warnings)
		}
		logger.Info("deploy healthy",
			"polls", report.Attempts,
			"duration", time.Since(run.StartedAt).Round(time.Millisecond),
		)
		return domain.Result{
			RunID:    run.ID,
			Mode:     run.Mode,
			State:    run.State,
			Duration: time.Since(run.StartedAt),
			Warnings: warnings,
			Polls:    report.Attempts,
		}
	}

	healthErr := healthFailure(report)
	if err := run.Transition(domain.StateUnhealthy); err != nil {
		return o.fail(run, domain.StepHealthCheck, err, warnings)
	}
	logger.Error("deploy unhealthy", "polls", report.Attempts, "error", healthErr)
	return domain.Result{
		RunID:      run.ID,
		Mode:       run.Mode,
		State:      run.State,
		Duration:   time.Since(run.StartedAt),
		FailedStep: domain.StepHealthCheck,
		Err:        healthErr,
		Warnings:   warnings,
		Polls:      report.Attempts,
		Remedy:     fmt.Sprintf("caravel deploy %s --rollback", o.cfg.Environment),
	}
}

// =============================================================================
// Rollback
// =============================================================================

// Rollback restores the most recent manifest backup and restarts the stack
// from it. When no backup exists the run aborts before touching the host.
func (o *Orchestrator) Rollback(ctx context.Context) domain.Result {
	run := domain.NewRun(domain.ModeRollback)
	logger := o.logger.With("run_id", run.ID)

	logger.Info("starting rollback",
		"environment", string(o.cfg.Environment),
		"host", o.cfg.Host,
		"app_dir", o.cfg.AppDir,
	)

	var warnings []string

	// 1. Preconditions. Image coordinates are not needed to restore a
	// backup, so only the remote subset is validated.
	if err := o.preflight(ctx, logger, o.cfg.ValidateRemote); err != nil {
		return o.fail(run, domain.StepPreflight, err, warnings)
	}
	if err := run.Transition(domain.StateValidated); err != nil {
		return o.fail(run, domain.StepPreflight, err, warnings)
	}

	// 2. Locate the newest backup. A missing backup directory means no
	// deploy ever completed a backup here.
	listing, err := o.channel.Run(ctx, remote.Cmd("ls", "-1", o.cfg.BackupDir()))
	if err != nil {
		if _, ok := remote.AsCommandError(err); ok {
			return o.fail(run, domain.StepLocateBackup, backup.ErrNoBackups, warnings)
		}
		return o.fail(run, domain.StepLocateBackup, fmt.Errorf("failed to list backups: %w", err), warnings)
	}
	record, err := backup.MostRecent(domain.ManifestFileName, listing.Lines())
	if err != nil {
		return o.fail(run, domain.StepLocateBackup, err, warnings)
	}
	logger.Info("rolling back to backup", "backup", record.Name, "taken_at", record.Timestamp)

	// 3. Restore it over the live manifest.
	source := path.Join(o.cfg.BackupDir(), record.Name)
	if _, err := o.channel.Run(ctx, remote.Cmd("cp", source, o.cfg.ManifestPath())); err != nil {
		return o.fail(run, domain.StepRestore, fmt.Errorf("failed to restore %s: %w", record.Name, err), warnings)
	}

	// 4. Restart the stack from the restored manifest. Stop is tolerated,
	// start is not; the run counts as rolled back only once the stack is up.
	if err := o.backend.Stop(ctx); err != nil {
		logger.Warn("stopping current stack failed, continuing", "error", err)
		warnings = append(warnings, fmt.Sprintf("stop failed: %v", err))
	}
	if err := o.backend.Start(ctx); err != nil {
		return o.fail(run, domain.StepRestart, err, warnings)
	}
	if err := run.Transition(domain.StateRolledBack); err != nil {
		return o.fail(run, domain.StepRestart, err, warnings)
	}

	logger.Info("rollback complete", "backup", record.Name)
	return domain.Result{
		RunID:    run.ID,
		Mode:     run.Mode,
		State:    run.State,
		Duration: time.Since(run.StartedAt),
		Warnings: warnings,
	}
}

// =============================================================================
// Steps
// =============================================================================

// preflight runs every check that must pass before the host is touched.
// validate is mode-specific; a rollback needs less configuration than a
// deploy.
func (o *Orchestrator) preflight(ctx context.Context, logger *slog.Logger, validate func() error) error {
	if err := validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	if err := o.channel.Ping(ctx); err != nil {
		return fmt.Errorf("host unreachable: %w", err)
	}
	if err := o.backend.Detect(ctx); err != nil {
		return err
	}
	logger.Debug("preflight passed", "host", o.cfg.Host)
	return nil
}

// backupCurrent copies the live manifest into the backup directory under a
// timestamped name. Every failure here is downgraded to a warning; an
// absent manifest is a fresh host and produces none.
func (o *Orchestrator) backupCurrent(ctx context.Context, logger *slog.Logger) []string {
	manifestPath := o.cfg.ManifestPath()

	if _, err := o.channel.Run(ctx, remote.Cmd("test", "-f", manifestPath)); err != nil {
		if _, ok := remote.AsCommandError(err); ok {
			logger.Debug("no current manifest, skipping backup", "path", manifestPath)
			return nil
		}
		logger.Warn("could not check for current manifest, skipping backup", "error", err)
		return []string{fmt.Sprintf("backup skipped: %v", err)}
	}

	// The sequence number comes from what is already in the backup
	// directory, so two backups within the same second stay distinct.
	listing, err := o.channel.Run(ctx, remote.Cmd("ls", "-1", o.cfg.BackupDir()))
	if err != nil {
		logger.Warn("could not list backup directory, skipping backup", "error", err)
		return []string{fmt.Sprintf("backup skipped: %v", err)}
	}
	now := o.clock()
	records := backup.FromListing(domain.ManifestFileName, listing.Lines())
	name := backup.FileName(domain.ManifestFileName, now, backup.NextSeq(records, now))
	target := path.Join(o.cfg.BackupDir(), name)

	if _, err := o.channel.Run(ctx, remote.Cmd("cp", manifestPath, target)); err != nil {
		logger.Warn("backing up current manifest failed, continuing", "backup", name, "error", err)
		return []string{fmt.Sprintf("backup failed: %v", err)}
	}

	logger.Info("current manifest backed up", "backup", name)
	return nil
}

// renderManifest reads the template, substitutes the image reference, and
// validates the result as a compose document.
func (o *Orchestrator) renderManifest(logger *slog.Logger) (string, error) {
	template, err := os.ReadFile(o.cfg.ManifestTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest template: %w", err)
	}
	rendered, err := manifest.Render(string(template), o.cfg.Image())
	if err != nil {
		return "", err
	}
	services, err := manifest.Validate(rendered)
	if err != nil {
		return "", err
	}
	logger.Debug("manifest rendered", "services", strings.Join(services, ","), "bytes", len(rendered))
	return rendered, nil
}

// fail marks the run aborted at the given step. From Running onward the
// transition table forbids Aborted, so the transition error is dropped and
// the run keeps its current state.
func (o *Orchestrator) fail(run *domain.Run, step domain.Step, err error, warnings []string) domain.Result {
	_ = run.Transition(domain.StateAborted)
	o.logger.Error("run aborted",
		"run_id", run.ID,
		"mode", string(run.Mode),
		"step", string(step),
		"error", err,
	)
	return domain.Result{
		RunID:      run.ID,
		Mode:       run.Mode,
		State:      run.State,
		Duration:   time.Since(run.StartedAt),
		FailedStep: step,
		Err:        err,
		Warnings:   warnings,
	}
}

func healthFailure(report health.Report) error {
	if report.LastErr != nil {
		return fmt.Errorf("health check failed after %d polls: %w", report.Attempts, report.LastErr)
	}
	return fmt.Errorf("health check failed after %d polls, last status %d", report.Attempts, report.LastStatus)
}
