package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// =============================================================================
// Run Mode
// =============================================================================

// Mode selects which sequence a run executes.
type Mode string

const (
	ModeDeploy   Mode = "deploy"
	ModeRollback Mode = "rollback"
)

// =============================================================================
// Run States
// =============================================================================

// State is a node in the run state machine. A run walks the deploy path
// Init through Running and ends Healthy or Unhealthy; the rollback path
// branches at Validated and ends RolledBack. Any failure before the stack
// is started ends in Aborted.
type State string

const (
	StateInit               State = "init"
	StateValidated          State = "validated"
	StateDirReady           State = "dir_ready"
	StateBackedUp           State = "backed_up"
	StateDescriptorDeployed State = "descriptor_deployed"
	StateRunning            State = "running"
	StateHealthy            State = "healthy"
	StateUnhealthy          State = "unhealthy"
	StateRolledBack         State = "rolled_back"
	StateAborted            State = "aborted"
)

// validTransitions defines the allowed state transitions. Once the stack has
// been started the run can no longer abort; it resolves to Healthy or
// Unhealthy through the health check.
var validTransitions = map[State][]State{
	StateInit:               {StateValidated, StateAborted},
	StateValidated:          {StateDirReady, StateRolledBack, StateAborted},
	StateDirReady:           {StateBackedUp, StateAborted},
	StateBackedUp:           {StateDescriptorDeployed, StateAborted},
	StateDescriptorDeployed: {StateRunning, StateAborted},
	StateRunning:            {StateHealthy, StateUnhealthy},
	StateHealthy:            {}, // Terminal
	StateUnhealthy:          {}, // Terminal
	StateRolledBack:         {}, // Terminal
	StateAborted:            {}, // Terminal
}

// Terminal reports whether no transition can leave s.
func (s State) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Success reports whether s is a successful terminal state. Healthy means the
// new version serves traffic; RolledBack means the previous version does.
func (s State) Success() bool {
	return s == StateHealthy || s == StateRolledBack
}

// ValidateTransition checks if a state transition is valid.
func ValidateTransition(from, to State) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// =============================================================================
// Steps
// =============================================================================

// Step names the individual operations a run performs. A failed run reports
// the step that stopped it so operators know where to look.
type Step string

const (
	StepPreflight    Step = "preflight"
	StepEnsureDirs   Step = "ensure_dirs"
	StepBackup       Step = "backup"
	StepRender       Step = "render"
	StepTransfer     Step = "transfer"
	StepPull         Step = "pull"
	StepStop         Step = "stop"
	StepStart        Step = "start"
	StepHealthCheck  Step = "health_check"
	StepLocateBackup Step = "locate_backup"
	StepRestore      Step = "restore"
	StepRestart      Step = "restart"
)

// =============================================================================
// Run
// =============================================================================

// Run tracks a single orchestrator invocation through the state machine.
type Run struct {
	ID        string
	Mode      Mode
	State     State
	StartedAt time.Time
}

// NewRun creates a run in the initial state.
func NewRun(mode Mode) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		State:     StateInit,
		StartedAt: time.Now().UTC(),
	}
}

// Transition attempts to advance the run to a new state.
func (r *Run) Transition(to State) error {
	if err := ValidateTransition(r.State, to); err != nil {
		return err
	}
	r.State = to
	return nil
}

// =============================================================================
// Result
// =============================================================================

const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Result is the terminal outcome of a run. Callers branch on State instead
// of parsing output; the CLI maps it to a process exit code.
type Result struct {
	RunID    string
	Mode     Mode
	State    State
	Duration time.Duration

	// FailedStep and Err are set when State is Unhealthy or Aborted.
	FailedStep Step
	Err        error

	// Warnings records tolerated failures that did not stop the run.
	Warnings []string

	// Polls is the number of health probes performed on the deploy path.
	Polls int

	// Remedy is a suggested next command, such as a rollback after a
	// failed health check.
	Remedy string
}

// ExitCode maps the terminal state to a process exit code: 0 for Healthy and
// RolledBack, 1 for everything else.
func (res Result) ExitCode() int {
	if res.State.Success() {
		return ExitSuccess
	}
	return ExitFailure
}

// Failed reports whether the run ended in a failure state.
func (res Result) Failed() bool {
	return !res.State.Success()
}
