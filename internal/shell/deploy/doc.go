// Package deploy drives a deployment run end to end: precondition checks,
// manifest backup, render and transfer, stack restart, and the health
// verdict, all recorded against an explicit state machine.
//
// One orchestrator invocation is one logical thread; every remote call is
// synchronous. At most one deploy per host at a time is an operator
// responsibility, the orchestrator takes no host-side lock. There is no
// signal handling either: an interrupt kills the process at the current
// step and the host keeps the last completed state.
package deploy
