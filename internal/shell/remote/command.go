// Package remote executes commands on the deployment host over SSH.
// Commands are built as program plus argument vector and serialized with
// shell quoting in exactly one place, so file names and tags can never
// splice into the remote shell.
package remote

import "strings"

// Command is one remote invocation.
type Command struct {
	Program string
	Args    []string
}

// Cmd builds a Command.
func Cmd(program string, args ...string) Command {
	return Command{Program: program, Args: args}
}

// String renders the command line sent to the remote shell. Arguments that
// contain anything outside the safe character set are single-quoted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Program))
	for _, arg := range c.Args {
		parts = append(parts, quote(arg))
	}
	return strings.Join(parts, " ")
}

// safeChars are the characters that never need quoting in POSIX shells.
const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-./:=@%+,"

// quote single-quotes s unless every character is shell-safe. Embedded
// single quotes close the quote, emit an escaped quote, and reopen.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	clean := true
	for _, r := range s {
		if !strings.ContainsRune(safeChars, r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
