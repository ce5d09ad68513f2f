// Package channel executes commands against a device and returns their raw
// output. An empty output is indistinguishable from a command that produced
// nothing; callers must treat both the same way.
package channel

import (
	"context"
	"errors"
	"strings"
)

// Channel runs one command against the device.
type Channel interface {
	Execute(ctx context.Context, args []string) ([]byte, error)
}

// HostChannel additionally runs adb subcommands that are not shell commands
// (install, connect, get-state ...).
type HostChannel interface {
	Channel
	Host(ctx context.Context, args ...string) ([]byte, error)
	Serial() string
}

var ErrEmptyCommand = errors.New("empty command")

// Split turns a command line into an argument vector by splitting on single
// spaces. No quoting is honoured and consecutive spaces produce empty tokens.
func Split(command string) []string {
	return strings.Split(command, " ")
}
