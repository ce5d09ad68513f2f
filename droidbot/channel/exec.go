package channel

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	adbPath        = "adb"
	defaultTimeout = 30 * time.Second
)

// ADB runs commands on a device from the host through adb.
type ADB struct {
	Path     string
	DeviceID string
	Timeout  time.Duration
}

func NewADB(deviceID string) *ADB {
	return &ADB{Path: getAdbPath(), DeviceID: deviceID, Timeout: defaultTimeout}
}

func getAdbPath() string {
	if home := os.Getenv("ANDROID_HOME"); home != "" {
		return home + "/platform-tools/adb"
	}
	return adbPath
}

func (r *ADB) Serial() string {
	return r.DeviceID
}

func (r *ADB) GetADBPrefix() []string {
	if r.DeviceID != "" {
		return []string{"-s", r.DeviceID}
	}
	return nil
}

// Execute runs args as a device shell command. exec-out keeps binary stdout
// (screencap) intact.
func (r *ADB) Execute(ctx context.Context, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	cmdArgs := append(r.GetADBPrefix(), "exec-out")
	cmdArgs = append(cmdArgs, args...)
	return r.run(ctx, "Execute", cmdArgs)
}

func (r *ADB) Host(ctx context.Context, args ...string) ([]byte, error) {
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return r.run(ctx, "Host", append(r.GetADBPrefix(), args...))
}

func (r *ADB) run(ctx context.Context, op string, cmdArgs []string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	path := r.Path
	if path == "" {
		path = adbPath
	}

	log.Debug().Str("cmd", fmt.Sprintf("[%s] run cmd: %s %s", op, path, strings.Join(cmdArgs, " "))).Msg("")

	output, err := exec.CommandContext(ctx, path, cmdArgs...).Output()
	if err != nil {
		log.Error().Err(err).Str("output", string(output)).Msgf("[%s] run cmd failed", op)
		return output, fmt.Errorf("adb %s: %w", strings.Join(cmdArgs, " "), err)
	}
	return output, nil
}

// Local runs commands directly, for an agent that lives on the device itself.
type Local struct {
	Timeout time.Duration
}

func NewLocal() *Local {
	return &Local{Timeout: defaultTimeout}
}

func (r *Local) Execute(ctx context.Context, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, ErrEmptyCommand
	}
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	log.Debug().Str("cmd", fmt.Sprintf("[Execute] run cmd: %s", strings.Join(args, " "))).Msg("")

	output, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		log.Error().Err(err).Str("output", string(output)).Msg("[Execute] run cmd failed")
		return output, fmt.Errorf("%s: %w", strings.Join(args, " "), err)
	}
	return output, nil
}

// withTimeout bounds a command by timeout unless ctx already carries a
// deadline, which then wins. Long running commands such as monkey set their own.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
