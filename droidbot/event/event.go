// Package event drives UI events into the application under automation.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spance/droidbot-go/constants"
	"github.com/spance/droidbot-go/droidbot/definitions"
	"github.com/spance/droidbot-go/droidbot/llm"
)

var (
	ErrInterrupted   = errors.New("event generation interrupted")
	ErrUnknownPolicy = errors.New("unknown event policy")
	ErrMonkeyFailed  = errors.New("monkey did not inject events")
)

// Generator produces UI events until it is done, ctx ends or Stop is called.
// Stop is idempotent and makes a running Run return ErrInterrupted.
type Generator interface {
	Run(ctx context.Context) error
	Stop()
}

// Device is the part of the device facade the policies drive.
type Device interface {
	Shell(ctx context.Context, command any) string
	Tap(ctx context.Context, x, y int) error
	LongPress(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, startX, startY, endX, endY, durationMs int) error
	Press(ctx context.Context, key string) error
	TypeText(ctx context.Context, text string) error
	LaunchActivity(ctx context.Context, packageName, activity string) error
	IsForeground(ctx context.Context, app definitions.App) bool
	TopActivity(ctx context.Context) (string, bool)
	GetDisplayInfo(ctx context.Context) *definitions.DisplayInfo
	CaptureScreen(ctx context.Context) (*definitions.Screenshot, error)
}

type Options struct {
	// Count is the number of events for the monkey and random policies.
	Count int
	// Throttle is the pause between two events.
	Throttle time.Duration

	Explore definitions.ExploreConfig
	Model   *definitions.ModelConfig
}

const (
	defaultCount    = 100
	defaultThrottle = 400 * time.Millisecond
)

func (o Options) count() int {
	if o.Count <= 0 {
		return defaultCount
	}
	return o.Count
}

func (o Options) throttle() time.Duration {
	if o.Throttle <= 0 {
		return defaultThrottle
	}
	return o.Throttle
}

// New builds the generator for policy.
func New(policy string, device Device, app definitions.App, opts Options) (Generator, error) {
	switch policy {
	case constants.PolicyMonkey, "":
		return NewMonkey(device, app, opts), nil
	case constants.PolicyRandom:
		return NewRandom(device, app, opts), nil
	case constants.PolicyLLM:
		return NewExplorer(device, app, opts.Explore, llm.NewModelClient(opts.Model)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, policy)
	}
}

// stopper holds the shared Stop bookkeeping of the policies.
type stopper struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// begin derives the run context that Stop cancels.
func (s *stopper) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrInterrupted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	return ctx, nil
}

func (s *stopper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *stopper) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// end releases the run context and maps the outcome of an interrupted run.
func (s *stopper) end(err error) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		return ErrInterrupted
	}
	return err
}

// relaunch brings app back to the foreground.
func relaunch(ctx context.Context, device Device, app definitions.App) error {
	if app.Activity != "" {
		return device.LaunchActivity(ctx, app.Package, app.Activity)
	}
	device.Shell(ctx, []string{"monkey", "-p", app.Package, "-c", "android.intent.category.LAUNCHER", "1"})
	return nil
}

// ctxErr reports why ctx ends. rate.Limiter refuses a wait that would
// overrun the deadline before ctx itself expires; that counts as the deadline.
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.DeadlineExceeded
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
