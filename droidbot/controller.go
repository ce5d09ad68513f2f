// Package droidbot runs an automation session: it starts the application under
// test, waits for it to reach the foreground, drives an event generator and
// collects the instrumentation logs.
package droidbot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/droidbot-go/droidbot/definitions"
	"github.com/spance/droidbot-go/droidbot/event"
	"github.com/spance/droidbot-go/droidbot/sink"
)

var (
	ErrNeverForeground = errors.New("application never reached the foreground")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrSessionStopped  = errors.New("session stopped")
)

const defaultPollInterval = time.Second

// Device is the part of the device facade a session needs.
type Device interface {
	event.Device
	Unlock(ctx context.Context)
	LastInstalledPackage(ctx context.Context) (*definitions.App, error)
	Disconnect(ctx context.Context) (string, error)
	HarvestLogs(ctx context.Context, packageName string, s sink.Sink) error
}

// GeneratorFactory builds the event generator once the app is known.
type GeneratorFactory func(app definitions.App) (event.Generator, error)

type Options struct {
	OutputDir string
	// App skips the last installed package lookup.
	App *definitions.App
	// LaunchApp unlocks the screen and starts the app before polling.
	LaunchApp bool

	// MaxWait bounds the foreground poll; zero waits forever.
	MaxWait      time.Duration
	PollInterval time.Duration

	// Sink receives the harvested logs; nil skips the harvest.
	Sink sink.Sink
}

type Controller struct {
	device    Device
	app       definitions.App
	generator event.Generator
	opts      Options

	mu     sync.Mutex
	status definitions.Status
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewController(ctx context.Context, device Device, newGenerator GeneratorFactory, opts Options) (*Controller, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	var app definitions.App
	if opts.App != nil {
		app = *opts.App
	} else {
		last, err := device.LastInstalledPackage(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve application: %w", err)
		}
		app = *last
	}

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	generator, err := newGenerator(app)
	if err != nil {
		return nil, fmt.Errorf("create event generator: %w", err)
	}

	log.Info().Str("package", app.Package).Str("activity", app.Activity).Str("path", app.Path).Msg("Automation session created")

	return &Controller{
		device:    device,
		app:       app,
		generator: generator,
		opts:      opts,
		status:    definitions.Created,
	}, nil
}

func (c *Controller) App() definitions.App {
	return c.app
}

func (c *Controller) Status() definitions.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start runs the session in its own goroutine. Wait returns its result.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.enter(); err != nil {
		return err
	}
	c.mu.Lock()
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		err := c.run(ctx)
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(done)
	}()
	return nil
}

// Wait blocks until a started session ends.
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Run executes the session on the calling goroutine.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.enter(); err != nil {
		return err
	}
	return c.run(ctx)
}

func (c *Controller) enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.status {
	case definitions.Running:
		return ErrAlreadyStarted
	case definitions.Stopped:
		return ErrSessionStopped
	}
	c.status = definitions.Running
	return nil
}

func (c *Controller) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	stopped := c.status == definitions.Stopped
	c.mu.Unlock()
	defer c.Stop(context.WithoutCancel(ctx))
	if stopped {
		return nil
	}

	if c.opts.LaunchApp {
		c.device.Unlock(ctx)
		if err := c.device.LaunchActivity(ctx, c.app.Package, c.app.Activity); err != nil {
			log.Warn().Err(err).Str("component", c.app.Component()).Msg("Launch failed, waiting for the app anyway")
		}
	}

	if err := c.waitForeground(ctx); err != nil {
		if interrupted(ctx, err) {
			log.Info().Msg("Session interrupted before the app reached the foreground")
			return nil
		}
		return err
	}

	log.Info().Str("package", c.app.Package).Msg("App in foreground, starting event generator")
	genErr := c.generator.Run(ctx)
	if genErr != nil && interrupted(ctx, genErr) {
		log.Info().Err(genErr).Msg("Event generator interrupted")
		genErr = nil
	}

	// an explicit Stop tears the session down without a harvest; a failed
	// generator still leaves logs on the device
	if c.opts.Sink != nil && c.Status() == definitions.Running {
		if err := c.device.HarvestLogs(context.WithoutCancel(ctx), c.app.Package, c.opts.Sink); err != nil {
			log.Error().Err(err).Msg("Harvesting logs failed")
		}
	}
	if genErr != nil {
		return fmt.Errorf("event generator: %w", genErr)
	}
	return nil
}

// waitForeground polls until the app is on top. Every poll queries the device.
func (c *Controller) waitForeground(ctx context.Context) error {
	var deadline <-chan time.Time
	if c.opts.MaxWait > 0 {
		timer := time.NewTimer(c.opts.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		if c.device.IsForeground(ctx, c.app) {
			log.Debug().Int("polls", polls).Msg("[WaitForeground] app in foreground")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			log.Error().Int("polls", polls).Dur("max_wait", c.opts.MaxWait).Msg("[WaitForeground] gave up")
			return fmt.Errorf("%w: %s after %s", ErrNeverForeground, c.app.Package, c.opts.MaxWait)
		case <-ticker.C:
		}
	}
}

// interrupted reports a stop request: Stop, cancellation or a caller deadline.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, event.ErrInterrupted)
}

// Stop ends the session: the foreground poll is cancelled, the generator is
// stopped and the device handle is released. It is idempotent and safe in any
// state.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.status == definitions.Stopped {
		c.mu.Unlock()
		return
	}
	c.status = definitions.Stopped
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.generator.Stop()
	if msg, err := c.device.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("Disconnect failed")
	} else {
		log.Info().Str("result", msg).Msg("Automation session stopped")
	}
}
