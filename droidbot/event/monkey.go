package event

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/droidbot-go/droidbot/definitions"
)

var injectedRE = regexp.MustCompile(`Events injected: (\d+)`)

// Monkey hands event generation to the on-device monkey tool.
type Monkey struct {
	stopper

	device   Device
	app      definitions.App
	count    int
	throttle time.Duration
}

func NewMonkey(device Device, app definitions.App, opts Options) *Monkey {
	return &Monkey{
		device:   device,
		app:      app,
		count:    opts.count(),
		throttle: opts.throttle(),
	}
}

func (m *Monkey) args() []string {
	return []string{
		"monkey",
		"-p", m.app.Package,
		"--throttle", strconv.FormatInt(m.throttle.Milliseconds(), 10),
		"-v", strconv.Itoa(m.count),
	}
}

func (m *Monkey) Run(ctx context.Context) error {
	ctx, err := m.begin(ctx)
	if err != nil {
		return err
	}

	// monkey blocks for count*throttle; give it that plus a margin.
	budget := time.Duration(m.count)*m.throttle + time.Minute
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	log.Info().Str("package", m.app.Package).Int("count", m.count).Dur("throttle", m.throttle).Msg("[Monkey] starting")

	output := m.device.Shell(runCtx, m.args())
	if err := ctx.Err(); err != nil {
		return m.end(err)
	}

	match := injectedRE.FindStringSubmatch(output)
	switch {
	case match != nil:
		log.Info().Str("injected", match[1]).Msg("[Monkey] finished")
		return m.end(nil)
	case runCtx.Err() != nil:
		log.Warn().Dur("budget", budget).Msg("[Monkey] killed after its time budget")
		return m.end(nil)
	default:
		// an aborted monkey or a failed channel gives no summary
		log.Error().Str("output", strings.TrimSpace(output)).Msg("[Monkey] no event summary in monkey output")
		return m.end(fmt.Errorf("%w: %q", ErrMonkeyFailed, strings.TrimSpace(output)))
	}
}
