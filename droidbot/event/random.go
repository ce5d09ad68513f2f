package event

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spance/droidbot-go/constants"
	"github.com/spance/droidbot-go/droidbot/definitions"
	"golang.org/x/time/rate"
)

type randomKind string

const (
	kindTap       randomKind = "tap"
	kindLongPress randomKind = "long_press"
	kindSwipe     randomKind = "swipe"
	kindKey       randomKind = "key"
	kindText      randomKind = "text"
)

// kinds is weighted towards taps.
var kinds = []randomKind{kindTap, kindTap, kindTap, kindTap, kindSwipe, kindSwipe, kindLongPress, kindKey, kindText}

var randomKeys = []string{"BACK", "MENU", "ENTER", "DPAD_UP", "DPAD_DOWN", "VOLUME_UP", "VOLUME_DOWN"}

var randomTexts = []string{"hello", "test", "12345", "admin", "user@example.com"}

// foregroundEvery is how many events pass between two foreground checks.
const foregroundEvery = 10

// Random injects uniformly placed taps, swipes, key presses and text.
type Random struct {
	stopper

	device  Device
	app     definitions.App
	count   int
	limiter *rate.Limiter
	intn    func(n int) int
}

func NewRandom(device Device, app definitions.App, opts Options) *Random {
	return &Random{
		device:  device,
		app:     app,
		count:   opts.count(),
		limiter: rate.NewLimiter(rate.Every(opts.throttle()), 1),
		intn:    rand.IntN,
	}
}

func (r *Random) Run(ctx context.Context) error {
	ctx, err := r.begin(ctx)
	if err != nil {
		return err
	}

	width, height := constants.DefaultScreenWidth, constants.DefaultScreenHeight
	if info := r.device.GetDisplayInfo(ctx); info != nil {
		width, height = info.Width, info.Height
	}
	log.Info().Str("package", r.app.Package).Int("count", r.count).Int("width", width).Int("height", height).Dur("throttle", r.throttle()).Msg("[Random] starting")

	for i := 0; i < r.count; i++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return r.end(ctxErr(ctx))
		}
		if i%foregroundEvery == 0 && !r.device.IsForeground(ctx, r.app) {
			log.Info().Int("event", i).Msg("[Random] app left foreground, relaunching")
			if err := relaunch(ctx, r.device, r.app); err != nil {
				log.Warn().Err(err).Msg("[Random] relaunch failed")
			}
			continue
		}
		if err := r.fire(ctx, width, height); err != nil {
			log.Warn().Err(err).Int("event", i).Msg("[Random] event failed")
		}
	}

	log.Info().Int("count", r.count).Msg("[Random] finished")
	return r.end(nil)
}

func (r *Random) fire(ctx context.Context, width, height int) error {
	x, y := r.intn(width), r.intn(height)

	switch lo.Sample(kinds) {
	case kindSwipe:
		return r.device.Swipe(ctx, x, y, r.intn(width), r.intn(height), 200+r.intn(600))
	case kindLongPress:
		return r.device.LongPress(ctx, x, y)
	case kindKey:
		return r.device.Press(ctx, lo.Sample(randomKeys))
	case kindText:
		if err := r.device.Tap(ctx, x, y); err != nil {
			return err
		}
		return r.device.TypeText(ctx, lo.Sample(randomTexts))
	default:
		return r.device.Tap(ctx, x, y)
	}
}

// throttle reports the limiter interval.
func (r *Random) throttle() time.Duration {
	return time.Duration(float64(time.Second) / float64(r.limiter.Limit()))
}
