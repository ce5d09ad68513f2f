package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/spance/droidbot-go/constants"
	"github.com/spance/droidbot-go/droidbot/definitions"
	"github.com/spance/droidbot-go/droidbot/helper"
	"github.com/spance/droidbot-go/droidbot/llm"
	"github.com/spance/droidbot-go/utils"
)

const defaultMaxSteps = 50

// Requester sends a conversation to a model.
type Requester interface {
	Request(ctx context.Context, messages []openai.ChatCompletionMessage) (*llm.ModelResponse, error)
}

// Explorer lets a vision model pick the next UI action from a screenshot.
type Explorer struct {
	stopper

	device Device
	app    definitions.App
	config definitions.ExploreConfig
	client Requester

	messages  []openai.ChatCompletionMessage
	stepCount int
}

func NewExplorer(device Device, app definitions.App, config definitions.ExploreConfig, client Requester) *Explorer {
	if config.MaxSteps <= 0 {
		config.MaxSteps = defaultMaxSteps
	}
	return &Explorer{
		device: device,
		app:    app,
		config: config,
		client: client,
	}
}

type StepResult struct {
	Success  bool
	Finished bool
	Action   helper.Action
	Thinking string
	Message  string
}

func (r *Explorer) Run(ctx context.Context) error {
	ctx, err := r.begin(ctx)
	if err != nil {
		return err
	}

	for r.stepCount < r.config.MaxSteps {
		if ctx.Err() != nil {
			return r.end(ctx.Err())
		}
		result, err := r.Step(ctx)
		if err != nil {
			log.Error().Int("step", r.stepCount).Err(err).Msg("Failed to execute step")
			return r.end(err)
		}
		if result.Finished {
			log.Info().Int("step", r.stepCount).Msgf("✅ %s: %s", helper.GetMessage("finished", r.config.Lang), result.Message)
			return r.end(nil)
		}
	}

	log.Info().Int("steps", r.stepCount).Msg("Max steps reached")
	return r.end(nil)
}

// Step runs one screenshot, model and action round trip.
func (r *Explorer) Step(ctx context.Context) (*StepResult, error) {
	r.stepCount++

	screenshot, width, height := r.observe(ctx)
	activity, _ := r.device.TopActivity(ctx)

	if len(r.messages) == 0 {
		display := &definitions.DisplayInfo{Width: width, Height: height}
		r.messages = append(r.messages, helper.CreateSystemMessage(r.config.GetSystemPrompt(r.app, activity, display)))
	}

	var image *string
	if screenshot != nil {
		image = &screenshot.Base64Data
	}
	r.messages = append(r.messages, helper.CreateUserMessage("** Screen Info **\n\n"+helper.BuildScreenInfo(activity, r.stepCount), image))
	helper.LogChatMessage(&r.messages[len(r.messages)-1])

	response, err := r.client.Request(ctx, r.messages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("model request: %w", err)
	}
	log.Trace().Str("response", utils.JsonString(response)).Msg("💭 model response")

	// keep only the latest screenshot in the conversation
	r.messages[len(r.messages)-1] = helper.RemoveImagesFromMessage(r.messages[len(r.messages)-1])
	r.messages = append(r.messages, helper.CreateAssistantMessage(
		"<think>"+response.Thinking+"</think><answer>"+response.Action+"</answer>",
	))

	action, err := helper.ParseAction(response.Action)
	if err != nil {
		log.Warn().Int("step", r.stepCount).Err(err).Msg("failed to parse action, asking again")
		return &StepResult{Thinking: response.Thinking, Message: err.Error()}, nil
	}
	log.Debug().Int("step", r.stepCount).Str(helper.GetMessage("action", r.config.Lang), utils.JsonString(action)).Msg("parsed action")

	result, err := r.ExecuteAction(ctx, action, width, height)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Int("step", r.stepCount).Err(err).Msg("failed to execute action")
		result = helper.ActionResult{Message: fmt.Sprintf("Action execution error: %v", err)}
	}

	return &StepResult{
		Success:  result.Success,
		Finished: result.ShouldFinish,
		Action:   action,
		Thinking: response.Thinking,
		Message:  result.Message,
	}, nil
}

// observe captures the screen. Without a screenshot the display geometry is
// used so coordinates still map onto the device.
func (r *Explorer) observe(ctx context.Context) (*definitions.Screenshot, int, int) {
	screenshot, err := r.device.CaptureScreen(ctx)
	if err == nil {
		return screenshot, screenshot.Width, screenshot.Height
	}
	log.Warn().Int("step", r.stepCount).Err(err).Msg("Failed to get screenshot, continuing without image")

	if info := r.device.GetDisplayInfo(ctx); info != nil {
		return nil, info.Width, info.Height
	}
	return nil, constants.DefaultScreenWidth, constants.DefaultScreenHeight
}

func (r *Explorer) ExecuteAction(ctx context.Context, action helper.Action, width, height int) (helper.ActionResult, error) {
	switch action.Metadata() {
	case helper.MetadataFinish:
		return helper.ActionResult{Success: true, ShouldFinish: true, Message: action.String("message")}, nil
	case helper.MetadataDo:
	default:
		return helper.ActionResult{Message: fmt.Sprintf("Unknown action type: %s", action.Metadata())}, nil
	}

	switch action.Name() {
	case "Launch":
		return done(relaunch(ctx, r.device, r.app))
	case "Tap":
		return r.atPoint(action, "element", width, height, func(x, y int) error {
			return r.device.Tap(ctx, x, y)
		})
	case "Double Tap":
		return r.atPoint(action, "element", width, height, func(x, y int) error {
			return errors.Join(r.device.Tap(ctx, x, y), r.device.Tap(ctx, x, y))
		})
	case "Long Press":
		return r.atPoint(action, "element", width, height, func(x, y int) error {
			return r.device.LongPress(ctx, x, y)
		})
	case "Swipe":
		sx, sy, ok1 := action.Point("start")
		ex, ey, ok2 := action.Point("end")
		if !ok1 || !ok2 {
			return helper.ActionResult{Message: "Invalid swipe coordinates"}, nil
		}
		sx, sy = toAbsolute(sx, sy, width, height)
		ex, ey = toAbsolute(ex, ey, width, height)
		return done(r.device.Swipe(ctx, sx, sy, ex, ey, 300))
	case "Type", "Type_Name":
		return done(r.device.TypeText(ctx, action.String("text")))
	case "Back":
		return done(r.device.Press(ctx, "BACK"))
	case "Home":
		return done(r.device.Press(ctx, "HOME"))
	case "Wait":
		return done(sleep(ctx, parseDuration(action.String("duration"))))
	default:
		return helper.ActionResult{Message: fmt.Sprintf("Unknown action name: %s", action.Name())}, nil
	}
}

func (r *Explorer) atPoint(action helper.Action, key string, width, height int, fn func(x, y int) error) (helper.ActionResult, error) {
	x, y, ok := action.Point(key)
	if !ok {
		return helper.ActionResult{Message: "Invalid element coordinates"}, nil
	}
	return done(fn(toAbsolute(x, y, width, height)))
}

func done(err error) (helper.ActionResult, error) {
	if err != nil {
		return helper.ActionResult{}, err
	}
	return helper.ActionResult{Success: true}, nil
}

// toAbsolute maps the model's 0-1000 grid onto the screen.
func toAbsolute(x, y, width, height int) (int, int) {
	return int(float64(x) / 1000 * float64(width)), int(float64(y) / 1000 * float64(height))
}

func parseDuration(s string) time.Duration {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "seconds"))
	s = strings.TrimSpace(strings.TrimSuffix(s, "second"))
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil || seconds <= 0 {
		return time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}
