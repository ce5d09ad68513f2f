package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/spance/droidbot-go/droidbot/definitions"
	"github.com/spance/droidbot-go/droidbot/helper"
)

var actionMarkers = []string{"finish(message=", "do(action="}

type ModelClient struct {
	config *definitions.ModelConfig
	client *openai.Client
}

func NewModelClient(cfg *definitions.ModelConfig) *ModelClient {
	if cfg == nil {
		cfg = &definitions.ModelConfig{}
	}
	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiCfg.BaseURL = cfg.BaseURL
	}

	return &ModelClient{
		config: cfg,
		client: openai.NewClientWithConfig(openaiCfg),
	}
}

type ModelResponse struct {
	Thinking          string
	Action            string
	RawContent        string
	TimeToFirstToken  *float64
	TimeToThinkingEnd *float64
	TotalTime         float64
}

// Request streams one completion and splits it into thinking and action.
func (c *ModelClient) Request(ctx context.Context, messages []openai.ChatCompletionMessage) (*ModelResponse, error) {
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}
	startTime := time.Now()

	var (
		timeToFirstToken  *float64
		timeToThinkingEnd *float64

		rawContent    strings.Builder
		inActionPhase bool
	)

	req := openai.ChatCompletionRequest{
		Model:               c.config.ModelName,
		Messages:            messages,
		MaxCompletionTokens: c.config.MaxTokens,
		Temperature:         c.config.Temperature,
		TopP:                c.config.TopP,
		FrequencyPenalty:    c.config.FrequencyPenalty,
		Stream:              true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("[ModelClient] CreateChatCompletionStream failed")
		return nil, err
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			log.Error().Err(err).Msg("[ModelClient] stream failed")
			return nil, err
		}

		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		rawContent.WriteString(delta)

		if timeToFirstToken == nil {
			t := time.Since(startTime).Seconds()
			timeToFirstToken = &t
		}

		if inActionPhase {
			continue
		}
		if containsMarker(rawContent.String()) {
			inActionPhase = true
			t := time.Since(startTime).Seconds()
			timeToThinkingEnd = &t
		}
	}

	totalTime := time.Since(startTime).Seconds()
	thinking, action := parseResponse(rawContent.String())

	logMetrics(c.config.Lang, timeToFirstToken, timeToThinkingEnd, totalTime)

	return &ModelResponse{
		Thinking:          thinking,
		Action:            action,
		RawContent:        rawContent.String(),
		TimeToFirstToken:  timeToFirstToken,
		TimeToThinkingEnd: timeToThinkingEnd,
		TotalTime:         totalTime,
	}, nil
}

func containsMarker(s string) bool {
	for _, marker := range actionMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// parseResponse splits content into thinking and action.
//
// finish(message= wins over do(action=; everything before the marker is
// thinking. Legacy <think>/<answer> tags are understood as a fallback, and
// content without any marker is returned whole as the action.
func parseResponse(content string) (string, string) {
	for _, marker := range actionMarkers {
		if before, after, ok := strings.Cut(content, marker); ok {
			return strings.TrimSpace(before), marker + after
		}
	}

	if before, after, ok := strings.Cut(content, "<answer>"); ok {
		thinking := strings.TrimSpace(
			strings.ReplaceAll(
				strings.ReplaceAll(before, "<think>", ""),
				"</think>", "",
			),
		)
		action := strings.TrimSpace(strings.ReplaceAll(after, "</answer>", ""))
		return thinking, action
	}

	return "", content
}

func logMetrics(lang string, firstToken *float64, thinkingEnd *float64, total float64) {
	evt := log.Debug()
	if firstToken != nil {
		evt = evt.Str(helper.GetMessage("time_to_first_token", lang), formatSeconds(*firstToken))
	}
	if thinkingEnd != nil {
		evt = evt.Str(helper.GetMessage("time_to_thinking_end", lang), formatSeconds(*thinkingEnd))
	}
	evt.Str(helper.GetMessage("total_inference_time", lang), formatSeconds(total)).
		Msg("⏱️  " + helper.GetMessage("performance_metrics", lang))
}

func formatSeconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond).String()
}
