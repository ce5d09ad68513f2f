package helper

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/spance/droidbot-go/constants"
	"github.com/spance/droidbot-go/utils"
)

func CreateSystemMessage(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: content,
	}
}

func CreateAssistantMessage(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: content,
	}
}

func CreateUserMessage(text string, imageBase64 *string) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: text,
			},
		},
	}
	if imageBase64 != nil && *imageBase64 != "" {
		msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: fmt.Sprintf("data:image/png;base64,%s", *imageBase64),
			},
		})
	}
	return msg
}

// LogChatMessage logs user text and assistant content; system prompts and
// images are skipped.
func LogChatMessage(msg *openai.ChatCompletionMessage) {
	switch msg.Role {
	case openai.ChatMessageRoleUser:
		for _, part := range msg.MultiContent {
			if part.Type == openai.ChatMessagePartTypeText {
				log.Debug().Str("text", part.Text).Msg("👤 user message")
			}
		}
	case openai.ChatMessageRoleAssistant:
		log.Debug().Str("content", msg.Content).Msg("🌐 assistant message")
	}
}

// BuildScreenInfo describes the current screen for the next user turn.
func BuildScreenInfo(foreground string, step int) string {
	return utils.JsonString(map[string]interface{}{
		"current_app": foreground,
		"step":        step,
	})
}

func GetMessage(key string, lang string) string {
	if lang == "en" {
		return constants.MESSAGES_EN_MAP[key]
	}
	return constants.MESSAGES_ZH_MAP[key]
}

func RemoveImagesFromMessage(message openai.ChatCompletionMessage) openai.ChatCompletionMessage {
	var multiContent []openai.ChatMessagePart
	if message.MultiContent != nil {
		for _, part := range message.MultiContent {
			if part.Type == openai.ChatMessagePartTypeText {
				multiContent = append(multiContent, part)
			}
		}
		message.MultiContent = multiContent
	}
	return message
}
