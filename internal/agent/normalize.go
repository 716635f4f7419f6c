package agent

import (
	"errors"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var errNoChoices = errors.New("model returned no choices")

// ResponseNormalizer turns a raw completion into the one assistant message
// the loop acts on. It is chosen at construction time.
type ResponseNormalizer interface {
	Normalize(resp openai.ChatCompletionResponse) (openai.ChatCompletionMessage, error)
}

// NormalizerFunc adapts a function to ResponseNormalizer.
type NormalizerFunc func(resp openai.ChatCompletionResponse) (openai.ChatCompletionMessage, error)

func (f NormalizerFunc) Normalize(resp openai.ChatCompletionResponse) (openai.ChatCompletionMessage, error) {
	return f(resp)
}

// FirstChoice takes the first choice's message as is.
var FirstChoice = NormalizerFunc(func(resp openai.ChatCompletionResponse) (openai.ChatCompletionMessage, error) {
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errNoChoices
	}
	return resp.Choices[0].Message, nil
})

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning wraps next and removes <think>...</think> blocks that
// reasoning models put in front of their answer.
func StripReasoning(next ResponseNormalizer) ResponseNormalizer {
	if next == nil {
		next = FirstChoice
	}
	return NormalizerFunc(func(resp openai.ChatCompletionResponse) (openai.ChatCompletionMessage, error) {
		msg, err := next.Normalize(resp)
		if err != nil {
			return msg, err
		}
		msg.Content = strings.TrimSpace(thinkBlock.ReplaceAllString(msg.Content, ""))
		return msg, nil
	})
}

// NormalizerByName maps a configuration value to a normalizer. Unknown
// names fall back to FirstChoice.
func NormalizerByName(name string) ResponseNormalizer {
	switch strings.ToLower(name) {
	case "strip-reasoning", "strip-think":
		return StripReasoning(FirstChoice)
	default:
		return FirstChoice
	}
}
