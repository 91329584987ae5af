package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiCaller talks to OpenAI and OpenAI-hosted compatible deployments via
// the official SDK. An endpoint override redirects the SDK's base URL.
type openaiCaller struct {
	client openai.Client
}

func newOpenAICaller(apiKey, endpoint string) *openaiCaller {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	return &openaiCaller{client: openai.NewClient(opts...)}
}

func (c *openaiCaller) Call(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(composePrompt(req)),
		},
		MaxCompletionTokens: openai.Int(int64(req.MaxTokens)),
		Temperature:         openai.Float(req.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	return &Response{Text: resp.Choices[0].Message.Content}, nil
}
