package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// geminiCaller talks to Gemini models via the Gemini API backend. The SDK
// fixes the endpoint; a configured endpoint is ignored for this kind.
type geminiCaller struct {
	client *genai.Client
}

func newGeminiCaller(apiKey string) (*geminiCaller, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &geminiCaller{client: client}, nil
}

func (c *geminiCaller) Call(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(composePrompt(req)), &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		Temperature:     genai.Ptr(float32(req.Temperature)),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini call: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	var text string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			text += part.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("gemini returned no text content")
	}
	return &Response{Text: text}, nil
}
