package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// huggingfaceCaller talks to the Hugging Face inference API. The endpoint is
// the API base, e.g. https://api-inference.huggingface.co; the model name is
// appended to the path per call.
type huggingfaceCaller struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newHuggingFaceCaller(apiKey, endpoint string) *huggingfaceCaller {
	return &huggingfaceCaller{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 0, // per-call deadline comes from the context
		},
	}
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

type hfError struct {
	Error string `json:"error"`
}

func (c *huggingfaceCaller) Call(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(hfRequest{
		Inputs: composePrompt(req),
		Parameters: hfParameters{
			MaxNewTokens:   req.MaxTokens,
			Temperature:    req.Temperature,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.baseURL + "/models/" + req.Model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		// 503 with an estimated_time body means the model is still loading.
		return nil, statusError(resp.StatusCode, respBody)
	}

	var generations []hfGeneration
	if err := json.Unmarshal(respBody, &generations); err != nil {
		var apiErr hfError
		if jsonErr := json.Unmarshal(respBody, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("inference error: %s", apiErr.Error)
		}
		return nil, fmt.Errorf("decoding inference response: %w", err)
	}
	if len(generations) == 0 || generations[0].GeneratedText == "" {
		return nil, fmt.Errorf("no generations in response")
	}
	return &Response{Text: generations[0].GeneratedText}, nil
}
