package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client calls OpenAI-compatible chat completion endpoints. The provider
// (credential, model, endpoint) is chosen per call.
type Client struct {
	httpClient *http.Client
	stubMode   bool
}

// NewClient creates a new AI client. In stub mode no provider is contacted.
func NewClient(stubMode bool) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		stubMode:   stubMode,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	Temperature    float64                `json:"temperature,omitempty"`
	ResponseFormat map[string]interface{} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateIdea asks the provider for a content idea conforming to the
// ContentIdea schema.
func (c *Client) GenerateIdea(ctx context.Context, prompt string, cfg ProviderConfig) (*ContentIdea, error) {
	if c.stubMode {
		return stubIdea(prompt), nil
	}

	reqBody := chatRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}
	switch cfg.ResponseFormat {
	case FormatJSONObject:
		schemaJSON, err := json.Marshal(wireSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema: %w", err)
		}
		reqBody.Messages = []chatMessage{
			{Role: "system", Content: "Reply with a single JSON object matching this JSON Schema: " + string(schemaJSON)},
			{Role: "user", Content: prompt},
		}
		reqBody.ResponseFormat = map[string]interface{}{"type": FormatJSONObject}
	default:
		reqBody.Messages = []chatMessage{{Role: "user", Content: prompt}}
		reqBody.ResponseFormat = map[string]interface{}{
			"type": FormatJSONSchema,
			"json_schema": map[string]interface{}{
				"name":   "content_idea",
				"strict": true,
				"schema": wireSchema,
			},
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s returned status %d: %s", cfg.Name, resp.StatusCode, string(body))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrSchemaMismatch)
	}
	choice := completion.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("%s refused the request: %s", cfg.Name, choice.Message.Refusal)
	}

	return ParseIdea(choice.Message.Content)
}

func stubIdea(prompt string) *ContentIdea {
	topic := "Morning coffee rituals"
	if _, rest, ok := strings.Cut(prompt, "**Topics to explore**: "); ok {
		if line, _, _ := strings.Cut(rest, "\n"); line != "" {
			topic = line
		}
	}
	return &ContentIdea{
		Topic:       topic,
		VideoPrompt: "Slow cinematic close-up, warm morning light, shallow depth of field, about " + topic,
		PostCaption: "You have been doing this wrong your whole life.",
		Hashtags:    []string{"fyp", "#viral", "learnontiktok"},
	}
}
