package recognition

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ripandrun-ingest/internal/models"
)

//go:embed prompt.md
var extractionPrompt string

const maxReplyTokens = 1000

// HTTPClient calls an OpenAI-compatible chat-completions vision endpoint to
// read one scanned dispatch sheet into structured JSON.
type HTTPClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewHTTPClient builds a recognition client from configuration
func NewHTTPClient(cfg models.RecognitionConfig) *HTTPClient {
	return &HTTPClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Request/response shapes for the chat-completions API. Only the fields this
// client touches are modelled.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Recognize sends the document with the extraction prompt and decodes the
// model's JSON reply. Temperature 0 keeps the output deterministic.
func (c *HTTPClient) Recognize(ctx context.Context, document []byte) (*Output, error) {
	dataURL := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(document)

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: extractionPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "high"}},
			},
		}},
		MaxTokens:   maxReplyTokens,
		Temperature: 0,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal recognition request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build recognition request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		if isRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrIllegible, resp.StatusCode, truncate(body, 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("%w: decoding response envelope: %v", ErrIllegible, err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("%w: API error: %s", ErrIllegible, chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrIllegible)
	}

	return decodeOutput(chat.Choices[0].Message.Content)
}

// isRetryableStatus classifies HTTP statuses: timeouts, rate limits and
// server errors are transient, everything else is terminal for the document.
func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Client = (*HTTPClient)(nil)
