package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Ollama talks to a locally hosted model via the Ollama chat API.
type Ollama struct {
	endpoint   string
	model      string
	maxTokens  int
	httpClient *http.Client
}

type OllamaOption func(*Ollama)

func WithOllamaModel(model string) OllamaOption {
	return func(o *Ollama) {
		o.model = model
	}
}

func WithOllamaMaxTokens(n int) OllamaOption {
	return func(o *Ollama) {
		o.maxTokens = n
	}
}

func WithOllamaHTTPClient(c *http.Client) OllamaOption {
	return func(o *Ollama) {
		o.httpClient = c
	}
}

func NewOllama(endpoint string, opts ...OllamaOption) (*Ollama, error) {
	if endpoint == "" {
		return nil, goerr.New("ollama endpoint is required")
	}

	o := &Ollama{
		endpoint:  endpoint,
		model:     "mlmlml:latest",
		maxTokens: 4096,
		httpClient: &http.Client{
			// Local generation can be slow under load.
			Timeout: 180 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
}

// Generate sends exactly one system + user turn with no prior history.
func (o *Ollama) Generate(ctx context.Context, system, prompt string) (string, error) {
	payload := ollamaRequest{
		Model: o.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream: false,
		Options: ollamaOptions{
			NumPredict:  o.maxTokens,
			Temperature: 0.8,
			NumCtx:      8192,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal ollama request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create ollama request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "ollama backend unreachable", goerr.V("endpoint", o.endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", goerr.New("ollama returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(raw)))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", goerr.Wrap(err, "failed to decode ollama response")
	}

	return out.Message.Content, nil
}
