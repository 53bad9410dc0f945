package translator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/gigapi/gigapi-chat/config"
	"github.com/gigapi/gigapi-chat/core"
)

// failures in a row before the breaker opens
const breakerTrip = 3

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// OpenAI calls an OpenAI compatible chat completions endpoint. Calls go
// through a circuit breaker so a dead service is skipped without waiting for
// the timeout.
type OpenAI struct {
	cfg     config.CompletionConfiguration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
}

// NewOpenAI returns nil when no API key is configured
func NewOpenAI(cfg config.CompletionConfiguration) *OpenAI {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "completion",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerTrip
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				core.Logger().Sugar().Warnf("circuit breaker %s: %s -> %s", name, from, to)
			},
		}),
	}
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	return o.breaker.Execute(func() (string, error) {
		return o.call(ctx, prompt)
	})
}

func (o *OpenAI) call(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       o.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion: %w", err)
	}

	var res chatResponse
	if resp.StatusCode >= http.StatusBadRequest {
		if json.Unmarshal(raw, &res) == nil && res.Error != nil {
			return "", fmt.Errorf("completion service returned %d: %s", resp.StatusCode, res.Error.Message)
		}
		return "", fmt.Errorf("completion service returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("malformed completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("completion has no choices")
	}
	return res.Choices[0].Message.Content, nil
}
