// Package completion talks to an OpenAI-compatible chat completion API.
// It backs the assessment notes adjustment and the profession emoji picker.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fres-sudo/neuravia/internal/adapters/resilience"
	"github.com/fres-sudo/neuravia/pkg/logger"
	"github.com/fres-sudo/neuravia/pkg/metrics"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Default client configuration constants.
const (
	defaultBaseURL       = "https://api.openai.com/v1"
	defaultModel         = "gpt-4o-mini"
	defaultTimeout       = 20 * time.Second
	defaultRatePerSecond = 2
	defaultBurst         = 4
	maxErrorBody         = 512
	serviceName          = "completion"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client is a rate limited, circuit broken chat completion client.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	timeout       time.Duration
	ratePerSecond float64
	burst         int
	breakerCfg    resilience.BreakerConfig

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     logger.Logger
}

// New creates a completion client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:       defaultBaseURL,
		model:         defaultModel,
		timeout:       defaultTimeout,
		ratePerSecond: defaultRatePerSecond,
		burst:         defaultBurst,
		log:           logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	c.log = c.log.Named(serviceName)
	c.limiter = rate.NewLimiter(rate.Limit(c.ratePerSecond), c.burst)
	c.breaker = resilience.NewBreaker(serviceName, c.breakerCfg, c.log)
	return c
}

// Complete sends prompt as a single user message and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.do(ctx, prompt)
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if resilience.IsOpen(err) {
			outcome = "rejected"
		}
	}
	metrics.RecordExternalCall(serviceName, outcome, float64(time.Since(start).Milliseconds()))

	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	return out.(string), nil
}

func (c *Client) do(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}
