package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fres-sudo/neuravia/internal/domain/scoring"
)

// Submission outcomes.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Get performs a GET request against path.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// wsURL returns the websocket URL for path.
func (c *HTTPClient) wsURL(path string) string {
	u := c.baseURL + path
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}

// decodeResponse reads, closes and decodes a response body into v.
func decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if v == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func patientPath(patientID, suffix string) string {
	return "/patients/" + url.PathEscape(patientID) + suffix
}

// gamePayload is the request body of a game submission.
type gamePayload struct {
	SessionID string              `json:"session_id"`
	Mode      string              `json:"mode,omitempty"`
	Summary   scoring.GameSummary `json:"summary"`
}

// submitGames reports game results concurrently using a worker pool. A
// ResendRatio share of results is sent a second time to exercise
// idempotency.
func submitGames(ctx context.Context, config *Config, games []GameSubmission, stats *Stats) error {
	log.Printf("📤 Submitting %d game results with %d workers...", len(games), config.Workers)

	client := newHTTPClient(config.BaseURL, config.Timeout)

	var (
		accepted  int64
		duplicate int64
		failed    int64
		submitted int64
	)

	var lastReport atomic.Int64
	reportInterval := time.Second

	gameChan := make(chan GameSubmission, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for game := range gameChan {
				if ctx.Err() != nil {
					return
				}
				result := submitSingleGame(ctx, client, game)

				atomic.AddInt64(&submitted, 1)
				switch result {
				case outcomeAccepted:
					atomic.AddInt64(&accepted, 1)
				case outcomeDuplicate:
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(reportInterval) && lastReport.CompareAndSwap(last, now) {
					if config.Verbose {
						log.Printf("📊 Progress: %d submitted (accepted: %d, duplicate: %d, failed: %d)",
							atomic.LoadInt64(&submitted), atomic.LoadInt64(&accepted),
							atomic.LoadInt64(&duplicate), atomic.LoadInt64(&failed))
					}
				}
			}
		}()
	}

	go func() {
		defer close(gameChan)
		for _, game := range games {
			sends := 1
			if getRandomFloat() < config.ResendRatio {
				sends = 2
			}
			for range sends {
				select {
				case <-ctx.Done():
					return
				case gameChan <- game:
				}
			}
		}
	}()

	wg.Wait()

	stats.GamesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.GamesAccepted = int(atomic.LoadInt64(&accepted))
	stats.GamesDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.GamesFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`✅ Game submission completed:
   Accepted: %d
   Duplicate: %d
   Failed: %d
`, stats.GamesAccepted, stats.GamesDuplicate, stats.GamesFailed)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submission interrupted: %w", err)
	}
	return nil
}

// submitSingleGame submits one game result and returns its outcome.
func submitSingleGame(ctx context.Context, client *HTTPClient, game GameSubmission) string {
	resp, err := client.Post(ctx, patientPath(game.PatientID, "/games"), gamePayload{
		SessionID: game.SessionID,
		Mode:      game.Mode,
		Summary:   game.Summary,
	})
	if err != nil {
		return outcomeFailed
	}

	var ack AckResponse
	decodeErr := decodeResponse(resp, &ack)

	switch resp.StatusCode {
	case StatusAccepted:
		return outcomeAccepted
	case StatusOK:
		if decodeErr == nil && !ack.Duplicate {
			return outcomeAccepted
		}
		return outcomeDuplicate
	default:
		return outcomeFailed
	}
}
