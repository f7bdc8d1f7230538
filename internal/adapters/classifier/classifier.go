// Package classifier uploads MRI scans to the inference server and maps its
// answer onto the severity order used by the Boost score.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/fres-sudo/neuravia/internal/adapters/resilience"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
	"github.com/fres-sudo/neuravia/pkg/logger"
	"github.com/fres-sudo/neuravia/pkg/metrics"
	"github.com/sony/gobreaker"
)

// Default client configuration constants.
const (
	defaultURL     = "http://localhost:5000/process"
	defaultTimeout = 20 * time.Second
	maxErrorBody   = 512
	serviceName    = "classifier"
)

// ModelLabels is the order in which the inference server reports classes.
var ModelLabels = []string{"Mild_Demented", "Moderate_Demented", "Non_Demented", "Very_Mild_Demented"}

// severityIndex places each model label on the healthy to severe scale.
var severityIndex = map[string]int{
	"Non_Demented":       scoring.ClassHealthy,
	"Very_Mild_Demented": scoring.ClassMild,
	"Mild_Demented":      scoring.ClassModerate,
	"Moderate_Demented":  scoring.ClassSevere,
}

// inferenceResult is the wire format of the inference server.
type inferenceResult struct {
	PredictedLabel    string    `json:"predicted_label"`
	PredictedClassIdx int       `json:"predicted_class_idx"`
	Confidence        float64   `json:"confidence"`
	Probabilities     []float64 `json:"probabilities"`
	AllLabels         []string  `json:"all_labels"`
}

// Classification is an inference result in severity order.
type Classification struct {
	Probabilities  [scoring.ClassCount]float64 `json:"probabilities"`
	PredictedLabel string                      `json:"predicted_label"`
	Confidence     float64                     `json:"confidence"`
	Labels         []string                    `json:"labels"`
	Raw            map[string]any              `json:"raw,omitempty"`
}

// Client uploads images to the inference server.
type Client struct {
	url        string
	timeout    time.Duration
	breakerCfg resilience.BreakerConfig

	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithURL sets the inference endpoint.
func WithURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.url = u
		}
	}
}

// WithTimeout bounds a single upload.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker overrides the circuit breaker configuration.
func WithBreaker(cfg resilience.BreakerConfig) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a classifier client.
func New(opts ...Option) *Client {
	c := &Client{
		url:     defaultURL,
		timeout: defaultTimeout,
		log:     logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named(serviceName)
	c.http = &http.Client{Timeout: c.timeout}
	c.breaker = resilience.NewBreaker(serviceName, c.breakerCfg, c.log)
	return c
}

// Classify uploads image as multipart field "file" and returns the result
// with probabilities ordered healthy, mild, moderate, severe.
func (c *Client) Classify(ctx context.Context, filename string, image []byte) (Classification, error) {
	if len(image) == 0 {
		return Classification{}, fmt.Errorf("%w: %w", ErrClassification, ErrEmptyImage)
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.upload(ctx, filename, image)
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
		c.log.Error(ctx, "classification failed", logger.String("filename", filename), logger.Error(err))
		return Classification{}, fmt.Errorf("%w: %w", ErrClassification, err)
	}
	return out.(Classification), nil
}

func (c *Client) upload(ctx context.Context, filename string, image []byte) (Classification, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Classification{}, err
	}
	if _, err := part.Write(image); err != nil {
		return Classification{}, err
	}
	if err := mw.Close(); err != nil {
		return Classification{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return Classification{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Classification{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Classification{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(payload) > maxErrorBody {
			payload = payload[:maxErrorBody]
		}
		return Classification{}, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return Decode(payload)
}

// Decode parses an inference server payload and reorders it by severity.
// A payload without all_labels is assumed to use ModelLabels order.
func Decode(payload []byte) (Classification, error) {
	var res inferenceResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return Classification{}, fmt.Errorf("decode inference result: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Classification{}, fmt.Errorf("decode inference result: %w", err)
	}

	labels := res.AllLabels
	if len(labels) == 0 {
		labels = ModelLabels
	}
	if len(res.Probabilities) != len(labels) {
		return Classification{}, fmt.Errorf("%d probabilities for %d labels", len(res.Probabilities), len(labels))
	}

	out := Classification{
		PredictedLabel: res.PredictedLabel,
		Confidence:     res.Confidence,
		Labels:         labels,
		Raw:            raw,
	}
	seen := make(map[int]bool, len(labels))
	for i, label := range labels {
		idx, ok := severityIndex[label]
		if !ok {
			return Classification{}, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
		}
		if seen[idx] {
			return Classification{}, fmt.Errorf("duplicate label %q", label)
		}
		seen[idx] = true
		out.Probabilities[idx] = res.Probabilities[i]
	}
	return out, nil
}

// Score is the normalised MRI activity value of the classification.
func (c Classification) Score() float64 {
	return scoring.NormalizeMRIUpload(c.Probabilities[:])
}
