package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// LogitRequest is sent to the inference service.
type LogitRequest struct {
	Topic string `json:"topic"`
	Image string `json:"image"`
}

// LogitResponse is what the inference service answers with.
type LogitResponse struct {
	Logit *float32 `json:"logit"`
}

// Client computes similarity logits on a remote inference service exposing
// POST /logit and GET /health.
type Client struct {
	url        string
	httpClient *http.Client
	retries    uint64
	log        *zap.Logger
}

func NewClient(url string, timeout time.Duration, retries uint64, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		log:        log,
	}
}

// Logit re-encodes img as PNG and asks the service for its logit against topic.
func (c *Client) Logit(ctx context.Context, img image.Image, topic string) (float32, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return 0, fmt.Errorf("failed to encode image: %w", err)
	}
	body, err := json.Marshal(LogitRequest{
		Topic: topic,
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	var logit float32
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	err = backoff.Retry(func() error {
		var err error
		logit, err = c.logitOnce(ctx, body)
		if err != nil {
			c.log.Warn("Error querying inference service", zap.Error(err))
		}
		return err
	}, policy)
	return logit, err
}

func (c *Client) logitOnce(ctx context.Context, body []byte) (float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/logit", bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}

	var result LogitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Logit == nil {
		return 0, backoff.Permanent(fmt.Errorf("response has no logit"))
	}
	return *result.Logit, nil
}

// Ready checks GET {url}/health.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("inference service not ready: status %d", resp.StatusCode)
	}
	return nil
}
