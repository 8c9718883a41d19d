// Package client talks to the scoring service from a game server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type RateRequest struct {
	Topic string `json:"topic"`
	Image string `json:"image"`
}

type RateResponse struct {
	Score int `json:"score"`
}

// Client calls POST {baseURL}/rate.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Rate returns the score for a base64 (or data URL) drawing.
func (c *Client) Rate(ctx context.Context, topic, image string) (int, error) {
	body, err := json.Marshal(RateRequest{Topic: topic, Image: image})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rate", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			return 0, fmt.Errorf("scoring service returned status %d", resp.StatusCode)
		}
		return 0, fmt.Errorf("scoring service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result RateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Score, nil
}

// Fallback never fails: without a client it hands out a score in [60, 100),
// and when the service errors it hands out one in [50, 80).
type Fallback struct {
	client *Client
	log    *zap.Logger

	mu   sync.Mutex
	rand *rand.Rand
}

// NewFallback wraps c, which may be nil when no scoring service is configured.
func NewFallback(c *Client, r *rand.Rand, log *zap.Logger) *Fallback {
	if r == nil {
		r = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{client: c, rand: r, log: log}
}

func (f *Fallback) intN(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rand.IntN(n)
}

// Rate is safe for concurrent use.
func (f *Fallback) Rate(ctx context.Context, topic, image string) int {
	if f.client == nil {
		return 60 + f.intN(40)
	}
	score, err := f.client.Rate(ctx, topic, image)
	if err != nil {
		f.log.Warn("Scoring service failed, using a random score", zap.String("topic", topic), zap.Error(err))
		return 50 + f.intN(30)
	}
	return score
}
