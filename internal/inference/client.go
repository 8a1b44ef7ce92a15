package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ServiceConfig locates one model-serving endpoint.
type ServiceConfig struct {
	URL     string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// client talks to a model-serving sidecar over JSON.
type client struct {
	base  string
	http  *http.Client
	retry RetryPolicy
}

func newClient(cfg ServiceConfig) *client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &client{
		base:  strings.TrimRight(cfg.URL, "/"),
		http:  &http.Client{Timeout: timeout},
		retry: NewRetryPolicy(cfg.Retries, cfg.Backoff),
	}
}

type audioRequest struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Audio      string `json:"audio"`
}

type scoresResponse struct {
	Scores []float64 `json:"scores"`
}

// statusError is a non-2xx answer from a model service.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("model service http %d: %s", e.Code, e.Body)
}

// encodeF32LE packs samples as base64 little-endian float32.
func encodeF32LE(samples []float32) string {
	raw := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func (c *client) postScores(ctx context.Context, path string, window []float32, sampleRate int) ([]float64, error) {
	body, err := json.Marshal(audioRequest{
		SampleRate: sampleRate,
		Encoding:   "f32le",
		Audio:      encodeF32LE(window),
	})
	if err != nil {
		return nil, err
	}

	var out scoresResponse
	err = c.retry.Do(ctx, isRetryable, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Scores, nil
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	return c.retry.Do(ctx, isRetryable, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return err
		}
		return c.do(req, out)
	})
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return false
}

// RetryPolicy defines retry behavior for transient model-service failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the retries are spent.
func (r RetryPolicy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i == r.MaxRetries || !retryable(err) {
			return err
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("model service call failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.Backoff):
		}
	}
	return err
}
