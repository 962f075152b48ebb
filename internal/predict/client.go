// Package predict is a thin client for the external symptom-prediction
// service. The HTTP API proxies through it rather than exposing the model
// service directly.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrUpstreamTimeout means the model service did not answer in time.
	ErrUpstreamTimeout = errors.New("prediction service timed out")
	// ErrUpstreamUnavailable means the model service answered with an error
	// or could not be reached at all.
	ErrUpstreamUnavailable = errors.New("prediction service unavailable")
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	base string
	http *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("predict: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// Result is the model service's answer, passed through untouched.
type Result struct {
	Prediction  string          `json:"prediction"`
	Confidence  float64         `json:"confidence,omitempty"`
	Description string          `json:"description,omitempty"`
	Precautions []string        `json:"precautions,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// Predict submits a symptom list and returns the model's diagnosis.
func (c *Client) Predict(ctx context.Context, symptoms []string) (*Result, error) {
	body, err := json.Marshal(map[string]any{"symptoms": symptoms})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mapTransportErr(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, mapTransportErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: bad response body", ErrUpstreamUnavailable)
	}
	out.Raw = raw
	return &out, nil
}

// Symptoms fetches the list of symptom names the model understands.
func (c *Client) Symptoms(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/symptoms", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mapTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	var out struct {
		Symptoms []string `json:"symptoms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: bad response body", ErrUpstreamUnavailable)
	}
	return out.Symptoms, nil
}

func mapTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrUpstreamTimeout
	}
	return errors.Join(ErrUpstreamUnavailable, err)
}
