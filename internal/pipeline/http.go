package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBody = 1 << 20

// HTTPConfig configures pipelines served by a remote ML backend.
type HTTPConfig struct {
	BaseURL string        `json:"baseURL" mapstructure:"baseURL"`
	Token   string        `json:"token,omitempty" mapstructure:"token"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// HTTPClient talks to a remote backend exposing POST /train and POST /predict.
type HTTPClient struct {
	base   *url.URL
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a client for cfg.BaseURL. A zero timeout means none.
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) (*HTTPClient, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid pipeline base URL %q", cfg.BaseURL)
	}
	return &HTTPClient{
		base:   u,
		token:  cfg.Token,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// remoteError is the error body a backend may return.
type remoteError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("Calling pipeline backend", "url", u.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseRemoteError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid backend response: %w", err)
	}
	return nil
}

func parseRemoteError(status int, body []byte) error {
	var re remoteError
	if err := json.Unmarshal(body, &re); err == nil {
		for _, msg := range []string{re.Message, re.Error, re.Detail} {
			if msg != "" {
				return errors.New(msg)
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return fmt.Errorf("backend returned %d: %s", status, text)
	}
	return fmt.Errorf("backend returned %d", status)
}

// HTTPTrainer triggers training on the backend.
type HTTPTrainer struct {
	client *HTTPClient
}

func (t *HTTPTrainer) Run(ctx context.Context) error {
	return t.client.post(ctx, "train", nil, nil)
}

// HTTPPredictor sends the frame to the backend's predict endpoint.
type HTTPPredictor struct {
	client *HTTPClient
}

func (p *HTTPPredictor) Predict(ctx context.Context, frame Frame) ([]int, error) {
	var result predictionOutput
	if err := p.client.post(ctx, "predict", frame, &result); err != nil {
		return nil, err
	}
	return result.labels(), nil
}
