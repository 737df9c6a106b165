package playfab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNotLoggedIn = errors.New("playfab: not logged in")
	ErrNoTitleID   = errors.New("playfab: title id is required")
)

// Config holds what the client needs to reach a title's API.
type Config struct {
	TitleID string
	// BaseURL overrides https://<TitleID>.playfabapi.com, mostly for tests.
	BaseURL string
	Timeout time.Duration
}

// Client talks to the PlayFab REST API. It is safe for concurrent use.
type Client struct {
	titleID    string
	baseURL    string
	httpClient *http.Client
}

// NewClient validates the config and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.TitleID == "" {
		return nil, ErrNoTitleID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.playfabapi.com", strings.ToLower(cfg.TitleID))
	}
	return &Client{
		titleID:    cfg.TitleID,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// APIError is a non-success envelope returned by the API.
type APIError struct {
	HTTPStatus int    `json:"code"`
	Status     string `json:"status"`
	ErrorName  string `json:"error"`
	Code       int    `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("playfab: %s (%d)", e.ErrorName, e.HTTPStatus)
}

// envelope is the wrapper every API response comes in.
type envelope struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// authHeader is a single authentication header attached to a call.
type authHeader struct {
	name  string
	value string
}

// post sends body to path and decodes the envelope's data into out.
func (c *Client) post(ctx context.Context, path string, auth *authHeader, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		req.Header.Set(auth.name, auth.value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil {
			apiErr.Message = fmt.Sprintf("unexpected status code %d: %s", resp.StatusCode, string(raw))
		}
		slog.Warn("PlayFab call failed", "path", path, "status", resp.StatusCode, "error", apiErr.ErrorName)
		return apiErr
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%s returned no data: %w", path, errEmptyData)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data from %s: %w", path, err)
	}
	return nil
}

var errEmptyData = errors.New("empty data")
