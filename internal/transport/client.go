// Package transport is the HTTP client for the story backend.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/failure"
	"github.com/myrjola/talespin/internal/random"
	"github.com/myrjola/talespin/internal/story"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// maxResponseBytes bounds how much of a response is read into memory.
	maxResponseBytes = 4 << 20
	// maxErrorBodyBytes bounds the response body kept in a [failure.HTTPError].
	maxErrorBodyBytes = 512
	requestIDLength   = 16
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sends token as a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a client for the backend at baseURL, for example https://stories.example.com/api.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      "",
		httpClient: &http.Client{Timeout: 30 * time.Second}, //nolint:exhaustruct,mnd // defaults
		logger:     logger.With("source", "transport.Client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateGame asks the backend to write a new story.
func (c *Client) CreateGame(ctx context.Context, params story.CreateParams) (*story.Game, error) {
	body, status, err := c.post(ctx, "/games", params)
	if err != nil {
		return nil, errors.Wrap(err, "post game")
	}
	sessions := gjson.GetBytes(body, "sessions.#").Int()
	for i := range sessions {
		if body, err = canonicalizeSceneTypes(body, fmt.Sprintf("sessions.%d.scenes", i)); err != nil {
			return nil, decodeError(status, body, err)
		}
	}
	var game story.Game
	if err = json.Unmarshal(body, &game); err != nil {
		return nil, decodeError(status, body, err)
	}
	return &game, nil
}

// Advance reports that the player finished sceneID and fetches the next scenes.
func (c *Client) Advance(
	ctx context.Context,
	gameID, sessionID, sceneID int64,
	telemetry story.Telemetry,
) (*story.SessionPayload, error) {
	path := fmt.Sprintf("/games/%d/sessions/%d/scenes/%d/advance", gameID, sessionID, sceneID)
	session, err := c.postSession(ctx, path, telemetry)
	if err != nil {
		return nil, errors.Wrap(err, "advance")
	}
	return session, nil
}

// AdvanceWithSelection reports the player's choice in sceneID and fetches the scenes that follow from it.
func (c *Client) AdvanceWithSelection(
	ctx context.Context,
	gameID, sessionID, sceneID, selectionID int64,
	telemetry story.Telemetry,
) (*story.SessionPayload, error) {
	path := fmt.Sprintf("/games/%d/sessions/%d/scenes/%d/selections/%d", gameID, sessionID, sceneID, selectionID)
	session, err := c.postSession(ctx, path, telemetry)
	if err != nil {
		return nil, errors.Wrap(err, "advance with selection", slog.Int64("selection_id", selectionID))
	}
	return session, nil
}

func (c *Client) postSession(ctx context.Context, path string, telemetry story.Telemetry) (*story.SessionPayload, error) {
	body, status, err := c.post(ctx, path, telemetry)
	if err != nil {
		return nil, err
	}
	if body, err = canonicalizeSceneTypes(body, "scenes"); err != nil {
		return nil, decodeError(status, body, err)
	}
	var session story.SessionPayload
	if err = json.Unmarshal(body, &session); err != nil {
		return nil, decodeError(status, body, err)
	}
	return &session, nil
}

// post sends payload as JSON and returns the body of a successful response along with its status code.
//
// A response outside 2xx becomes a [failure.HTTPError]. Failing to get a response at all yields an error without a
// status code.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	var (
		err       error
		reqBody   []byte
		req       *http.Request
		resp      *http.Response
		requestID string
	)
	if reqBody, err = json.Marshal(payload); err != nil {
		return nil, 0, errors.Wrap(err, "marshal request body")
	}
	if req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody)); err != nil {
		return nil, 0, errors.Wrap(err, "create request")
	}
	if requestID, err = random.Letters(requestIDLength); err != nil {
		return nil, 0, errors.Wrap(err, "generate request ID")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	if resp, err = c.httpClient.Do(req); err != nil {
		return nil, 0, errors.Wrap(err, "do request", slog.String("request_id", requestID))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "could not close response body", errors.SlogError(closeErr))
		}
	}()

	var body []byte
	if body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
		return nil, 0, errors.Wrap(err, "read response body", slog.String("request_id", requestID))
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "story request",
		slog.String("method", req.Method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
		slog.String("request_id", requestID))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, &failure.HTTPError{
			Status: resp.StatusCode,
			Body:   truncate(body, maxErrorBodyBytes),
			Err:    nil,
		}
	}
	return body, resp.StatusCode, nil
}

// canonicalizeSceneTypes rewrites the legacy "choice" scene type to "selection" in the scene array at scenesPath.
func canonicalizeSceneTypes(body []byte, scenesPath string) ([]byte, error) {
	var paths []string
	i := 0
	gjson.GetBytes(body, scenesPath).ForEach(func(_, scene gjson.Result) bool {
		sceneType := scene.Get("type")
		if sceneType.Type == gjson.String && sceneType.Str == story.SceneTypeChoiceLegacy {
			paths = append(paths, fmt.Sprintf("%s.%d.type", scenesPath, i))
		}
		i++
		return true
	})
	var err error
	for _, p := range paths {
		if body, err = sjson.SetBytes(body, p, string(story.SceneTypeSelection)); err != nil {
			return nil, errors.Wrap(err, "rewrite legacy scene type", slog.String("path", p))
		}
	}
	return body, nil
}

// decodeError marks a successful response that could not be understood. It keeps the status code so that it is not
// mistaken for a network failure and retried.
func decodeError(status int, body []byte, err error) error {
	return &failure.HTTPError{
		Status: status,
		Body:   truncate(body, maxErrorBodyBytes),
		Err:    errors.Wrap(err, "decode response"),
	}
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "…"
}
