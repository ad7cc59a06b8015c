package transport_test

import (
	"context"
	"encoding/json"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/failure"
	"github.com/myrjola/talespin/internal/progression"
	"github.com/myrjola/talespin/internal/story"
	"github.com/myrjola/talespin/internal/testhelpers"
	"github.com/myrjola/talespin/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

var _ progression.Transport = (*transport.Client)(nil)

type capturedRequest struct {
	method string
	path   string
	header http.Header
	body   string
}

// newServer answers every request with status and body and remembers what it received.
func newServer(t *testing.T, status int, body string) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		mu.Lock()
		captured = append(captured, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			header: r.Header.Clone(),
			body:   string(b),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func newClient(baseURL string, opts ...transport.Option) *transport.Client {
	return transport.NewClient(baseURL, testhelpers.NewLogger(io.Discard), opts...)
}

func TestCreateGame(t *testing.T) {
	response := `{
		"game_id": 100,
		"personality": "brave",
		"genre": "fantasy",
		"playtime": 30,
		"title": "The Creaking Gate",
		"sessions": [
			{
				"session_id": 10,
				"content": "Prologue",
				"background_url": "castle.png",
				"scenes": [
					{"scene_id": 1, "type": "dialogue", "role": "narrator", "dialogue": "Hello"},
					{"scene_id": 2, "type": "choice", "role": "narrator", "selections": {"1": "Left"}}
				]
			},
			{
				"session_id": 11,
				"content": "Unused",
				"scenes": [{"scene_id": 3, "type": "choice", "selections": {}}]
			}
		]
	}`
	server, requests := newServer(t, http.StatusOK, response)
	client := newClient(server.URL+"/", transport.WithToken("secret"))

	game, err := client.CreateGame(context.Background(), story.CreateParams{
		Personality: "brave",
		Genre:       "fantasy",
		Playtime:    30,
	})
	require.NoError(t, err)
	require.Equal(t, int64(100), game.ID)
	require.Equal(t, "The Creaking Gate", game.Title)
	require.Len(t, game.Sessions, 2)
	require.Equal(t, "castle.png", *game.Sessions[0].BackgroundURL)
	require.Nil(t, game.Sessions[1].BackgroundURL)

	var second story.Scene
	require.NoError(t, json.Unmarshal(game.Sessions[0].Scenes[1], &second))
	require.Equal(t, story.SceneTypeSelection, second.Type, "legacy choice type is rewritten")
	var third story.Scene
	require.NoError(t, json.Unmarshal(game.Sessions[1].Scenes[0], &third))
	require.Equal(t, story.SceneTypeSelection, third.Type)

	got := requests()
	require.Len(t, got, 1)
	require.Equal(t, http.MethodPost, got[0].method)
	require.Equal(t, "/games", got[0].path)
	require.JSONEq(t, `{"personality":"brave","genre":"fantasy","playtime":30}`, got[0].body)
	require.Equal(t, "application/json", got[0].header.Get("Content-Type"))
	require.Equal(t, "application/json", got[0].header.Get("Accept"))
	require.Equal(t, "Bearer secret", got[0].header.Get("Authorization"))
	require.Len(t, got[0].header.Get("X-Request-ID"), 16)
}

func TestAdvance(t *testing.T) {
	response := `{"session_id":11,"content":"Chapter 1","scenes":[{"scene_id":5,"type":"choice","selections":{"1":"a"}}]}`
	server, requests := newServer(t, http.StatusOK, response)
	client := newClient(server.URL)
	telemetry := story.Telemetry{Emotion: emotion.Vector{Happy: 60, Neutral: 40}, Time: 95}

	session, err := client.Advance(context.Background(), 100, 10, 2, telemetry)
	require.NoError(t, err)
	require.Equal(t, int64(11), session.SessionID)
	require.Equal(t, "Chapter 1", session.Content)
	require.Nil(t, session.BackgroundURL)
	require.Len(t, session.Scenes, 1)
	require.Contains(t, string(session.Scenes[0]), `"selection"`)

	session, err = client.AdvanceWithSelection(context.Background(), 100, 11, 5, 1, telemetry)
	require.NoError(t, err)
	require.Equal(t, int64(11), session.SessionID)

	got := requests()
	require.Len(t, got, 2)
	require.Equal(t, "/games/100/sessions/10/scenes/2/advance", got[0].path)
	require.Equal(t, "/games/100/sessions/11/scenes/5/selections/1", got[1].path)
	wantBody := `{"emotion":{"angry":0,"disgust":0,"fear":0,"happy":60,"sad":0,"surprise":0,"neutral":40},"time":95}`
	for _, r := range got {
		require.Equal(t, http.MethodPost, r.method)
		require.JSONEq(t, wantBody, r.body)
		require.Empty(t, r.header.Get("Authorization"), "no token configured")
	}
	require.NotEqual(t, got[0].header.Get("X-Request-ID"), got[1].header.Get("X-Request-ID"))
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   failure.Kind
		wantStatus int
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"detail":"expired"}`, wantKind: failure.Auth},
		{name: "forbidden", status: http.StatusForbidden, body: ``, wantKind: failure.Auth},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, body: `{}`, wantKind: failure.Validation},
		{name: "bad request", status: http.StatusBadRequest, body: `{}`, wantKind: failure.Validation},
		{name: "unavailable", status: http.StatusServiceUnavailable, body: `down`, wantKind: failure.Server},
		{name: "not found", status: http.StatusNotFound, body: `{}`, wantKind: failure.Unknown},
		{name: "undecodable success", status: http.StatusOK, body: `<html>`, wantKind: failure.Unknown},
		{name: "wrong shape", status: http.StatusOK, body: `{"session_id":"eleven"}`, wantKind: failure.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newServer(t, tt.status, tt.body)
			client := newClient(server.URL)

			_, err := client.Advance(context.Background(), 1, 2, 3, story.Telemetry{Emotion: emotion.Default(), Time: 0})
			require.Error(t, err)
			require.Equal(t, tt.wantKind, failure.Classify(err))

			var httpErr *failure.HTTPError
			require.ErrorAs(t, err, &httpErr)
			require.Equal(t, tt.status, httpErr.Status)
			if tt.status >= http.StatusMultipleChoices {
				require.Equal(t, tt.body, httpErr.Body)
			}
		})
	}
}

func TestErrorBodyIsTruncated(t *testing.T) {
	server, _ := newServer(t, http.StatusInternalServerError, strings.Repeat("x", 2000))
	client := newClient(server.URL)

	_, err := client.CreateGame(context.Background(), story.CreateParams{Personality: "a", Genre: "b", Playtime: 5})
	var httpErr *failure.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Less(t, len(httpErr.Body), 600)
	require.True(t, strings.HasPrefix(httpErr.Body, "xxx"))
}

func TestUnreachableServerIsANetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newClient(url).CreateGame(context.Background(), story.CreateParams{Personality: "a", Genre: "b", Playtime: 5})
	require.Error(t, err)
	require.Equal(t, failure.Network, failure.Classify(err))
	var coder failure.StatusCoder
	require.False(t, errors.As(err, &coder))
}

func TestCancelledRequest(t *testing.T) {
	server, requests := newServer(t, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient(server.URL).Advance(ctx, 1, 2, 3, story.Telemetry{Emotion: emotion.Default(), Time: 0})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, failure.Unknown, failure.Classify(err))
	require.Empty(t, requests())
}
