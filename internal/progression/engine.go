// Package progression tracks a player's way through a story: which game, session and scene is current, when the
// next scene comes from the local buffer and when it has to be fetched from the backend.
package progression

import (
	"context"
	"encoding/json"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/failure"
	"github.com/myrjola/talespin/internal/logging"
	"github.com/myrjola/talespin/internal/playclock"
	"github.com/myrjola/talespin/internal/retry"
	"github.com/myrjola/talespin/internal/story"
	"github.com/myrjola/talespin/internal/validate"
	"log/slog"
	"sync"
	"time"
)

// Transport talks to the story backend.
type Transport interface {
	CreateGame(ctx context.Context, params story.CreateParams) (*story.Game, error)
	Advance(
		ctx context.Context,
		gameID, sessionID, sceneID int64,
		telemetry story.Telemetry,
	) (*story.SessionPayload, error)
	AdvanceWithSelection(
		ctx context.Context,
		gameID, sessionID, sceneID, selectionID int64,
		telemetry story.Telemetry,
	) (*story.SessionPayload, error)
}

// Engine owns the progression state of one game at a time.
//
// Reads are safe from any goroutine. Mutating calls must be serialized by the caller: the engine does not stop a
// second advance from starting while one is in flight. [State.Loading] tells a UI when to hold back.
type Engine struct {
	transport Transport
	logger    *slog.Logger
	clock     *playclock.Accumulator
	policy    retry.Policy
	recorder  Recorder
	now       func() time.Time

	mu    sync.Mutex
	state State
}

type Option func(*Engine)

// WithClock sets the accumulator measuring play time. The engine resets and starts it on every new game.
func WithClock(clock *playclock.Accumulator) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithRetryPolicy(policy retry.Policy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// WithNow sets the time source for event timestamps and, unless WithClock is given, for the play clock.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(transport Transport, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{ //nolint:exhaustruct // the state starts empty
		transport: transport,
		logger:    logger.With("source", "Engine"),
		policy:    retry.DefaultPolicy(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = playclock.New(playclock.WithNow(e.now))
	}
	return e
}

// CreateGame starts a new story and replaces all state with its first session.
//
// On failure the previous identifiers and buffer stay as they were.
func (e *Engine) CreateGame(ctx context.Context, params story.CreateParams) (State, error) {
	ctx = logging.WithAttrs(ctx,
		slog.String("personality", params.Personality),
		slog.String("genre", params.Genre),
		slog.Int("playtime", params.Playtime))
	e.begin(Creating)

	game, err := retry.Do(ctx, e.retryPolicy(ctx), func(ctx context.Context) (*story.Game, error) {
		return e.transport.CreateGame(ctx, params)
	})
	if err != nil {
		return e.fail(ctx, errors.Wrap(err, "create game"))
	}
	if game == nil || len(game.Sessions) == 0 {
		return e.fail(ctx, failure.NewMissingSession())
	}
	first := game.Sessions[0]
	var scenes []story.Scene
	if scenes, err = e.decodeScenes(ctx, first.Scenes); err != nil {
		return e.fail(ctx, errors.Wrap(err, "decode first session"))
	}

	e.clock.Reset()
	e.clock.Start()

	gameID, sessionID, sceneID := game.ID, first.SessionID, scenes[0].ID
	e.mu.Lock()
	e.state = State{
		Phase:          Ready,
		GameID:         &gameID,
		SessionID:      &sessionID,
		CurrentSceneID: &sceneID,
		Title:          game.Title,
		Scenes:         scenes,
		Index:          0,
		Background:     copyPtr(first.BackgroundURL),
		Loading:        false,
		Error:          "",
	}
	snapshot := e.state.clone()
	e.mu.Unlock()

	e.logger.LogAttrs(ctx, slog.LevelInfo, "game created",
		slog.Int64("game_id", gameID),
		slog.Int64("session_id", sessionID),
		slog.Int("scenes", len(scenes)))
	e.record(ctx, Event{ //nolint:exhaustruct // nothing is sent on creation
		Kind:           EventCreated,
		GameID:         gameID,
		SessionID:      sessionID,
		SceneID:        sceneID,
		ElapsedSeconds: 0,
		Title:          game.Title,
		Params:         params,
		At:             e.now(),
	})
	return snapshot, nil
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// CurrentScene returns a copy of the scene to show, or nil when nothing is buffered.
func (e *Engine) CurrentScene() *story.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.CurrentScene()
}

func (e *Engine) IsLastScene() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsLastScene()
}

func (e *Engine) HasChoices() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.HasChoices()
}

// AdvanceDialogue moves past the current dialogue scene.
//
// While the buffer holds more scenes this is a [Engine.LocalAdvance]. On the last scene the backend is asked for the
// next batch, carrying emo (neutral when nil) and the active play time.
func (e *Engine) AdvanceDialogue(ctx context.Context, emo *emotion.Vector) (State, error) {
	current := e.State()
	if !current.hasIdentifiers() {
		return e.fail(ctx, failure.NewNoActiveGame())
	}
	if scene := current.CurrentScene(); scene != nil && scene.Type != story.SceneTypeDialogue {
		return e.fail(ctx, failure.NewInvalidSceneType(string(scene.Type)))
	}
	ctx = withSceneAttrs(ctx, current)
	if !current.IsLastScene() {
		return e.localAdvance(ctx, nil), nil
	}

	gameID, sessionID, sceneID := *current.GameID, *current.SessionID, *current.CurrentSceneID
	return e.networkAdvance(ctx, nil, emo,
		func(ctx context.Context, telemetry story.Telemetry) (*story.SessionPayload, error) {
			return e.transport.Advance(ctx, gameID, sessionID, sceneID, telemetry)
		})
}

// AdvanceSelection picks selectionID in the current choice scene. It follows the same buffer rules as
// [Engine.AdvanceDialogue].
func (e *Engine) AdvanceSelection(ctx context.Context, selectionID int64, emo *emotion.Vector) (State, error) {
	current := e.State()
	if !current.hasIdentifiers() {
		return e.fail(ctx, failure.NewNoActiveGame())
	}
	scene := current.CurrentScene()
	if scene == nil {
		return e.fail(ctx, failure.NewInvalidSceneType(""))
	}
	if scene.Type != story.SceneTypeSelection {
		return e.fail(ctx, failure.NewInvalidSceneType(string(scene.Type)))
	}
	if !scene.HasSelection(selectionID) {
		return e.fail(ctx, failure.NewInvalidChoice(selectionID))
	}
	ctx = withSceneAttrs(ctx, current)
	if !current.IsLastScene() {
		return e.localAdvance(ctx, &selectionID), nil
	}

	gameID, sessionID, sceneID := *current.GameID, *current.SessionID, *current.CurrentSceneID
	return e.networkAdvance(ctx, &selectionID, emo,
		func(ctx context.Context, telemetry story.Telemetry) (*story.SessionPayload, error) {
			return e.transport.AdvanceWithSelection(ctx, gameID, sessionID, sceneID, selectionID, telemetry)
		})
}

// LocalAdvance moves to the next buffered scene. It reports false, changing nothing, when the current scene is the
// last one.
func (e *Engine) LocalAdvance(ctx context.Context) (State, bool) {
	if e.IsLastScene() {
		return e.State(), false
	}
	return e.localAdvance(ctx, nil), true
}

func (e *Engine) localAdvance(ctx context.Context, selectionID *int64) State {
	e.mu.Lock()
	if e.state.IsLastScene() {
		snapshot := e.state.clone()
		e.mu.Unlock()
		return snapshot
	}
	e.state.Index++
	sceneID := e.state.Scenes[e.state.Index].ID
	e.state.CurrentSceneID = &sceneID
	e.state.Phase = Ready
	e.state.Error = ""
	snapshot := e.state.clone()
	e.mu.Unlock()

	e.logger.LogAttrs(ctx, slog.LevelDebug, "local advance",
		slog.Int("index", snapshot.Index),
		slog.Int64("scene_id", sceneID))
	e.record(ctx, Event{ //nolint:exhaustruct // nothing is sent on a local advance
		Kind:           EventLocalAdvance,
		GameID:         derefOrZero(snapshot.GameID),
		SessionID:      derefOrZero(snapshot.SessionID),
		SceneID:        sceneID,
		SelectionID:    selectionID,
		ElapsedSeconds: e.clock.ElapsedSeconds(),
		At:             e.now(),
	})
	return snapshot
}

type sendFunc func(ctx context.Context, telemetry story.Telemetry) (*story.SessionPayload, error)

func (e *Engine) networkAdvance(
	ctx context.Context,
	selectionID *int64,
	emo *emotion.Vector,
	send sendFunc,
) (State, error) {
	telemetry := story.Telemetry{
		Emotion: resolveEmotion(emo),
		Time:    e.clock.ElapsedSeconds(),
	}
	e.begin(Advancing)

	payload, err := retry.Do(ctx, e.retryPolicy(ctx), func(ctx context.Context) (*story.SessionPayload, error) {
		return send(ctx, telemetry)
	})
	if err != nil {
		return e.fail(ctx, errors.Wrap(err, "advance"))
	}
	if payload == nil {
		return e.fail(ctx, failure.NewInvalidScene())
	}
	var scenes []story.Scene
	if scenes, err = e.decodeScenes(ctx, payload.Scenes); err != nil {
		return e.fail(ctx, errors.Wrap(err, "decode session", slog.Int64("session_id", payload.SessionID)))
	}

	sessionID, sceneID := payload.SessionID, scenes[0].ID
	e.mu.Lock()
	e.state.Phase = Ready
	e.state.Loading = false
	e.state.Error = ""
	e.state.Scenes = scenes
	e.state.Index = 0
	e.state.SessionID = &sessionID
	e.state.CurrentSceneID = &sceneID
	if payload.BackgroundURL != nil {
		e.state.Background = copyPtr(payload.BackgroundURL)
	}
	snapshot := e.state.clone()
	e.mu.Unlock()

	e.logger.LogAttrs(ctx, slog.LevelInfo, "network advance",
		slog.Int64("session_id", sessionID),
		slog.Int64("scene_id", sceneID),
		slog.Int("scenes", len(scenes)),
		slog.Int64("time", telemetry.Time))
	e.record(ctx, Event{ //nolint:exhaustruct // title and params belong to creation
		Kind:           EventNetworkAdvance,
		GameID:         derefOrZero(snapshot.GameID),
		SessionID:      sessionID,
		SceneID:        sceneID,
		SelectionID:    selectionID,
		Emotion:        &telemetry.Emotion,
		ElapsedSeconds: telemetry.Time,
		At:             e.now(),
	})
	return snapshot, nil
}

// ResetGame forgets the game and stops the play clock.
func (e *Engine) ResetGame() State {
	e.clock.Reset()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{} //nolint:exhaustruct // the empty state
	return e.state.clone()
}

func (e *Engine) Pause() {
	e.clock.Pause()
}

func (e *Engine) Resume() {
	e.clock.Resume()
}

// ElapsedSeconds is the active play time of the current game.
func (e *Engine) ElapsedSeconds() int64 {
	return e.clock.ElapsedSeconds()
}

func (e *Engine) begin(phase Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Phase = phase
	e.state.Loading = true
	e.state.Error = ""
}

// fail stores the user-facing message for err and returns it together with the resulting state.
func (e *Engine) fail(ctx context.Context, err error) (State, error) {
	kind := failure.Classify(err)
	e.mu.Lock()
	e.state.Phase = Failed
	e.state.Loading = false
	e.state.Error = kind.Message()
	snapshot := e.state.clone()
	e.mu.Unlock()

	e.logger.LogAttrs(ctx, slog.LevelError, "progression failed",
		slog.String("kind", kind.String()),
		errors.SlogError(err))
	return snapshot, err
}

// retryPolicy returns the configured policy with a notifier that logs every retried failure.
func (e *Engine) retryPolicy(ctx context.Context) retry.Policy {
	policy := e.policy
	notify := policy.Notify
	policy.Notify = func(err error, delay time.Duration) {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "retrying",
			slog.String("kind", failure.Classify(err).String()),
			slog.Duration("delay", delay),
			errors.SlogError(err))
		if notify != nil {
			notify(err, delay)
		}
	}
	return policy
}

func (e *Engine) record(ctx context.Context, event Event) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, event); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "could not record progression event",
			slog.String("event", string(event.Kind)),
			errors.SlogError(err))
	}
}

// decodeScenes turns a session's raw scenes into the buffer. The first scene must pass validation because it
// becomes current right away. The buffer ends before the first later scene that fails validation, so reaching the
// end asks the backend for more instead of getting stuck on a scene nothing can advance.
func (e *Engine) decodeScenes(ctx context.Context, raw []json.RawMessage) ([]story.Scene, error) {
	if len(raw) == 0 || !validate.Scene(raw[0]) {
		return nil, failure.NewInvalidScene()
	}
	valid := raw
	for i := 1; i < len(raw); i++ {
		if !validate.Scene(raw[i]) {
			e.logger.LogAttrs(ctx, slog.LevelWarn, "dropping scenes from the first invalid one",
				slog.Int("index", i), slog.Int("dropped", len(raw)-i))
			valid = raw[:i]
			break
		}
	}
	scenes := make([]story.Scene, len(valid))
	for i, r := range valid {
		if err := json.Unmarshal(r, &scenes[i]); err != nil {
			return nil, errors.Join(failure.NewInvalidScene(), errors.Wrap(err, "unmarshal scene", slog.Int("index", i)))
		}
	}
	return scenes, nil
}

// resolveEmotion never lets an out of range vector reach the backend.
func resolveEmotion(emo *emotion.Vector) emotion.Vector {
	if emo == nil {
		return emotion.Default()
	}
	if emo.Valid() {
		return *emo
	}
	return emo.Bounded()
}

// withSceneAttrs correlates every log line of an advance, including the transport's, with the scene it started from.
func withSceneAttrs(ctx context.Context, s State) context.Context {
	return logging.WithAttrs(ctx,
		slog.Int64("game_id", derefOrZero(s.GameID)),
		slog.Int64("session_id", derefOrZero(s.SessionID)),
		slog.Int64("scene_id", derefOrZero(s.CurrentSceneID)))
}

func derefOrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
