package progression

import (
	"context"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/story"
	"time"
)

type EventKind string

const (
	EventCreated      EventKind = "created"
	EventLocalAdvance EventKind = "local"
	// EventNetworkAdvance follows a successful advance that fetched a new batch of scenes.
	EventNetworkAdvance EventKind = "network"
)

// Event describes one successful transition of the engine.
type Event struct {
	Kind   EventKind
	GameID int64
	// SessionID and SceneID identify the scene that is current after the transition.
	SessionID   int64
	SceneID     int64
	SelectionID *int64
	// Emotion is the vector sent to the backend. It is nil when nothing was sent.
	Emotion        *emotion.Vector
	ElapsedSeconds int64
	// Title and Params are only set for EventCreated.
	Title  string
	Params story.CreateParams
	At     time.Time
}

// Recorder observes engine transitions, for example to keep a transcript of the play.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}
