package progression

import (
	"github.com/myrjola/talespin/internal/story"
)

type Phase int

const (
	// Idle means there is no game.
	Idle Phase = iota
	Creating
	// Ready means there is a current scene to show.
	Ready
	// Advancing means a network advance is in flight.
	Advancing
	// Failed means the last operation failed. Everything but the error message and loading flag is as it was before.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Creating:
		return "creating"
	case Ready:
		return "ready"
	case Advancing:
		return "advancing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the progression through one game.
//
// The identifiers are nil until a game exists. When Scenes is not empty, 0 <= Index < len(Scenes).
type State struct {
	Phase          Phase
	GameID         *int64
	SessionID      *int64
	CurrentSceneID *int64
	Title          string
	Scenes         []story.Scene
	Index          int
	Background     *string
	Loading        bool
	// Error is the user-facing message of the last failure, or empty.
	Error string
}

// CurrentScene returns the scene at Index, or nil when nothing is buffered.
func (s State) CurrentScene() *story.Scene {
	if s.Index < 0 || s.Index >= len(s.Scenes) {
		return nil
	}
	scene := s.Scenes[s.Index]
	return &scene
}

// IsLastScene reports whether Index points at the final buffered scene. It is true for an empty buffer.
func (s State) IsLastScene() bool {
	return s.Index >= len(s.Scenes)-1
}

// HasChoices reports whether the current scene is a choice point. The choices may be empty.
func (s State) HasChoices() bool {
	scene := s.CurrentScene()
	return scene != nil && scene.Type == story.SceneTypeSelection && scene.Selections != nil
}

func (s State) hasIdentifiers() bool {
	return s.GameID != nil && s.SessionID != nil && s.CurrentSceneID != nil
}

// clone copies s so that the copy shares no identifiers or buffer with the original.
func (s State) clone() State {
	c := s
	c.GameID = copyPtr(s.GameID)
	c.SessionID = copyPtr(s.SessionID)
	c.CurrentSceneID = copyPtr(s.CurrentSceneID)
	c.Background = copyPtr(s.Background)
	if s.Scenes != nil {
		c.Scenes = make([]story.Scene, len(s.Scenes))
		copy(c.Scenes, s.Scenes)
	}
	return c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
