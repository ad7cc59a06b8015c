// Package story holds the data exchanged with the story backend.
package story

import (
	"encoding/json"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/errors"
	"log/slog"
	"math"
	"strconv"
)

type SceneType string

const (
	SceneTypeDialogue  SceneType = "dialogue"
	SceneTypeSelection SceneType = "selection"
)

// SceneTypeChoiceLegacy is the older wire name for SceneTypeSelection. The transport rewrites it before decoding, so
// it never shows up in a decoded Scene.
const SceneTypeChoiceLegacy = "choice"

// Scene is one narrative beat: a line of dialogue or a choice point.
type Scene struct {
	ID       int64     `json:"scene_id"`
	Type     SceneType `json:"type"`
	Role     string    `json:"role"`
	Dialogue *string   `json:"dialogue"`
	// Selections maps choice IDs to their text. Nil means the payload had no selections at all, an empty map means
	// the scene offers no choices.
	Selections        map[string]string `json:"selections"`
	CharacterFilename *string           `json:"character_filename"`
}

// HasSelection reports whether the scene offers the choice with selectionID.
func (s Scene) HasSelection(selectionID int64) bool {
	_, ok := s.Selections[strconv.FormatInt(selectionID, 10)]
	return ok
}

// UnmarshalJSON accepts a scene_id written as a whole float, such as 3.0, as well as a plain integer.
func (s *Scene) UnmarshalJSON(data []byte) error {
	type plain Scene
	aux := struct {
		*plain
		ID json.Number `json:"scene_id"`
	}{plain: (*plain)(s), ID: ""}
	if err := json.Unmarshal(data, &aux); err != nil {
		return errors.Wrap(err, "unmarshal scene")
	}
	id, err := wholeNumber(aux.ID)
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

func wholeNumber(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	// float64(math.MaxInt64) rounds up to 2^63, which no longer fits.
	if err != nil || f != math.Trunc(f) || f >= 1<<63 || f < -(1<<63) {
		return 0, errors.New("scene_id is not an integer", slog.String("scene_id", n.String()))
	}
	return int64(f), nil
}

// SessionPayload is one story arc as returned by the backend. Scenes are kept raw until they have been validated.
type SessionPayload struct {
	SessionID     int64             `json:"session_id"`
	Content       string            `json:"content"`
	Scenes        []json.RawMessage `json:"scenes"`
	BackgroundURL *string           `json:"background_url"`
}

// Game is the result of creating a new story.
type Game struct {
	ID          int64            `json:"game_id"`
	Personality string           `json:"personality"`
	Genre       string           `json:"genre"`
	Playtime    int              `json:"playtime"`
	Title       string           `json:"title"`
	Sessions    []SessionPayload `json:"sessions"`
}

// CreateParams are the player's choices for a new story. Playtime is in minutes.
type CreateParams struct {
	Personality string `json:"personality"`
	Genre       string `json:"genre"`
	Playtime    int    `json:"playtime"`
}

// Telemetry accompanies every request that advances the story.
type Telemetry struct {
	Emotion emotion.Vector `json:"emotion"`
	// Time is the active play time in seconds.
	Time int64 `json:"time"`
}
