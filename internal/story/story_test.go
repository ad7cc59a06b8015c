package story_test

import (
	"encoding/json"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/story"
	"github.com/stretchr/testify/require"
	"math"
	"testing"
)

func TestSceneUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    story.Scene
		wantErr bool
	}{
		{
			name: "dialogue",
			raw:  `{"scene_id":7,"type":"dialogue","role":"narrator","dialogue":"It was a dark night."}`,
			want: story.Scene{ID: 7, Type: story.SceneTypeDialogue, Role: "narrator", Dialogue: ptr("It was a dark night.")},
		},
		{
			name: "whole float id",
			raw:  `{"scene_id":3.0,"type":"dialogue"}`,
			want: story.Scene{ID: 3, Type: story.SceneTypeDialogue},
		},
		{
			name: "selection",
			raw:  `{"scene_id":4,"type":"selection","selections":{"1":"Go left"},"character_filename":"owl.png"}`,
			want: story.Scene{
				ID:                4,
				Type:              story.SceneTypeSelection,
				Selections:        map[string]string{"1": "Go left"},
				CharacterFilename: ptr("owl.png"),
			},
		},
		{
			name: "largest id",
			raw:  `{"scene_id":9223372036854775807,"type":"dialogue"}`,
			want: story.Scene{ID: math.MaxInt64, Type: story.SceneTypeDialogue},
		},
		{name: "fractional id", raw: `{"scene_id":3.5,"type":"dialogue"}`, wantErr: true},
		{name: "id beyond int64", raw: `{"scene_id":9223372036854775808,"type":"dialogue"}`, wantErr: true},
		{name: "missing id", raw: `{"type":"dialogue"}`, wantErr: true},
		{name: "numeric dialogue", raw: `{"scene_id":1,"type":"dialogue","dialogue":5}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got story.Scene
			err := json.Unmarshal([]byte(tt.raw), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSceneHasSelection(t *testing.T) {
	scene := story.Scene{ID: 1, Type: story.SceneTypeSelection, Selections: map[string]string{"1": "a", "2": "b"}}
	require.True(t, scene.HasSelection(2))
	require.False(t, scene.HasSelection(99))
	require.False(t, story.Scene{ID: 1, Type: story.SceneTypeSelection}.HasSelection(1))
}

func TestTelemetryWireShape(t *testing.T) {
	b, err := json.Marshal(story.Telemetry{Emotion: emotion.Default(), Time: 42})
	require.NoError(t, err)
	require.JSONEq(t,
		`{"emotion":{"angry":0,"disgust":0,"fear":0,"happy":0,"sad":0,"surprise":0,"neutral":100},"time":42}`,
		string(b))
}

func ptr[T any](v T) *T {
	return &v
}
