// Package validate checks the structure of backend payloads before they are decoded and trusted.
//
// The checks operate on raw JSON so that type mismatches, such as a numeric dialogue, are caught instead of being
// silently dropped by a decoder. None of the functions panic on arbitrary input.
package validate

import (
	"github.com/myrjola/talespin/internal/story"
	"github.com/tidwall/gjson"
	"math"
	"strconv"
)

var emotionKeys = []string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

// Scene reports whether raw is a well-formed scene object.
func Scene(raw []byte) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}
	return scene(gjson.ParseBytes(raw))
}

func scene(s gjson.Result) bool {
	if !s.IsObject() || !isInteger(s.Get("scene_id")) {
		return false
	}
	sceneType := s.Get("type")
	if sceneType.Type != gjson.String {
		return false
	}
	switch story.SceneType(sceneType.Str) {
	case story.SceneTypeDialogue:
		if !nullOrString(s.Get("dialogue")) {
			return false
		}
	case story.SceneTypeSelection:
		if !s.Get("selections").IsObject() {
			return false
		}
	default:
		return false
	}
	return nullOrString(s.Get("character_filename"))
}

// Session reports whether raw is a session object with at least one well-formed scene.
func Session(raw []byte) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}
	s := gjson.ParseBytes(raw)
	if !s.IsObject() || !isInteger(s.Get("session_id")) {
		return false
	}
	scenes := s.Get("scenes")
	if !scenes.IsArray() {
		return false
	}
	elements := scenes.Array()
	if len(elements) == 0 {
		return false
	}
	for _, e := range elements {
		if !scene(e) {
			return false
		}
	}
	return true
}

// Emotion reports whether raw holds exactly the seven emotion components, each an integer within [0,100].
//
// Unlike emotion.Normalize this does not round: 50.5 is rejected.
func Emotion(raw []byte) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}
	e := gjson.ParseBytes(raw)
	if !e.IsObject() {
		return false
	}
	fields := e.Map()
	if len(fields) != len(emotionKeys) {
		return false
	}
	for _, key := range emotionKeys {
		v, ok := fields[key]
		if !ok || !isInteger(v) || v.Num < 0 || v.Num > 100 {
			return false
		}
	}
	return true
}

// isInteger accepts JSON numbers without a fractional part that fit in an int64.
func isInteger(r gjson.Result) bool {
	if r.Type != gjson.Number {
		return false
	}
	if _, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
		return true
	}
	return r.Num == math.Trunc(r.Num) && r.Num >= -(1<<63) && r.Num < 1<<63
}

// nullOrString accepts a missing key, an explicit null or a string.
func nullOrString(r gjson.Result) bool {
	return !r.Exists() || r.Type == gjson.Null || r.Type == gjson.String
}
