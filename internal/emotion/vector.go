// Package emotion turns loosely shaped emotion readings into the canonical bounded vector sent to the story backend.
package emotion

import (
	"encoding/json"
	"math"
	"reflect"
)

const (
	minValue = 0
	maxValue = 100
)

// Vector holds the magnitude of the seven canonical emotions, each an integer in [0,100].
//
// The components need not sum to 100. Vector is a value type so every copy is independent.
type Vector struct {
	Angry    int `json:"angry"`
	Disgust  int `json:"disgust"`
	Fear     int `json:"fear"`
	Happy    int `json:"happy"`
	Sad      int `json:"sad"`
	Surprise int `json:"surprise"`
	Neutral  int `json:"neutral"`
}

// Default returns a fully neutral vector.
func Default() Vector {
	return Vector{Neutral: maxValue} //nolint:exhaustruct // the rest are zero on purpose
}

// Valid reports whether every component is within [0,100].
func (v Vector) Valid() bool {
	for _, c := range v.components() {
		if c < minValue || c > maxValue {
			return false
		}
	}
	return true
}

// Bounded returns a copy of v with every component clamped into [0,100].
func (v Vector) Bounded() Vector {
	return Vector{
		Angry:    Clamp(float64(v.Angry)),
		Disgust:  Clamp(float64(v.Disgust)),
		Fear:     Clamp(float64(v.Fear)),
		Happy:    Clamp(float64(v.Happy)),
		Sad:      Clamp(float64(v.Sad)),
		Surprise: Clamp(float64(v.Surprise)),
		Neutral:  Clamp(float64(v.Neutral)),
	}
}

func (v Vector) components() [7]int {
	return [7]int{v.Angry, v.Disgust, v.Fear, v.Happy, v.Sad, v.Surprise, v.Neutral}
}

// Clamp bounds value to [0,100] and rounds it to the nearest integer, halves rounding up.
//
// NaN has no meaningful magnitude and clamps to 0.
func Clamp(value float64) int {
	if math.IsNaN(value) {
		return minValue
	}
	bounded := math.Min(maxValue, math.Max(minValue, value))
	return int(math.Floor(bounded + 0.5)) //nolint:mnd // round half up
}

// field binds a canonical component to the keys it may appear under, in priority order.
type field struct {
	aliases []string
	set     func(v *Vector, value int)
}

var fields = []field{
	{aliases: []string{"angry", "anger", "Anger", "Angry"}, set: func(v *Vector, n int) { v.Angry = n }},
	{aliases: []string{"disgust", "disgusted", "Disgusted", "Disgust"}, set: func(v *Vector, n int) { v.Disgust = n }},
	{aliases: []string{"fear", "fearful", "Fearful", "Fear"}, set: func(v *Vector, n int) { v.Fear = n }},
	{aliases: []string{"happy", "happiness", "Happiness", "Happy"}, set: func(v *Vector, n int) { v.Happy = n }},
	{aliases: []string{"sad", "sadness", "Sadness", "Sad"}, set: func(v *Vector, n int) { v.Sad = n }},
	{aliases: []string{"surprise", "surprised", "Surprised", "Surprise"}, set: func(v *Vector, n int) { v.Surprise = n }},
	{aliases: []string{"neutral", "Neutral"}, set: func(v *Vector, n int) { v.Neutral = n }},
}

// Normalize converts an arbitrary emotion reading into a Vector.
//
// raw must be a map keyed by strings, with any value type; anything else, including a nil map, yields [Default]. Each component takes the first numeric value found among its aliases, clamped
// with [Clamp]. Components without a numeric value are 0.
func Normalize(raw any) Vector {
	lookup, ok := asLookup(raw)
	if !ok {
		return Default()
	}

	var v Vector
	for _, f := range fields {
		for _, key := range f.aliases {
			value, found := lookup(key)
			if !found {
				continue
			}
			if n, numeric := toFloat(value); numeric {
				f.set(&v, Clamp(n))
				break
			}
		}
	}
	return v
}

func asLookup(raw any) (func(string) (any, bool), bool) {
	if m, ok := raw.(map[string]any); ok {
		if m == nil {
			return nil, false
		}
		return func(k string) (any, bool) {
			v, found := m[k]
			return v, found
		}, true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return nil, false
	}
	keyType := rv.Type().Key()
	return func(k string) (any, bool) {
		v := rv.MapIndex(reflect.ValueOf(k).Convert(keyType))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	}, true
}

func toFloat(value any) (float64, bool) {
	var f float64
	if n, ok := value.(json.Number); ok {
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
		return f, !math.IsNaN(f)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() { //nolint:exhaustive // everything else is not a number
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f = float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f = float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f = rv.Float()
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
