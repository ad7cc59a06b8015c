package emotion

import (
	"strings"
	"sync"
)

// Observation is a single reading from a facial expression recognizer.
type Observation struct {
	Label      string
	Confidence float64
}

// FromObservation maps a recognizer reading onto a Vector.
//
// The label may be any key [Normalize] understands, in any case. Confidences up to 1 are fractions and get scaled
// to percent. A nil observation or an unknown label yields [Default].
func FromObservation(obs *Observation) Vector {
	if obs == nil {
		return Default()
	}
	key, ok := canonicalKey(obs.Label)
	if !ok {
		return Default()
	}
	confidence := obs.Confidence
	if confidence <= 1 {
		confidence *= maxValue
	}
	return Normalize(map[string]float64{key: confidence})
}

func canonicalKey(label string) (string, bool) {
	label = strings.TrimSpace(label)
	for _, f := range fields {
		for _, alias := range f.aliases {
			if strings.EqualFold(alias, label) {
				return f.aliases[0], true
			}
		}
	}
	return "", false
}

// Tracker remembers the most recent observation so that a Vector can be read whenever the story advances. It is
// safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	latest *Observation
}

// Observe records obs as the latest reading. A nil observation means nothing was recognized.
func (t *Tracker) Observe(obs *Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if obs == nil {
		t.latest = nil
		return
	}
	o := *obs
	t.latest = &o
}

// Latest returns the Vector for the most recent observation.
func (t *Tracker) Latest() Vector {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return FromObservation(t.latest)
}
