package hub

import (
	"bytes"
	"errors"
	"time"
)

// ErrClosed is returned when talking to a hub that has stopped.
var ErrClosed = errors.New("hub closed")

type verdict int

const (
	admitted verdict = iota
	tooSoon
	duplicate
)

func (v verdict) String() string {
	switch v {
	case admitted:
		return "admitted"
	case tooSoon:
		return "rate-limited"
	case duplicate:
		return "duplicate"
	}
	return "unknown"
}

// gate is the per-session admission record: when the last update was
// accepted and what it contained. ready flips once the client has asked for
// the initial state; broadcasts skip sessions that are not ready yet.
type gate struct {
	ready       bool
	minInterval time.Duration
	last        []byte
	lastAt      time.Time
}

func newGate(minInterval time.Duration) *gate {
	return &gate{minInterval: minInterval}
}

// admit decides whether an update with the given canonical payload may be
// applied, and records it if so.
func (g *gate) admit(payload []byte, now time.Time) verdict {
	if !g.lastAt.IsZero() && now.Sub(g.lastAt) < g.minInterval {
		return tooSoon
	}
	if g.last != nil && bytes.Equal(g.last, payload) {
		return duplicate
	}
	g.last = payload
	g.lastAt = now
	return admitted
}
