package agent

import "time"

type timerKind int

const (
	timerHeartbeat timerKind = iota
	timerReconnect
	timerCooldown
)

func (k timerKind) String() string {
	switch k {
	case timerHeartbeat:
		return "heartbeat"
	case timerReconnect:
		return "reconnect"
	case timerCooldown:
		return "cooldown"
	}
	return "unknown"
}

// fired is posted to the loop when a timer goes off.
type fired struct {
	kind timerKind
	gen  uint64
}

// timer is a cancel-and-replace timer. Every arm or stop bumps the
// generation, so a fire that raced with a stop is recognised as stale.
type timer struct {
	t   *time.Timer
	gen uint64
}

func (tm *timer) arm(d time.Duration, kind timerKind, post func(any)) {
	tm.stop()
	gen := tm.gen
	tm.t = time.AfterFunc(d, func() { post(fired{kind: kind, gen: gen}) })
}

func (tm *timer) stop() {
	if tm.t != nil {
		tm.t.Stop()
		tm.t = nil
	}
	tm.gen++
}

func (tm *timer) armed() bool {
	return tm.t != nil
}

// current reports whether f belongs to the live arming of tm, and disarms
// it if so.
func (tm *timer) current(f fired) bool {
	if tm.t == nil || f.gen != tm.gen {
		return false
	}
	tm.t = nil
	return true
}
