package orchestration

import "time"

const (
	DefaultVoiceCaptureWindow = 4 * time.Second
	DefaultCooldown           = 3 * time.Second
)

type timerKind int

const (
	timerCaptureWindow timerKind = iota
	timerCooldown
)

func (k timerKind) String() string {
	if k == timerCooldown {
		return "cooldown"
	}
	return "capture_window"
}

type scheduledTimer struct {
	timer      *time.Timer
	sessionID  string
	generation uint64
	deadline   time.Time
}

// sessionTimers runs the protocol timers. A timer fires by posting
// timerFiredInput to the runtime; a fire whose generation is no longer
// scheduled is stale and must be ignored. Only the runtime goroutine calls
// its methods.
type sessionTimers struct {
	post       func(input) bool
	active     map[timerKind]scheduledTimer
	generation uint64
}

func newSessionTimers(post func(input) bool) *sessionTimers {
	return &sessionTimers{post: post, active: map[timerKind]scheduledTimer{}}
}

// schedule replaces any timer of the same kind.
func (t *sessionTimers) schedule(kind timerKind, sessionID string, after time.Duration) {
	t.cancel(kind)
	t.generation++

	post := t.post
	fired := timerFiredInput{kind: kind, sessionID: sessionID, generation: t.generation}
	t.active[kind] = scheduledTimer{
		timer:      time.AfterFunc(after, func() { post(fired) }),
		sessionID:  sessionID,
		generation: t.generation,
		deadline:   time.Now().Add(after),
	}
}

func (t *sessionTimers) cancel(kind timerKind) {
	if scheduled, ok := t.active[kind]; ok {
		scheduled.timer.Stop()
		delete(t.active, kind)
	}
}

func (t *sessionTimers) cancelAll() {
	for kind := range t.active {
		t.cancel(kind)
	}
}

// shorten reschedules a pending timer so that it fires within limit.
// Timers already due sooner are left alone.
func (t *sessionTimers) shorten(kind timerKind, limit time.Duration) {
	scheduled, ok := t.active[kind]
	if !ok || time.Until(scheduled.deadline) <= limit {
		return
	}
	t.schedule(kind, scheduled.sessionID, limit)
}

// claim reports whether fired is the current timer of its kind and retires
// it.
func (t *sessionTimers) claim(fired timerFiredInput) bool {
	scheduled, ok := t.active[fired.kind]
	if !ok || scheduled.generation != fired.generation || scheduled.sessionID != fired.sessionID {
		return false
	}
	delete(t.active, fired.kind)
	return true
}

func (t *sessionTimers) pending() int {
	return len(t.active)
}
