package orchestration

import (
	"testing"
	"time"
)

type timerRecorder struct {
	fired chan timerFiredInput
}

func newTimerRecorder() *timerRecorder {
	return &timerRecorder{fired: make(chan timerFiredInput, 16)}
}

func (r *timerRecorder) post(in input) bool {
	if fired, ok := in.(timerFiredInput); ok {
		r.fired <- fired
	}
	return true
}

func (r *timerRecorder) next(t *testing.T) timerFiredInput {
	t.Helper()
	select {
	case fired := <-r.fired:
		return fired
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for timer")
		return timerFiredInput{}
	}
}

func TestScheduledTimerIsClaimedOnce(t *testing.T) {
	recorder := newTimerRecorder()
	timers := newSessionTimers(recorder.post)

	timers.schedule(timerCooldown, "s1", 10*time.Millisecond)
	fired := recorder.next(t)

	if fired.kind != timerCooldown || fired.sessionID != "s1" {
		t.Fatalf("expected cooldown for s1, got %+v", fired)
	}
	if !timers.claim(fired) {
		t.Fatalf("expected the fire to be claimed")
	}
	if timers.claim(fired) {
		t.Fatalf("expected a second claim to fail")
	}
	if timers.pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", timers.pending())
	}
}

func TestRescheduledTimerMakesEarlierFireStale(t *testing.T) {
	recorder := newTimerRecorder()
	timers := newSessionTimers(recorder.post)

	timers.schedule(timerCaptureWindow, "s1", 5*time.Millisecond)
	stale := recorder.next(t)
	timers.schedule(timerCaptureWindow, "s1", time.Hour)

	if timers.claim(stale) {
		t.Fatalf("expected the earlier fire to be stale")
	}
	if timers.pending() != 1 {
		t.Fatalf("expected the new timer to stay pending")
	}
	timers.cancelAll()
}

func TestCancelledTimerDoesNotFire(t *testing.T) {
	recorder := newTimerRecorder()
	timers := newSessionTimers(recorder.post)

	timers.schedule(timerCaptureWindow, "s1", 20*time.Millisecond)
	timers.schedule(timerCooldown, "s1", 20*time.Millisecond)
	timers.cancelAll()

	select {
	case fired := <-recorder.fired:
		t.Fatalf("expected no fire after cancel, got %+v", fired)
	case <-time.After(60 * time.Millisecond):
	}
	if timers.pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", timers.pending())
	}
}

func TestShortenOnlyBringsDeadlineForward(t *testing.T) {
	recorder := newTimerRecorder()
	timers := newSessionTimers(recorder.post)

	timers.schedule(timerCooldown, "s1", time.Hour)
	timers.shorten(timerCooldown, 10*time.Millisecond)
	fired := recorder.next(t)
	if !timers.claim(fired) {
		t.Fatalf("expected the shortened timer to be current")
	}

	timers.schedule(timerCooldown, "s2", 10*time.Millisecond)
	generation := timers.active[timerCooldown].generation
	timers.shorten(timerCooldown, time.Hour)
	if timers.active[timerCooldown].generation != generation {
		t.Fatalf("expected a sooner timer to be left alone")
	}
	if fired := recorder.next(t); fired.sessionID != "s2" || !timers.claim(fired) {
		t.Fatalf("expected the original timer to fire, got %+v", fired)
	}

	timers.shorten(timerCaptureWindow, time.Millisecond)
	if timers.pending() != 0 {
		t.Fatalf("expected shortening a missing timer to do nothing")
	}
}
