package audio

import (
	"fmt"
	"sync"
)

// FocusController adjusts output volume around listening and speaking turns.
// Duck and Restore bracket a listening turn, Lower and Raise step the base
// volume.
type FocusController interface {
	Duck() error
	Restore() error
	Lower() error
	Raise() error
}

const (
	DefaultDuckLevel  = 0.3
	DefaultVolumeStep = 0.1

	volumeEpsilon = 1e-9
)

// SoftwareFocus is a FocusController applied in software by playback
// clients through Gain. Neither ducking nor lowering mutes: the base volume
// never drops below one step.
type SoftwareFocus struct {
	volume    float64
	duckLevel float64
	step      float64
	ducked    bool

	mu sync.RWMutex
}

type SoftwareFocusOption func(*SoftwareFocus)

// WithDuckLevel sets the gain multiplier used while ducked. It is clamped to
// (0, 1].
func WithDuckLevel(level float64) SoftwareFocusOption {
	return func(f *SoftwareFocus) {
		f.duckLevel = level
	}
}

// WithVolumeStep sets how much Lower and Raise change the base volume.
func WithVolumeStep(step float64) SoftwareFocusOption {
	return func(f *SoftwareFocus) {
		f.step = step
	}
}

func NewSoftwareFocus(opts ...SoftwareFocusOption) *SoftwareFocus {
	focus := &SoftwareFocus{volume: 1, duckLevel: DefaultDuckLevel, step: DefaultVolumeStep}
	for _, opt := range opts {
		opt(focus)
	}
	if focus.duckLevel <= 0 || focus.duckLevel > 1 {
		focus.duckLevel = DefaultDuckLevel
	}
	if focus.step <= 0 || focus.step > 1 {
		focus.step = DefaultVolumeStep
	}
	return focus
}

func (f *SoftwareFocus) Duck() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ducked = true
	return nil
}

func (f *SoftwareFocus) Restore() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ducked = false
	return nil
}

func (f *SoftwareFocus) Lower() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.volume <= f.step+volumeEpsilon {
		return fmt.Errorf("volume already at minimum")
	}
	f.volume = max(f.step, f.volume-f.step)
	return nil
}

func (f *SoftwareFocus) Raise() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.volume >= 1-volumeEpsilon {
		return fmt.Errorf("volume already at maximum")
	}
	f.volume = min(1, f.volume+f.step)
	return nil
}

// Gain is the multiplier playback should apply right now.
func (f *SoftwareFocus) Gain() float64 {
	if f == nil {
		return 1
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.ducked {
		return f.volume * f.duckLevel
	}
	return f.volume
}

func (f *SoftwareFocus) IsDucked() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ducked
}
