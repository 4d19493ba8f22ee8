// Package input binds a global hotkey to pausing and resuming the voice
// loop's listening.
package input

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	orchestration "github.com/koscakluka/ema-voiceloop/core"
	"golang.design/x/hotkey"
)

var ErrInvalidHotkey = errors.New("invalid hotkey")

// Listener is the part of the orchestrator a hotkey drives.
type Listener interface {
	PauseListening() (string, error)
	ResumeListening() (string, error)
	TurnState() orchestration.TurnState
}

// HotkeyToggle pauses listening on a key press while the loop listens and
// resumes it on the next press.
type HotkeyToggle struct {
	listener Listener
	onToggle func(ack string, err error)

	hk     *hotkey.Hotkey
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewHotkeyToggle creates a toggle; onToggle, when set, receives the ack of
// every pause or resume.
func NewHotkeyToggle(listener Listener, onToggle func(ack string, err error)) *HotkeyToggle {
	return &HotkeyToggle{listener: listener, onToggle: onToggle}
}

// Start registers keys, e.g. "ctrl+shift+space", and watches for presses
// until ctx ends or Stop is called.
func (h *HotkeyToggle) Start(ctx context.Context, keys string) error {
	mods, key, err := parseHotkey(keys)
	if err != nil {
		return err
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %q: %w", keys, err)
	}

	h.mu.Lock()
	h.hk = hk
	h.mu.Unlock()

	h.watch(ctx, hk.Keydown())
	return nil
}

func (h *HotkeyToggle) watch(ctx context.Context, keydown <-chan hotkey.Event) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-keydown:
				if !ok {
					return
				}
				h.toggle()
			}
		}
	}()
}

func (h *HotkeyToggle) toggle() {
	var ack string
	var err error
	if h.listener.TurnState() == orchestration.TurnStateListening {
		ack, err = h.listener.PauseListening()
	} else {
		ack, err = h.listener.ResumeListening()
	}

	if err != nil {
		logger.Warn("hotkey toggle failed", "error", err)
	}
	if h.onToggle != nil {
		h.onToggle(ack, err)
	}
}

// Stop unregisters the hotkey and waits briefly for the watcher to exit.
func (h *HotkeyToggle) Stop() {
	h.mu.Lock()
	cancel, hk, done := h.cancel, h.hk, h.done
	h.cancel, h.hk = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if hk != nil {
		if err := hk.Unregister(); err != nil {
			logger.Warn("failed to unregister hotkey", "error", err)
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// parseHotkey parses a combination like "ctrl+shift+space" into modifiers
// and a single key.
func parseHotkey(s string) ([]hotkey.Modifier, hotkey.Key, error) {
	if strings.TrimSpace(s) == "" {
		return nil, 0, fmt.Errorf("%w: empty hotkey", ErrInvalidHotkey)
	}

	var mods []hotkey.Modifier
	var key hotkey.Key
	keyFound := false

	for _, part := range strings.Split(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		case "alt", "option":
			mods = append(mods, modAlt())
		case "cmd", "command", "super", "win":
			mods = append(mods, modSuper())
		default:
			if keyFound {
				return nil, 0, fmt.Errorf("%w: more than one key in %q", ErrInvalidHotkey, s)
			}
			k, ok := namedKeys[part]
			if !ok {
				return nil, 0, fmt.Errorf("%w: unknown key %q", ErrInvalidHotkey, part)
			}
			key = k
			keyFound = true
		}
	}

	if !keyFound {
		return nil, 0, fmt.Errorf("%w: no key in %q", ErrInvalidHotkey, s)
	}
	return mods, key, nil
}

var namedKeys = map[string]hotkey.Key{
	"space": hotkey.KeySpace, "return": hotkey.KeyReturn, "enter": hotkey.KeyReturn,
	"tab": hotkey.KeyTab, "escape": hotkey.KeyEscape, "esc": hotkey.KeyEscape,

	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,

	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,

	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}
