package input

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	orchestration "github.com/koscakluka/ema-voiceloop/core"
	"golang.design/x/hotkey"
)

type fakeListener struct {
	state  orchestration.TurnState
	pauses int
	resume int
	mu     sync.Mutex
}

func (l *fakeListener) PauseListening() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pauses++
	l.state = orchestration.TurnStateDucked
	return "Speech listener paused.", nil
}

func (l *fakeListener) ResumeListening() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resume++
	l.state = orchestration.TurnStateListening
	return "Speech listener resumed.", nil
}

func (l *fakeListener) TurnState() orchestration.TurnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func TestParseHotkey(t *testing.T) {
	testCases := []struct {
		input    string
		wantMods int
		wantKey  hotkey.Key
	}{
		{input: "ctrl+shift+space", wantMods: 2, wantKey: hotkey.KeySpace},
		{input: "Alt + F5", wantMods: 1, wantKey: hotkey.KeyF5},
		{input: "cmd+k", wantMods: 1, wantKey: hotkey.KeyK},
		{input: "esc", wantMods: 0, wantKey: hotkey.KeyEscape},
	}

	for _, testCase := range testCases {
		t.Run(testCase.input, func(t *testing.T) {
			mods, key, err := parseHotkey(testCase.input)
			if err != nil {
				t.Fatalf("expected %q to parse, got %v", testCase.input, err)
			}
			if len(mods) != testCase.wantMods || key != testCase.wantKey {
				t.Fatalf("expected %d modifiers and key %v, got %d and %v", testCase.wantMods, testCase.wantKey, len(mods), key)
			}
		})
	}
}

func TestParseHotkeyRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "ctrl+shift", "ctrl+a+b", "ctrl+hyper"} {
		if _, _, err := parseHotkey(input); !errors.Is(err, ErrInvalidHotkey) {
			t.Fatalf("expected ErrInvalidHotkey for %q, got %v", input, err)
		}
	}
}

func TestKeydownTogglesListening(t *testing.T) {
	listener := &fakeListener{state: orchestration.TurnStateListening}
	acks := make(chan string, 4)
	toggle := NewHotkeyToggle(listener, func(ack string, err error) {
		if err != nil {
			t.Errorf("expected no toggle error, got %v", err)
		}
		acks <- ack
	})

	keydown := make(chan hotkey.Event)
	toggle.watch(context.Background(), keydown)
	defer toggle.Stop()

	want := []string{"Speech listener paused.", "Speech listener resumed.", "Speech listener paused."}
	for _, expected := range want {
		keydown <- hotkey.Event{}
		select {
		case ack := <-acks:
			if ack != expected {
				t.Fatalf("expected %q, got %q", expected, ack)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", expected)
		}
	}

	if listener.pauses != 2 || listener.resume != 1 {
		t.Fatalf("expected 2 pauses and 1 resume, got %d and %d", listener.pauses, listener.resume)
	}
}

func TestStopEndsWatcher(t *testing.T) {
	toggle := NewHotkeyToggle(&fakeListener{}, nil)
	keydown := make(chan hotkey.Event)
	toggle.watch(context.Background(), keydown)

	toggle.Stop()

	select {
	case <-toggle.done:
	case <-time.After(time.Second):
		t.Fatalf("expected watcher to exit after Stop")
	}
}
