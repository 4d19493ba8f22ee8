package orchestration

import (
	"fmt"

	"github.com/koscakluka/ema-voiceloop/core/audio"
)

type audioFocus struct {
	controller audio.FocusController
}

func newAudioFocus(controller audio.FocusController) *audioFocus {
	return &audioFocus{controller: controller}
}

func (f *audioFocus) set(controller audio.FocusController) {
	if f != nil {
		f.controller = controller
	}
}

func (f *audioFocus) isConfigured() bool { return f != nil && f.controller != nil }

func (f *audioFocus) duck() {
	if !f.isConfigured() {
		return
	}
	if err := f.controller.Duck(); err != nil {
		logger.Warn("failed to duck audio output", "error", err)
	}
}

func (f *audioFocus) restore() {
	if !f.isConfigured() {
		return
	}
	if err := f.controller.Restore(); err != nil {
		logger.Warn("failed to restore audio output", "error", err)
	}
}

func (f *audioFocus) lower() error {
	if !f.isConfigured() {
		return fmt.Errorf("no audio focus controller configured")
	}
	return f.controller.Lower()
}

func (f *audioFocus) raise() error {
	if !f.isConfigured() {
		return fmt.Errorf("no audio focus controller configured")
	}
	return f.controller.Raise()
}
