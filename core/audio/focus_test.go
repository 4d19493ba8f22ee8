package audio

import (
	"encoding/binary"
	"testing"
)

func TestSoftwareFocusDucksWithoutMuting(t *testing.T) {
	focus := NewSoftwareFocus(WithDuckLevel(0.5))

	if got := focus.Gain(); got != 1 {
		t.Fatalf("expected full gain before ducking, got %v", got)
	}

	_ = focus.Duck()
	if got := focus.Gain(); got != 0.5 {
		t.Fatalf("expected ducked gain 0.5, got %v", got)
	}
	if !focus.IsDucked() {
		t.Fatalf("expected focus to report ducked")
	}

	_ = focus.Restore()
	if got := focus.Gain(); got != 1 {
		t.Fatalf("expected restored gain 1, got %v", got)
	}
}

func TestSoftwareFocusLowerAndRaiseStayInRange(t *testing.T) {
	focus := NewSoftwareFocus(WithVolumeStep(0.5))

	if err := focus.Raise(); err == nil {
		t.Fatalf("expected raise at maximum to fail")
	}
	if err := focus.Lower(); err != nil {
		t.Fatalf("expected lower to succeed, got %v", err)
	}
	if got := focus.Gain(); got != 0.5 {
		t.Fatalf("expected gain 0.5 after one step, got %v", got)
	}
	if err := focus.Lower(); err == nil {
		t.Fatalf("expected lower at minimum to fail")
	}
	if got := focus.Gain(); got != 0.5 {
		t.Fatalf("expected gain to stay at 0.5, got %v", got)
	}
	if err := focus.Raise(); err != nil {
		t.Fatalf("expected raise to succeed, got %v", err)
	}
	if got := focus.Gain(); got != 1 {
		t.Fatalf("expected gain 1 after raising, got %v", got)
	}
}

func TestSoftwareFocusLoweringNeverMutes(t *testing.T) {
	focus := NewSoftwareFocus()

	lowered := 0
	for i := 0; i < 20; i++ {
		if focus.Lower() == nil {
			lowered++
		}
		if got := focus.Gain(); got < DefaultVolumeStep-1e-9 {
			t.Fatalf("expected gain to stay at or above %v, got %v", DefaultVolumeStep, got)
		}
	}
	if lowered != 9 {
		t.Fatalf("expected 9 steps down to the minimum, got %d", lowered)
	}

	_ = focus.Duck()
	if got := focus.Gain(); got <= 0 {
		t.Fatalf("expected ducking at minimum volume to stay audible, got %v", got)
	}
}

func TestNewSoftwareFocusRejectsInvalidLevels(t *testing.T) {
	focus := NewSoftwareFocus(WithDuckLevel(0), WithVolumeStep(3))
	_ = focus.Duck()

	if got := focus.Gain(); got != DefaultDuckLevel {
		t.Fatalf("expected default duck level %v, got %v", DefaultDuckLevel, got)
	}
}

func TestNilSoftwareFocusHasUnitGain(t *testing.T) {
	var focus *SoftwareFocus
	if got := focus.Gain(); got != 1 {
		t.Fatalf("expected unit gain from nil focus, got %v", got)
	}
}

func TestScaleLinear16ClampsAndScales(t *testing.T) {
	samples := make([]byte, 6)
	binary.LittleEndian.PutUint16(samples[0:], uint16(int16(1000)))
	negative := int16(-1000)
	binary.LittleEndian.PutUint16(samples[2:], uint16(negative))
	binary.LittleEndian.PutUint16(samples[4:], uint16(int16(30000)))

	ScaleLinear16(samples, 2)

	expected := []int16{2000, -2000, 32767}
	for i, want := range expected {
		got := int16(binary.LittleEndian.Uint16(samples[i*2:]))
		if got != want {
			t.Fatalf("expected sample %d to be %d, got %d", i, want, got)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if format, ok := ParseFormat("linear16"); !ok || format != EncodingLinear16 {
		t.Fatalf("expected linear16 to parse, got %q %t", format, ok)
	}
	if _, ok := ParseFormat("opus"); ok {
		t.Fatalf("expected opus to be rejected")
	}
}
