package orchestration

import (
	"errors"
	"testing"
)

func TestValidateNamesMissingFields(t *testing.T) {
	err := ConfirmationRequest{PositiveCommand: "yes"}.Validate()
	if !errors.Is(err, ErrIncompleteIntent) {
		t.Fatalf("expected ErrIncompleteIntent, got %v", err)
	}
	if want := ErrIncompleteIntent.Error() + ": missing confirmation text, negative command"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}

	if err := lightsRequest.Validate(); err != nil {
		t.Fatalf("expected a complete request to validate, got %v", err)
	}
}

func TestNewSessionStartsInPhaseForRequest(t *testing.T) {
	session := newConfirmationSession(lightsRequest, 0)
	if session.Phase != PhaseAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", session.Phase)
	}
	if session.MaxTries != DefaultMaxTries {
		t.Fatalf("expected default max tries %d, got %d", DefaultMaxTries, session.MaxTries)
	}

	request := lightsRequest
	request.VoiceInput = true
	session = newConfirmationSession(request, 3)
	if session.Phase != PhaseAwaitingVoiceInput {
		t.Fatalf("expected awaiting voice input, got %s", session.Phase)
	}
	if session.MaxTries != 3 {
		t.Fatalf("expected max tries 3, got %d", session.MaxTries)
	}
}

func TestSessionPhasesNeverGoBack(t *testing.T) {
	request := lightsRequest
	request.VoiceInput = true
	session := newConfirmationSession(request, 0)

	if err := session.advance(PhaseAwaitingConfirmation); err != nil {
		t.Fatalf("expected advance to succeed, got %v", err)
	}
	if err := session.advance(PhaseAwaitingVoiceInput); err == nil {
		t.Fatalf("expected moving back to fail")
	}
	if err := session.advance(PhaseResolved); err != nil {
		t.Fatalf("expected resolve to succeed, got %v", err)
	}
	if err := session.advance(PhaseResolved); err == nil {
		t.Fatalf("expected resolving twice to fail")
	}
	if !session.IsResolved() {
		t.Fatalf("expected session to be resolved")
	}
}

func TestCaptureVoiceReplyKeepsFirstUtterance(t *testing.T) {
	request := lightsRequest
	request.VoiceInput = true
	session := newConfirmationSession(request, 0)

	if session.captureVoiceReply("   ") {
		t.Fatalf("expected blank utterance to be ignored")
	}
	if !session.captureVoiceReply(" kitchen lights ") {
		t.Fatalf("expected the first utterance to be captured")
	}
	if session.captureVoiceReply("hallway") {
		t.Fatalf("expected later utterances to be ignored")
	}
	if session.VoiceReply != "kitchen lights" {
		t.Fatalf("expected %q, got %q", "kitchen lights", session.VoiceReply)
	}
}

func TestMatchPrefersPositiveCommand(t *testing.T) {
	session := newConfirmationSession(ConfirmationRequest{
		ConfirmationText: "Proceed?",
		PositiveCommand:  "go|ok",
		NegativeCommand:  "ok|stop",
	}, 0)

	token, ok := session.match("OK then")
	if !ok || token != "ok" {
		t.Fatalf("expected %q to match, got %q (%t)", "ok", token, ok)
	}
	if _, ok := session.match("then ok"); ok {
		t.Fatalf("expected only the first token to be considered")
	}
}

func TestRecordMismatchIsCapped(t *testing.T) {
	session := newConfirmationSession(lightsRequest, 2)

	if session.recordMismatch() {
		t.Fatalf("expected the first mismatch not to exhaust tries")
	}
	if !session.recordMismatch() {
		t.Fatalf("expected the second mismatch to exhaust tries")
	}
	session.recordMismatch()
	if session.TriesUsed != 2 {
		t.Fatalf("expected tries to stay at 2, got %d", session.TriesUsed)
	}
}

func TestConfirmationPrompt(t *testing.T) {
	testCases := []struct {
		name     string
		reply    string
		prompt   string
		expected string
	}{
		{name: "with prompt", reply: "buy milk", prompt: "Is that right?", expected: "buy milk. Is that right? Say yes or no."},
		{name: "without prompt", reply: "buy milk.", expected: "buy milk. Say yes or no."},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			session := newConfirmationSession(ConfirmationRequest{
				ConfirmationText:  "Reminder?",
				PositiveCommand:   "yes",
				NegativeCommand:   "no",
				VoiceInputMessage: testCase.prompt,
				VoiceInput:        true,
			}, 0)
			session.captureVoiceReply(testCase.reply)

			if got := session.confirmationPrompt(); got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}
