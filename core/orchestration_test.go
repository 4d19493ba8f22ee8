package orchestration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/koscakluka/ema-voiceloop/core/speechtotext"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
)

var lightsRequest = ConfirmationRequest{
	ConfirmationText: "Turn off the lights?",
	PositiveCommand:  "yes",
	NegativeCommand:  "no",
}

func TestStartServiceStartsListening(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	if got := h.orchestrator.TurnState(); got != TurnStateListening {
		t.Fatalf("expected listening after start, got %s", got)
	}
	if !h.recognizer.isListening() {
		t.Fatalf("expected recognizer to be listening")
	}
	if !h.focus.isDucked() {
		t.Fatalf("expected output to be ducked while listening")
	}
	h.recorder.waitFor(t, events.KindServiceStarted, 1)
}

func TestCommandsBeforeStartServiceFail(t *testing.T) {
	h := newTestHarness(t)

	if _, err := h.orchestrator.ConfirmIntent(lightsRequest); !errors.Is(err, ErrServiceNotStarted) {
		t.Fatalf("expected ErrServiceNotStarted, got %v", err)
	}
	if _, err := h.orchestrator.CancelConfirmation(true); !errors.Is(err, ErrServiceNotStarted) {
		t.Fatalf("expected ErrServiceNotStarted, got %v", err)
	}
	if _, err := h.orchestrator.PauseListening(); !errors.Is(err, ErrServiceNotStarted) {
		t.Fatalf("expected ErrServiceNotStarted, got %v", err)
	}
	if got := h.orchestrator.TurnState(); got != TurnStateIdle {
		t.Fatalf("expected idle before start, got %s", got)
	}
}

func TestConfirmIntentRejectsIncompleteRequests(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	_, err := h.orchestrator.ConfirmIntent(ConfirmationRequest{ConfirmationText: "Delete it?", PositiveCommand: "yes"})
	if !errors.Is(err, ErrIncompleteIntent) {
		t.Fatalf("expected ErrIncompleteIntent, got %v", err)
	}
	if _, ok := h.orchestrator.Session(); ok {
		t.Fatalf("expected no session after rejected request")
	}
}

func TestConfirmIntentAcknowledgesParameters(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	ack, err := h.orchestrator.ConfirmIntent(ConfirmationRequest{
		ConfirmationText:  "Send the message?",
		PositiveCommand:   "send",
		NegativeCommand:   "cancel",
		VoiceInputMessage: "Did I get that right?",
		VoiceInput:        true,
	})
	if err != nil {
		t.Fatalf("expected confirmation to start, got %v", err)
	}

	want := "Requested confirmation for: Send the message?\n Positive Reply: send\n Negative Reply: cancel\n Voice Input Message: Did I get that right?\n Voice Input: true"
	if ack != want {
		t.Fatalf("expected ack %q, got %q", want, ack)
	}

	if got := h.synthesizer.spokenTexts(); len(got) != 1 || got[0] != "Send the message?" {
		t.Fatalf("expected the confirmation text to be spoken, got %v", got)
	}
	if mode := h.synthesizer.lastRequest().Mode; mode != texttospeech.QueueFlush {
		t.Fatalf("expected the prompt to flush the queue, got %s", mode)
	}
	if got := h.orchestrator.TurnState(); got != TurnStateSpeaking {
		t.Fatalf("expected speaking while prompting, got %s", got)
	}
	if h.recognizer.isListening() {
		t.Fatalf("expected recognizer to stop before speaking")
	}
}

func TestConfirmIntentRejectsSecondUnresolvedSession(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)
	h.confirm(t, lightsRequest)

	_, err := h.orchestrator.ConfirmIntent(ConfirmationRequest{ConfirmationText: "Lock the door?", PositiveCommand: "yes", NegativeCommand: "no"})
	if !errors.Is(err, ErrConfirmationBusy) {
		t.Fatalf("expected ErrConfirmationBusy, got %v", err)
	}

	session, ok := h.orchestrator.Session()
	if !ok || session.ConfirmationText != lightsRequest.ConfirmationText {
		t.Fatalf("expected the first session to survive, got %+v", session)
	}
}

func TestReplyMatchesOnFirstToken(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)
	h.confirm(t, lightsRequest)

	h.recognizer.say("Yes please")

	resolved := h.recorder.waitFor(t, events.KindConfirmationResolved, 1)[0].(events.ConfirmationResolved)
	if !resolved.Result.Succeeded {
		t.Fatalf("expected a successful result, got %+v", resolved.Result)
	}
	if resolved.Result.MatchedReply != "yes" {
		t.Fatalf("expected matched reply %q, got %q", "yes", resolved.Result.MatchedReply)
	}
	if resolved.Result.OriginalText != lightsRequest.ConfirmationText {
		t.Fatalf("expected original text %q, got %q", lightsRequest.ConfirmationText, resolved.Result.OriginalText)
	}
	if resolved.Err != nil {
		t.Fatalf("expected no error, got %v", resolved.Err)
	}

	spoken := h.synthesizer.spokenTexts()
	if spoken[len(spoken)-1] != DefaultAcknowledgement {
		t.Fatalf("expected acknowledgement to be spoken, got %v", spoken)
	}
	if h.recorder.count(events.KindRecognizedText) != 0 {
		t.Fatalf("expected the reply to be consumed by the confirmation")
	}
}

func TestNegativeReplyIsAMatch(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)
	h.confirm(t, lightsRequest)

	h.recognizer.say("No!")

	resolved := h.recorder.waitFor(t, events.KindConfirmationResolved, 1)[0].(events.ConfirmationResolved)
	if resolved.Result.MatchedReply != "no" {
		t.Fatalf("expected matched reply %q, got %q", "no", resolved.Result.MatchedReply)
	}
}

func TestMismatchesAreSilentUntilTriesRunOut(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)
	h.confirm(t, lightsRequest)

	for i := 0; i < DefaultMaxTries-1; i++ {
		h.recognizer.say(fmt.Sprintf("maybe %d", i))
	}
	waitForCondition(t, 2*time.Second, "mismatches to be counted", func() bool {
		session, ok := h.orchestrator.Session()
		return ok && session.TriesUsed == DefaultMaxTries-1
	})
	if h.recorder.count(events.KindConfirmationResolved) != 0 {
		t.Fatalf("expected no result before tries run out")
	}
	if spoken := h.synthesizer.spokenTexts(); len(spoken) != 1 {
		t.Fatalf("expected mismatches to be absorbed silently, got %v", spoken)
	}

	h.recognizer.say("perhaps")

	resolved := h.recorder.waitFor(t, events.KindConfirmationResolved, 1)[0].(events.ConfirmationResolved)
	if resolved.Result.Succeeded {
		t.Fatalf("expected a failed result")
	}
	if !errors.Is(resolved.Err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", resolved.Err)
	}

	spoken := h.synthesizer.spokenTexts()
	if spoken[len(spoken)-1] != DefaultFailureNotice {
		t.Fatalf("expected failure notice to be spoken, got %v", spoken)
	}

	h.synthesizer.completeNext()
	h.waitForState(t, TurnStateListening)
	h.recognizer.say("yes")
	h.recorder.waitFor(t, events.KindRecognizedText, 1)
	if got := h.recorder.count(events.KindConfirmationResolved); got != 1 {
		t.Fatalf("expected exactly one result, got %d", got)
	}
}

func TestTriesNeverExceedMaxTries(t *testing.T) {
	for _, mismatches := range []int{0, 1, 4, 5, 6, 12} {
		t.Run(fmt.Sprintf("%d mismatches", mismatches), func(t *testing.T) {
			h := newTestHarness(t, WithMaxTries(5), WithCooldown(time.Hour))
			h.start(t)
			h.confirm(t, lightsRequest)

			for i := 0; i < mismatches; i++ {
				h.recognizer.say("what")
			}
			waitForCondition(t, 2*time.Second, "replies to be processed", func() bool {
				session, ok := h.orchestrator.Session()
				return ok && (session.TriesUsed == min(mismatches, 5))
			})

			session, _ := h.orchestrator.Session()
			if session.TriesUsed > session.MaxTries {
				t.Fatalf("expected tries %d to stay within %d", session.TriesUsed, session.MaxTries)
			}
			if want := mismatches >= 5; session.IsResolved() != want {
				t.Fatalf("expected resolved=%t, got %t", want, session.IsResolved())
			}
			if got := h.recorder.count(events.KindConfirmationResolved); got > 1 {
				t.Fatalf("expected at most one result, got %d", got)
			}
		})
	}
}

func TestVoiceInputIsCapturedBeforeConfirming(t *testing.T) {
	h := newTestHarness(t, WithVoiceCaptureWindow(200*time.Millisecond))
	h.start(t)
	h.confirm(t, ConfirmationRequest{
		ConfirmationText:  "What should I remind you about?",
		PositiveCommand:   "yes",
		NegativeCommand:   "no",
		VoiceInputMessage: "Is that right?",
		VoiceInput:        true,
	})

	h.recognizer.say("buy more milk")
	captured := h.recorder.waitFor(t, events.KindConfirmationVoiceInputCaptured, 1)[0].(events.ConfirmationVoiceInputCaptured)
	if captured.Text != "buy more milk" {
		t.Fatalf("expected captured text %q, got %q", "buy more milk", captured.Text)
	}
	h.waitForState(t, TurnStateIdle)
	if h.recognizer.isListening() {
		t.Fatalf("expected recognition to be held off during the capture window")
	}

	h.recognizer.say("and bread")

	want := "buy more milk. Is that right? Say yes or no."
	waitForCondition(t, 2*time.Second, "confirmation prompt", func() bool {
		spoken := h.synthesizer.spokenTexts()
		return spoken[len(spoken)-1] == want
	})
	session, _ := h.orchestrator.Session()
	if session.VoiceReply != "buy more milk" {
		t.Fatalf("expected the first utterance to win, got %q", session.VoiceReply)
	}
	if session.Phase != PhaseAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", session.Phase)
	}

	h.synthesizer.completeNext()
	h.waitForState(t, TurnStateListening)
	h.recognizer.say("yes")

	resolved := h.recorder.waitFor(t, events.KindConfirmationResolved, 1)[0].(events.ConfirmationResolved)
	if resolved.Result.VoiceInputCaptured != "buy more milk" || !resolved.Result.Succeeded {
		t.Fatalf("expected a successful result carrying the voice input, got %+v", resolved.Result)
	}
}

func TestImmediateCancelReturnsToListeningInOneStep(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	if _, err := h.orchestrator.ConfirmIntent(lightsRequest); err != nil {
		t.Fatalf("expected confirmation to start, got %v", err)
	}

	ack, err := h.orchestrator.CancelConfirmation(true)
	if err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if ack != ackConfirmationCancelled {
		t.Fatalf("expected ack %q, got %q", ackConfirmationCancelled, ack)
	}
	if got := h.orchestrator.TurnState(); got != TurnStateListening {
		t.Fatalf("expected listening right after cancel, got %s", got)
	}
	if h.synthesizer.activeCount() != 0 {
		t.Fatalf("expected the prompt to be stopped")
	}
	if _, ok := h.orchestrator.Session(); ok {
		t.Fatalf("expected the session to be cleared")
	}

	cancelled := h.recorder.waitFor(t, events.KindConfirmationCancelled, 1)[0].(events.ConfirmationCancelled)
	if !cancelled.Immediate {
		t.Fatalf("expected an immediate cancellation event")
	}
	if h.recorder.count(events.KindConfirmationResolved) != 0 {
		t.Fatalf("expected no result for a cancelled confirmation")
	}
}

func TestCancelWithoutSessionReportsNoConfirmation(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	ack, err := h.orchestrator.CancelConfirmation(false)
	if err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if ack != ackNoConfirmation {
		t.Fatalf("expected ack %q, got %q", ackNoConfirmation, ack)
	}

	none := h.recorder.waitFor(t, events.KindNoConfirmationInProgress, 1)[0].(events.NoConfirmationInProgress)
	if !errors.Is(none.Err, ErrNoConfirmationInProgress) {
		t.Fatalf("expected ErrNoConfirmationInProgress, got %v", none.Err)
	}
}

func TestDeferredCancelResolvesWithoutResultAndCoolsDown(t *testing.T) {
	h := newTestHarness(t, WithCooldown(50*time.Millisecond))
	h.start(t)
	h.confirm(t, lightsRequest)

	if _, err := h.orchestrator.CancelConfirmation(false); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	cancelled := h.recorder.waitFor(t, events.KindConfirmationCancelled, 1)[0].(events.ConfirmationCancelled)
	if cancelled.Immediate {
		t.Fatalf("expected a deferred cancellation event")
	}

	h.recognizer.say("yes")
	h.recorder.waitFor(t, events.KindRecognizedText, 1)
	if h.recorder.count(events.KindConfirmationResolved) != 0 {
		t.Fatalf("expected no result for a cancelled confirmation")
	}

	waitForCondition(t, 2*time.Second, "cooldown to clear the session", func() bool {
		_, ok := h.orchestrator.Session()
		return !ok
	})
}

func TestDeferredCancelOnResolvedSessionIsIdempotent(t *testing.T) {
	h := newTestHarness(t, WithCooldown(100*time.Millisecond))
	h.start(t)
	h.confirm(t, lightsRequest)
	h.recognizer.say("yes")
	h.recorder.waitFor(t, events.KindConfirmationResolved, 1)

	for i := 0; i < 3; i++ {
		ack, err := h.orchestrator.CancelConfirmation(false)
		if err != nil || ack != ackConfirmationCancelled {
			t.Fatalf("expected %q, got %q (%v)", ackConfirmationCancelled, ack, err)
		}
	}
	if h.recorder.count(events.KindConfirmationCancelled) != 0 {
		t.Fatalf("expected no cancellation event for a resolved session")
	}

	waitForCondition(t, 2*time.Second, "cooldown to clear the session", func() bool {
		_, ok := h.orchestrator.Session()
		return !ok
	})
}

func TestResolvedSessionIsReplacedDuringCooldown(t *testing.T) {
	h := newTestHarness(t, WithCooldown(time.Hour))
	h.start(t)
	h.confirm(t, lightsRequest)
	h.recognizer.say("no")
	h.recorder.waitFor(t, events.KindConfirmationResolved, 1)

	if _, err := h.orchestrator.ConfirmIntent(ConfirmationRequest{ConfirmationText: "Lock the door?", PositiveCommand: "yes", NegativeCommand: "no"}); err != nil {
		t.Fatalf("expected a new confirmation during cooldown, got %v", err)
	}
	session, ok := h.orchestrator.Session()
	if !ok || session.ConfirmationText != "Lock the door?" || session.IsResolved() {
		t.Fatalf("expected the new session to replace the resolved one, got %+v", session)
	}
}

func TestUtteranceWithoutSessionReportsNoConfirmation(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	h.recognizer.partial("what time")
	h.recognizer.say("what time is it")

	recognized := h.recorder.waitFor(t, events.KindRecognizedText, 2)
	if first := recognized[0].(events.RecognizedText); !first.Partial || first.Text != "what time" {
		t.Fatalf("expected a partial result first, got %+v", first)
	}
	if final := recognized[1].(events.RecognizedText); final.Partial || final.Text != "what time is it" {
		t.Fatalf("expected the final result, got %+v", final)
	}

	none := h.recorder.waitFor(t, events.KindNoConfirmationInProgress, 1)[0].(events.NoConfirmationInProgress)
	if none.Text != "what time is it" {
		t.Fatalf("expected the utterance to be attached, got %q", none.Text)
	}
}

func TestSpeechDoneResumesListeningImmediately(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	h.orchestrator.Speak("The lights are off.", false)
	h.waitForState(t, TurnStateSpeaking)
	if h.recognizer.isListening() {
		t.Fatalf("expected recognizer to stop before speaking")
	}
	if h.focus.isDucked() {
		t.Fatalf("expected output to be restored before speaking")
	}

	h.synthesizer.completeNext()
	h.waitForState(t, TurnStateListening)
	h.recorder.waitFor(t, events.KindSpeechDone, 1)

	assertTransitions(t, h.recorder, []string{
		"idle>listening",
		"listening>speaking",
		"speaking>listening",
	})
}

func TestSpeechErrorResumesListeningAndIsReported(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	h.orchestrator.Speak("The lights are off.", false)
	h.waitForState(t, TurnStateSpeaking)
	h.synthesizer.failNext(errors.New("device unplugged"))

	h.waitForState(t, TurnStateListening)
	failed := h.recorder.waitFor(t, events.KindSpeechFailed, 1)[0].(events.SpeechFailed)
	if failed.Err == nil || failed.Err.Error() != "device unplugged" {
		t.Fatalf("expected the engine error to be reported, got %v", failed.Err)
	}
	assertTransitions(t, h.recorder, []string{
		"idle>listening",
		"listening>speaking",
		"speaking>listening",
	})
}

func TestQueuedSpeechKeepsSpeakingUntilLastUtterance(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	h.orchestrator.Speak("First.", false)
	h.orchestrator.Speak("Second.", true)
	waitForCondition(t, 2*time.Second, "both utterances", func() bool {
		return h.synthesizer.activeCount() == 2
	})

	h.synthesizer.completeNext()
	h.recorder.waitFor(t, events.KindSpeechDone, 1)
	if got := h.orchestrator.TurnState(); got != TurnStateSpeaking {
		t.Fatalf("expected speaking while an utterance is queued, got %s", got)
	}

	h.synthesizer.completeNext()
	h.waitForState(t, TurnStateListening)
}

func TestFlushedUtteranceCallbacksAreIgnored(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	h.orchestrator.Speak("First.", false)
	waitForCondition(t, 2*time.Second, "first utterance", func() bool {
		return h.synthesizer.activeCount() == 1
	})
	h.orchestrator.Speak("Second.", false)
	waitForCondition(t, 2*time.Second, "second utterance", func() bool {
		return len(h.synthesizer.spokenTexts()) == 2
	})

	h.synthesizer.completeNext()
	h.waitForState(t, TurnStateListening)
	h.recorder.waitFor(t, events.KindSpeechDone, 1)

	if got := h.recorder.count(events.KindSpeechFailed); got != 0 {
		t.Fatalf("expected the flushed utterance to be ignored, got %d failures", got)
	}
	if got := h.recorder.count(events.KindSpeechDone); got != 1 {
		t.Fatalf("expected one completed utterance, got %d", got)
	}
}

func TestSynchronousEngineCallbacksDoNotDeadlock(t *testing.T) {
	h := newTestHarness(t)
	h.synthesizer.setAutoComplete(true)
	h.start(t)

	for i := 0; i < 100; i++ {
		h.orchestrator.Speak(fmt.Sprintf("utterance %d", i), true)
	}
	h.recorder.waitFor(t, events.KindSpeechDone, 100)
	h.waitForState(t, TurnStateListening)
}

func TestPauseDucksAndResumeListens(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	ack, err := h.orchestrator.PauseListening()
	if err != nil || ack != ackListeningPaused {
		t.Fatalf("expected %q, got %q (%v)", ackListeningPaused, ack, err)
	}
	if got := h.orchestrator.TurnState(); got != TurnStateDucked {
		t.Fatalf("expected ducked after pause, got %s", got)
	}
	if h.recognizer.isListening() {
		t.Fatalf("expected recognizer to stop while paused")
	}
	if !h.focus.isDucked() {
		t.Fatalf("expected output to stay ducked while paused")
	}

	h.orchestrator.Speak("Paused.", false)
	h.waitForState(t, TurnStateSpeaking)
	h.synthesizer.completeNext()
	h.waitForState(t, TurnStateDucked)

	ack, err = h.orchestrator.ResumeListening()
	if err != nil || ack != ackListeningResumed {
		t.Fatalf("expected %q, got %q (%v)", ackListeningResumed, ack, err)
	}
	if got := h.orchestrator.TurnState(); got != TurnStateListening {
		t.Fatalf("expected listening after resume, got %s", got)
	}
}

func TestRepeatedRecognitionErrorsGoIdleUntilNextCommand(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	for i := 1; i <= maxConsecutiveRecognitionErrors; i++ {
		h.recognizer.fail(errors.New("stream reset"))
		h.recorder.waitFor(t, events.KindRecognitionFailed, i)
		if i < maxConsecutiveRecognitionErrors {
			waitForCondition(t, 2*time.Second, "recognizer restart", func() bool {
				return h.recognizer.startCount() == i+1
			})
		}
	}

	h.waitForState(t, TurnStateIdle)
	failed := h.recorder.waitFor(t, events.KindEngineInitFailed, 1)[0].(events.EngineInitFailed)
	if !errors.Is(failed.Err, ErrEngineInit) {
		t.Fatalf("expected ErrEngineInit, got %v", failed.Err)
	}

	if _, err := h.orchestrator.CancelConfirmation(false); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if got := h.orchestrator.TurnState(); got != TurnStateListening {
		t.Fatalf("expected the next command to retry recognition, got %s", got)
	}
	if got := h.recorder.count(events.KindEngineInitFailed); got != 1 {
		t.Fatalf("expected the failure to be reported once, got %d", got)
	}
}

func TestEngineInitFailureIsReportedOnceAndRetried(t *testing.T) {
	h := newTestHarness(t)
	h.recognizer.setStartErr(errors.New("model missing"))
	h.start(t)

	if got := h.orchestrator.TurnState(); got != TurnStateIdle {
		t.Fatalf("expected idle after a failed start, got %s", got)
	}
	h.recorder.waitFor(t, events.KindEngineInitFailed, 1)

	if _, err := h.orchestrator.CancelConfirmation(false); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if got := h.recorder.count(events.KindEngineInitFailed); got != 1 {
		t.Fatalf("expected one failure report, got %d", got)
	}

	h.recognizer.setStartErr(nil)
	if _, err := h.orchestrator.CancelConfirmation(false); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if got := h.orchestrator.TurnState(); got != TurnStateListening {
		t.Fatalf("expected the retry to start listening, got %s", got)
	}
}

func TestPermissionDeniedKeepsRecognitionInertUntilGranted(t *testing.T) {
	h := newTestHarness(t)
	h.recognizer.setStartErr(fmt.Errorf("microphone: %w", speechtotext.ErrPermissionDenied))
	h.start(t)

	denied := h.recorder.waitFor(t, events.KindPermissionDenied, 1)[0].(events.PermissionDenied)
	if !errors.Is(denied.Err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", denied.Err)
	}
	if got := h.orchestrator.TurnState(); got != TurnStateIdle {
		t.Fatalf("expected idle while permission is denied, got %s", got)
	}

	h.recognizer.setStartErr(nil)
	if _, err := h.orchestrator.CancelConfirmation(false); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if got := h.orchestrator.TurnState(); got != TurnStateIdle {
		t.Fatalf("expected recognition to stay inert, got %s", got)
	}

	h.orchestrator.GrantPermission()
	h.waitForState(t, TurnStateListening)
	h.recorder.waitFor(t, events.KindPermissionGranted, 1)
}

func TestStopServiceClosesSubscribersAfterLastEvent(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)
	stream, _ := h.orchestrator.Subscribe(16)

	ack, err := h.orchestrator.StopService()
	if err != nil || ack != ackServiceStopped {
		t.Fatalf("expected %q, got %q (%v)", ackServiceStopped, ack, err)
	}

	var last events.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-stream:
			if !ok {
				if last == nil || last.Kind() != events.KindServiceStopped {
					t.Fatalf("expected service stopped to be the last event, got %v", last)
				}
				if got := h.orchestrator.TurnState(); got != TurnStateIdle {
					t.Fatalf("expected idle after stop, got %s", got)
				}
				return
			}
			last = event
		case <-timeout:
			t.Fatalf("timed out waiting for the stream to close")
		}
	}
}

func TestStopServiceCancelsPendingTimers(t *testing.T) {
	h := newTestHarness(t, WithVoiceCaptureWindow(30*time.Millisecond))
	h.start(t)
	h.confirm(t, ConfirmationRequest{ConfirmationText: "Note?", PositiveCommand: "yes", NegativeCommand: "no", VoiceInput: true})
	h.recognizer.say("call mom")
	h.recorder.waitFor(t, events.KindConfirmationVoiceInputCaptured, 1)

	if _, err := h.orchestrator.StopService(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	spokenAtStop := len(h.synthesizer.spokenTexts())

	time.Sleep(100 * time.Millisecond)
	if got := len(h.synthesizer.spokenTexts()); got != spokenAtStop {
		t.Fatalf("expected nothing to be spoken after stop, got %d new utterances", got-spokenAtStop)
	}
	if _, ok := h.orchestrator.Session(); ok {
		t.Fatalf("expected no session after stop")
	}
}

func TestServiceCanBeRestarted(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)
	if _, err := h.orchestrator.StopService(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	h.start(t)

	if got := h.orchestrator.TurnState(); got != TurnStateListening {
		t.Fatalf("expected listening after restart, got %s", got)
	}
}

func TestCancellingStartContextStopsService(t *testing.T) {
	h := newTestHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := h.orchestrator.StartService(ctx); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	cancel()
	h.recorder.waitFor(t, events.KindServiceStopped, 1)
	h.waitForState(t, TurnStateIdle)
}

func TestSetSpeakerAppliesToLaterUtterances(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	h.orchestrator.SetSpeaker(1.2, 0)
	h.orchestrator.Speak("Faster.", false)
	waitForCondition(t, 2*time.Second, "utterance", func() bool {
		return h.synthesizer.activeCount() == 1
	})

	voice := h.synthesizer.lastRequest().Voice
	if voice.Pitch != 1.2 || voice.Rate != 1 {
		t.Fatalf("expected pitch 1.2 and default rate, got %+v", voice)
	}
}

func TestVolumeStepsReachFocusController(t *testing.T) {
	h := newTestHarness(t)
	if err := h.orchestrator.LowerVolume(); err != nil {
		t.Fatalf("expected lower to succeed, got %v", err)
	}

	h.start(t)
	if err := h.orchestrator.RaiseVolume(); err != nil {
		t.Fatalf("expected raise to succeed, got %v", err)
	}
	if err := h.orchestrator.RaiseVolume(); err != nil {
		t.Fatalf("expected raise to succeed, got %v", err)
	}

	h.focus.mu.Lock()
	defer h.focus.mu.Unlock()
	if h.focus.volume != 1 {
		t.Fatalf("expected net volume step 1, got %d", h.focus.volume)
	}
}

func TestCallbacksReceiveTypedEvents(t *testing.T) {
	results := make(chan events.ConfirmationResult, 1)
	transitions := make(chan TurnState, 16)
	h := newTestHarness(t,
		WithConfirmationResultCallback(func(result events.ConfirmationResult, err error) {
			results <- result
		}),
		WithTurnStateCallback(func(from, to TurnState) {
			transitions <- to
		}),
	)
	h.start(t)

	select {
	case state := <-transitions:
		if state != TurnStateListening {
			t.Fatalf("expected first transition to listening, got %s", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for turn state callback")
	}

	h.confirm(t, lightsRequest)
	h.recognizer.say("yes")

	select {
	case result := <-results:
		if !result.Succeeded {
			t.Fatalf("expected a successful result, got %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for result callback")
	}
}

func TestCloseIsIdempotentAndRejectsStart(t *testing.T) {
	h := newTestHarness(t)
	h.start(t)

	h.orchestrator.Close()
	h.orchestrator.Close()

	if _, err := h.orchestrator.StartService(context.Background()); err == nil {
		t.Fatalf("expected start after close to fail")
	}
}

func assertTransitions(t *testing.T, recorder *eventRecorder, want []string) {
	t.Helper()

	recorder.waitFor(t, events.KindTurnStateChanged, len(want))
	var got []string
	for _, event := range recorder.ofKind(events.KindTurnStateChanged) {
		changed := event.(events.TurnStateChanged)
		got = append(got, changed.From+">"+changed.To)
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
}
