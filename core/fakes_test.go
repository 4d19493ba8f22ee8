package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/koscakluka/ema-voiceloop/core/speechtotext"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
)

type fakeRecognizer struct {
	listening bool
	starts    int
	stops     int
	startErr  error
	options   speechtotext.ListeningOptions
	audio     [][]byte

	// onStart runs before listening starts.
	onStart func()
	mu      sync.Mutex
}

func (r *fakeRecognizer) StartListening(_ context.Context, opts ...speechtotext.ListeningOption) error {
	if r.onStart != nil {
		r.onStart()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.listening = true
	r.starts++
	r.options = speechtotext.NewListeningOptions(opts...)
	return nil
}

func (r *fakeRecognizer) StopListening() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listening = false
	r.stops++
	return nil
}

func (r *fakeRecognizer) SendAudio(audio []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.listening {
		return speechtotext.ErrNotListening
	}
	r.audio = append(r.audio, audio)
	return nil
}

func (r *fakeRecognizer) setStartErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

func (r *fakeRecognizer) currentOptions() speechtotext.ListeningOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.options
}

// say delivers a final result the way an engine would, including after it
// was told to stop.
func (r *fakeRecognizer) say(text string) {
	options := r.currentOptions()
	if options.ResultCallback != nil {
		options.ResultCallback(text)
	}
}

// sayAfterStop delivers a late final result only when the engine is stopped,
// reporting whether it did.
func (r *fakeRecognizer) sayAfterStop(text string) bool {
	r.mu.Lock()
	listening := r.listening
	options := r.options
	r.mu.Unlock()
	if listening || options.ResultCallback == nil {
		return false
	}
	options.ResultCallback(text)
	return true
}

func (r *fakeRecognizer) partial(text string) {
	options := r.currentOptions()
	if options.PartialResultCallback != nil {
		options.PartialResultCallback(text)
	}
}

func (r *fakeRecognizer) fail(err error) {
	r.mu.Lock()
	r.listening = false
	options := r.options
	r.mu.Unlock()
	if options.ErrorCallback != nil {
		options.ErrorCallback(err)
	}
}

func (r *fakeRecognizer) isListening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

func (r *fakeRecognizer) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

type fakeSynthesizer struct {
	active   []texttospeech.SpeakOptions
	spoken   []string
	requests []texttospeech.SpeakOptions
	stops    int
	speakErr error
	// autoComplete finishes every utterance before Speak returns.
	autoComplete bool

	// onSpeak runs before an utterance is accepted.
	onSpeak func()
	mu      sync.Mutex
}

func (s *fakeSynthesizer) Speak(_ context.Context, text string, opts ...texttospeech.SpeakOption) error {
	if s.onSpeak != nil {
		s.onSpeak()
	}

	options := texttospeech.NewSpeakOptions(opts...)

	s.mu.Lock()
	if s.speakErr != nil {
		err := s.speakErr
		s.mu.Unlock()
		return err
	}
	var dropped []texttospeech.SpeakOptions
	if options.Mode == texttospeech.QueueFlush {
		dropped = s.active
		s.active = nil
	}
	s.active = append(s.active, options)
	s.spoken = append(s.spoken, text)
	s.requests = append(s.requests, options)
	autoComplete := s.autoComplete
	s.mu.Unlock()

	for _, utterance := range dropped {
		utterance.ErrorCallback(utterance.UtteranceID, texttospeech.ErrFlushed)
	}
	options.StartedCallback(options.UtteranceID)
	if autoComplete {
		s.completeNext()
	}
	return nil
}

func (s *fakeSynthesizer) Stop() error {
	s.mu.Lock()
	dropped := s.active
	s.active = nil
	s.stops++
	s.mu.Unlock()

	for _, utterance := range dropped {
		utterance.ErrorCallback(utterance.UtteranceID, texttospeech.ErrFlushed)
	}
	return nil
}

func (s *fakeSynthesizer) completeNext() bool {
	return s.finishNext(nil)
}

func (s *fakeSynthesizer) failNext(err error) bool {
	return s.finishNext(err)
}

func (s *fakeSynthesizer) finishNext(err error) bool {
	s.mu.Lock()
	if len(s.active) == 0 {
		s.mu.Unlock()
		return false
	}
	utterance := s.active[0]
	s.active = s.active[1:]
	s.mu.Unlock()

	if err != nil {
		utterance.ErrorCallback(utterance.UtteranceID, err)
	} else {
		utterance.DoneCallback(utterance.UtteranceID)
	}
	return true
}

func (s *fakeSynthesizer) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *fakeSynthesizer) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *fakeSynthesizer) lastRequest() texttospeech.SpeakOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return texttospeech.SpeakOptions{}
	}
	return s.requests[len(s.requests)-1]
}

func (s *fakeSynthesizer) setAutoComplete(autoComplete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoComplete = autoComplete
}

type fakeFocus struct {
	ducked   bool
	ducks    int
	restores int
	volume   int
	mu       sync.Mutex
}

func (f *fakeFocus) Duck() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ducked = true
	f.ducks++
	return nil
}

func (f *fakeFocus) Restore() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ducked = false
	f.restores++
	return nil
}

func (f *fakeFocus) Lower() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume--
	return nil
}

func (f *fakeFocus) Raise() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume++
	return nil
}

func (f *fakeFocus) isDucked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ducked
}

type eventRecorder struct {
	events []events.Event
	mu     sync.Mutex
}

func (r *eventRecorder) record(event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) ofKind(kind events.Kind) []events.Event {
	var matching []events.Event
	for _, event := range r.snapshot() {
		if event.Kind() == kind {
			matching = append(matching, event)
		}
	}
	return matching
}

func (r *eventRecorder) count(kind events.Kind) int {
	return len(r.ofKind(kind))
}

func (r *eventRecorder) waitFor(t *testing.T, kind events.Kind, count int) []events.Event {
	t.Helper()
	waitForCondition(t, 2*time.Second, "event "+string(kind), func() bool {
		return r.count(kind) >= count
	})
	return r.ofKind(kind)
}

type testHarness struct {
	orchestrator *Orchestrator
	recognizer   *fakeRecognizer
	synthesizer  *fakeSynthesizer
	focus        *fakeFocus
	recorder     *eventRecorder
}

func newTestHarness(t *testing.T, opts ...OrchestratorOption) *testHarness {
	t.Helper()

	h := &testHarness{
		recognizer:  &fakeRecognizer{},
		synthesizer: &fakeSynthesizer{},
		focus:       &fakeFocus{},
		recorder:    &eventRecorder{},
	}
	opts = append([]OrchestratorOption{
		WithSpeechRecognizer(h.recognizer),
		WithSpeechSynthesizer(h.synthesizer),
		WithAudioFocus(h.focus),
		WithEventSink(h.recorder.record),
	}, opts...)
	h.orchestrator = NewOrchestrator(opts...)
	t.Cleanup(h.orchestrator.Close)
	return h
}

func (h *testHarness) start(t *testing.T) {
	t.Helper()
	ack, err := h.orchestrator.StartService(context.Background())
	if err != nil {
		t.Fatalf("expected service to start, got %v", err)
	}
	if ack != ackServiceStarted {
		t.Fatalf("expected ack %q, got %q", ackServiceStarted, ack)
	}
}

func (h *testHarness) waitForState(t *testing.T, state TurnState) {
	t.Helper()
	waitForCondition(t, 2*time.Second, "turn state "+state.String(), func() bool {
		return h.orchestrator.TurnState() == state
	})
}

// confirm starts a confirmation and finishes speaking its prompt.
func (h *testHarness) confirm(t *testing.T, request ConfirmationRequest) {
	t.Helper()
	if _, err := h.orchestrator.ConfirmIntent(request); err != nil {
		t.Fatalf("expected confirmation to start, got %v", err)
	}
	waitForCondition(t, 2*time.Second, "confirmation prompt", func() bool {
		return h.synthesizer.activeCount() == 1
	})
	h.synthesizer.completeNext()
	h.waitForState(t, TurnStateListening)
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}
