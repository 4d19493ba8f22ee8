package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ackServiceStarted        = "Started Speech listener service."
	ackServiceStopped        = "Stopped Speech listener service."
	ackConfirmationCancelled = "Confirmation cancelled."
	ackNoConfirmation        = "No confirmation in progress."
	ackListeningResumed      = "Speech listener resumed."
	ackListeningPaused       = "Speech listener paused."
)

var errOrchestratorClosed = errors.New("orchestrator closed")

// Orchestrator is the command surface of the voice loop. Every method is
// safe for concurrent use; state changes are applied in order on the
// runtime goroutine started by StartService.
type Orchestrator struct {
	speechToText *speechToText
	textToSpeech *textToSpeech
	audioInput   *audioInput
	audioFocus   *audioFocus

	settings     protocolSettings
	voice        texttospeech.VoiceSettings
	callbacks    eventCallbacks
	onInputAudio func(audio []byte)

	emitter   *resultEmitter
	turnState atomic.Int32

	runtime   *voiceRuntime
	closed    bool
	closeOnce sync.Once
	mu        sync.Mutex
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		speechToText: newSpeechToText(nil),
		textToSpeech: newTextToSpeech(nil),
		audioInput:   newAudioInput(nil),
		audioFocus:   newAudioFocus(nil),
		settings:     defaultProtocolSettings(),
		voice:        texttospeech.DefaultVoiceSettings(),
		emitter:      newResultEmitter(),
	}
	o.turnState.Store(int32(TurnStateIdle))

	for _, opt := range opts {
		opt(o)
	}

	if !o.callbacks.isEmpty() {
		o.emitter.addSink(newCallbackEventSink(o.callbacks))
	}

	return o
}

// StartService starts listening. ctx bounds the whole run: cancelling it
// stops the service.
func (o *Orchestrator) StartService(ctx context.Context) (string, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", errOrchestratorClosed
	}
	runtime := o.runtime
	if runtime == nil || runtime.isClosed() {
		runtime = newVoiceRuntime(ctx, o)
		runtime.startCapture = func() { o.startCapture(runtime) }
		o.runtime = runtime
		runtime.start()

		go func() {
			select {
			case <-ctx.Done():
				o.stopRuntime(runtime)
			case <-runtime.done:
			}
		}()
	}
	o.mu.Unlock()

	reply := make(chan commandResult, 1)
	ack, err := call(runtime, startServiceInput{command{reply}}, reply)
	if err != nil {
		return "", err
	}

	o.startCapture(runtime)
	return ack, nil
}

// StopService stops listening and speaking, drops any confirmation and
// closes the channels returned by Subscribe. It is safe in any state.
func (o *Orchestrator) StopService() (string, error) {
	o.stopRuntime(o.currentRuntime())
	return ackServiceStopped, nil
}

func (o *Orchestrator) stopRuntime(runtime *voiceRuntime) {
	if runtime == nil {
		return
	}

	if err := o.audioInput.stop(); err != nil {
		recordedErr := fmt.Errorf("failed to stop audio input: %w", err)
		span := trace.SpanFromContext(runtime.baseContext)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
	}

	reply := make(chan commandResult, 1)
	if _, err := call(runtime, stopServiceInput{command{reply}}, reply); err != nil {
		return
	}
	runtime.end()
	runtime.waitUntilEnded()
	o.emitter.closeSubscribers()

	o.mu.Lock()
	if o.runtime == runtime {
		o.runtime = nil
	}
	o.mu.Unlock()
}

// ConfirmIntent starts a confirmation. It fails with ErrIncompleteIntent when
// a required field is empty and with ErrConfirmationBusy while another
// confirmation is unresolved.
func (o *Orchestrator) ConfirmIntent(request ConfirmationRequest) (string, error) {
	if err := request.Validate(); err != nil {
		return "", err
	}

	reply := make(chan commandResult, 1)
	return call(o.currentRuntime(), confirmIntentInput{command: command{reply}, request: request}, reply)
}

func (o *Orchestrator) CancelConfirmation(immediate bool) (string, error) {
	reply := make(chan commandResult, 1)
	return call(o.currentRuntime(), cancelConfirmationInput{command: command{reply}, immediate: immediate}, reply)
}

func (o *Orchestrator) ResumeListening() (string, error) {
	reply := make(chan commandResult, 1)
	return call(o.currentRuntime(), resumeListeningInput{command{reply}}, reply)
}

func (o *Orchestrator) PauseListening() (string, error) {
	reply := make(chan commandResult, 1)
	return call(o.currentRuntime(), pauseListeningInput{command{reply}}, reply)
}

// Speak queues text behind anything already being spoken, or replaces it
// when queue is false.
func (o *Orchestrator) Speak(text string, queue bool) {
	mode := texttospeech.QueueFlush
	if queue {
		mode = texttospeech.QueueAdd
	}
	if !o.currentRuntime().post(speakInput{text: text, mode: mode}) {
		logger.Warn("dropping speech request", "error", ErrServiceNotStarted)
	}
}

// SetSpeaker sets pitch and rate multipliers for later utterances.
func (o *Orchestrator) SetSpeaker(pitch, rate float64) {
	voice := normalizeVoice(texttospeech.VoiceSettings{Pitch: pitch, Rate: rate})

	o.mu.Lock()
	o.voice = voice
	o.mu.Unlock()

	o.currentRuntime().post(setSpeakerInput{voice: voice})
}

func (o *Orchestrator) LowerVolume() error { return o.adjustVolume(false) }
func (o *Orchestrator) RaiseVolume() error { return o.adjustVolume(true) }

func (o *Orchestrator) adjustVolume(raise bool) error {
	runtime := o.currentRuntime()
	if runtime == nil {
		if raise {
			return o.audioFocus.raise()
		}
		return o.audioFocus.lower()
	}

	reply := make(chan commandResult, 1)
	_, err := call(runtime, volumeInput{command: command{reply}, raise: raise}, reply)
	return err
}

// GrantPermission tells the loop that a previously denied permission was
// granted, re-arming recognition.
func (o *Orchestrator) GrantPermission() {
	o.currentRuntime().post(grantPermissionInput{})
}

func (o *Orchestrator) TurnState() TurnState {
	return TurnState(o.turnState.Load())
}

// Session returns a copy of the current confirmation, if any.
func (o *Orchestrator) Session() (ConfirmationSession, bool) {
	runtime := o.currentRuntime()
	reply := make(chan *ConfirmationSession, 1)
	if !runtime.post(sessionSnapshotInput{reply: reply}) {
		return ConfirmationSession{}, false
	}

	select {
	case session := <-reply:
		if session == nil {
			return ConfirmationSession{}, false
		}
		return *session, true
	case <-runtime.done:
		return ConfirmationSession{}, false
	}
}

// Subscribe returns a channel of every later event. The channel is closed
// when the service stops or cancel is called. Events are dropped for a
// subscriber that falls buffer events behind.
func (o *Orchestrator) Subscribe(buffer int) (<-chan events.Event, func()) {
	return o.emitter.subscribe(buffer)
}

// Close stops the service and releases the engines.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()

		o.stopRuntime(o.currentRuntime())
		o.emitter.close()

		if err := o.audioInput.close(); err != nil {
			logger.Warn("failed to close audio input", "error", err)
		}
		if err := o.speechToText.close(); err != nil {
			logger.Warn("failed to close speech recognizer", "error", err)
		}
		if err := o.textToSpeech.close(); err != nil {
			logger.Warn("failed to close speech synthesizer", "error", err)
		}
	})
}

func (o *Orchestrator) currentRuntime() *voiceRuntime {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runtime
}

func (o *Orchestrator) startCapture(runtime *voiceRuntime) {
	o.audioInput.start(runtime.baseContext, o.forwardInputAudio, func(err error) {
		runtime.post(captureFailedInput{err: err})
	})
}

func (o *Orchestrator) forwardInputAudio(audio []byte) {
	if o.onInputAudio != nil {
		o.onInputAudio(audio)
	}
	o.speechToText.sendAudio(audio)
}

// call posts a command and waits for the runtime to answer it.
func call(runtime *voiceRuntime, in input, reply <-chan commandResult) (string, error) {
	if !runtime.post(in) {
		return "", ErrServiceNotStarted
	}

	select {
	case result := <-reply:
		return result.ack, result.err
	case <-runtime.done:
		select {
		case result := <-reply:
			return result.ack, result.err
		default:
			return "", ErrServiceNotStarted
		}
	}
}

func normalizeVoice(voice texttospeech.VoiceSettings) texttospeech.VoiceSettings {
	if voice.Pitch <= 0 {
		voice.Pitch = 1
	}
	if voice.Rate <= 0 {
		voice.Rate = 1
	}
	return voice
}
