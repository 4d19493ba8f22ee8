package orchestration

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voiceloop/core/audio"
	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/koscakluka/ema-voiceloop/core/speechtotext"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
)

// TurnState is the single owner of the microphone/speaker pair.
type TurnState int32

const (
	// TurnStateIdle means nothing is listening or speaking: the service is
	// stopped, or recognition is held off.
	TurnStateIdle TurnState = iota
	TurnStateListening
	TurnStateSpeaking
	// TurnStateDucked means the host paused listening while the service keeps
	// running. Output stays ducked so resuming is instant.
	TurnStateDucked
)

func (s TurnState) String() string {
	switch s {
	case TurnStateIdle:
		return "idle"
	case TurnStateListening:
		return "listening"
	case TurnStateSpeaking:
		return "speaking"
	case TurnStateDucked:
		return "ducked"
	default:
		return fmt.Sprintf("TurnState(%d)", int32(s))
	}
}

// ParseTurnState is the inverse of TurnState.String.
func ParseTurnState(name string) (TurnState, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "idle":
		return TurnStateIdle, nil
	case "listening":
		return TurnStateListening, nil
	case "speaking":
		return TurnStateSpeaking, nil
	case "ducked":
		return TurnStateDucked, nil
	default:
		return TurnStateIdle, fmt.Errorf("unknown turn state %q", name)
	}
}

func (s TurnState) ducksOutput() bool {
	return s == TurnStateListening || s == TurnStateDucked
}

const (
	maxConsecutiveRecognitionErrors = 3

	engineRecognizer  = "recognizer"
	engineSynthesizer = "synthesizer"
	engineAudioInput  = "audio input"
)

// turnCoordinator serializes listening and speaking. It is owned by the
// runtime goroutine and must not be touched from anywhere else.
type turnCoordinator struct {
	state TurnState

	running bool
	// paused is set by the host through PauseListening.
	paused bool
	// held is set by the confirmation protocol during voice input capture.
	held bool
	// inert is set once permission was denied.
	inert bool
	// failed is set after an engine failure and cleared by the next command.
	failed            bool
	failureReported   bool
	recognitionErrors int

	// listenGeneration tags recognizer callbacks with the listening turn that
	// produced them.
	listenGeneration uint64
	// outstanding holds the utterances whose completion is still awaited, in
	// speaking order.
	outstanding []string
	voice       texttospeech.VoiceSettings

	recognizer   *speechToText
	synthesizer  *textToSpeech
	focus        *audioFocus
	encodingInfo audio.EncodingInfo

	post           func(input) bool
	emit           eventEmitter
	onStateChanged func(TurnState)
}

type turnCoordinatorConfig struct {
	recognizer     *speechToText
	synthesizer    *textToSpeech
	focus          *audioFocus
	encodingInfo   audio.EncodingInfo
	voice          texttospeech.VoiceSettings
	post           func(input) bool
	emit           eventEmitter
	onStateChanged func(TurnState)
}

func newTurnCoordinator(config turnCoordinatorConfig) *turnCoordinator {
	c := &turnCoordinator{
		state:          TurnStateIdle,
		voice:          config.voice,
		recognizer:     config.recognizer,
		synthesizer:    config.synthesizer,
		focus:          config.focus,
		encodingInfo:   config.encodingInfo,
		post:           config.post,
		emit:           config.emit,
		onStateChanged: config.onStateChanged,
	}
	if c.post == nil {
		c.post = func(input) bool { return false }
	}
	if c.emit == nil {
		c.emit = noopEventEmitter
	}
	if c.onStateChanged == nil {
		c.onStateChanged = func(TurnState) {}
	}
	if c.encodingInfo.IsZero() {
		c.encodingInfo = audio.GetDefaultEncodingInfo()
	}
	return c
}

func (c *turnCoordinator) transition(to TurnState) {
	from := c.state
	if from == to {
		return
	}

	if to.ducksOutput() && !from.ducksOutput() {
		c.focus.duck()
	} else if !to.ducksOutput() && from.ducksOutput() {
		c.focus.restore()
	}

	c.state = to
	c.onStateChanged(to)
	c.emit(events.NewTurnStateChanged(from.String(), to.String()))
}

// settle moves to the resting state for the current flags. It is the only
// way out of Speaking, so nothing is visited between the last utterance
// finishing and the next listening turn.
func (c *turnCoordinator) settle(ctx context.Context) {
	switch {
	case len(c.outstanding) > 0:
		c.transition(TurnStateSpeaking)
	case !c.running:
		c.stopRecognition()
		c.transition(TurnStateIdle)
	case c.paused:
		c.stopRecognition()
		c.transition(TurnStateDucked)
	case c.held || c.inert || c.failed || !c.recognizer.isConfigured():
		c.stopRecognition()
		c.transition(TurnStateIdle)
	default:
		_ = c.requestListen(ctx)
	}
}

func (c *turnCoordinator) start(ctx context.Context) {
	c.running = true
	c.paused = false
	c.inert = false
	c.failed = false
	c.settle(ctx)
}

func (c *turnCoordinator) stop() {
	c.running = false
	c.held = false
	c.outstanding = nil
	if err := c.synthesizer.stop(); err != nil {
		logger.Warn("failed to stop speech synthesizer", "error", err)
	}
	c.stopRecognition()
	c.transition(TurnStateIdle)
}

// requestListen starts a listening turn unless one of the flags forbids it.
// It reports errTurnBusy while utterances are outstanding.
func (c *turnCoordinator) requestListen(ctx context.Context) error {
	if len(c.outstanding) > 0 {
		return errTurnBusy
	}
	if c.state == TurnStateListening && c.recognizer.isListening() {
		return nil
	}

	c.listenGeneration++
	generation := c.listenGeneration
	err := c.recognizer.start(ctx,
		speechtotext.WithEncodingInfo(c.encodingInfo),
		speechtotext.WithResultCallback(func(transcript string) {
			c.post(recognizedInput{text: transcript, generation: generation})
		}),
		speechtotext.WithPartialResultCallback(func(transcript string) {
			c.post(recognizedInput{text: transcript, partial: true, generation: generation})
		}),
		speechtotext.WithErrorCallback(func(err error) {
			c.post(recognitionErrorInput{err: err, generation: generation})
		}),
	)
	if err != nil {
		c.recognitionUnavailable(engineRecognizer, err)
		return err
	}

	c.failed = false
	c.failureReported = false
	c.transition(TurnStateListening)
	return nil
}

func (c *turnCoordinator) stopRecognition() {
	if err := c.recognizer.stop(); err != nil {
		logger.Warn("failed to stop speech recognizer", "error", err)
	}
}

// recognitionUnavailable parks the coordinator in Idle after an engine
// fault. A permission fault makes recognition inert, anything else is
// retried on the next command.
func (c *turnCoordinator) recognitionUnavailable(engine string, err error) {
	c.stopRecognition()
	if isPermissionError(err) {
		c.inert = true
		c.emit(events.NewPermissionDenied(engine, err))
	} else {
		c.failed = true
		if !c.failureReported {
			c.failureReported = true
			c.emit(events.NewEngineInitFailed(engine, fmt.Errorf("%w: %w", ErrEngineInit, err)))
		}
	}
	if len(c.outstanding) == 0 {
		c.transition(TurnStateIdle)
	}
}

// retryFailed clears an engine failure so the next settle tries again.
func (c *turnCoordinator) retryFailed(ctx context.Context) {
	if !c.failed || !c.running {
		return
	}
	c.failed = false
	c.settle(ctx)
}

// requestSpeak hands text to the synthesizer. Recognition is stopped first.
// QueueFlush forgets every outstanding utterance so their late callbacks are
// ignored.
func (c *turnCoordinator) requestSpeak(ctx context.Context, text string, mode texttospeech.QueueMode) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("nothing to speak")
	}

	id := uuid.NewString()
	if !c.synthesizer.isConfigured() {
		err := fmt.Errorf("%w: no speech synthesizer configured", ErrEngineInit)
		c.emit(events.NewSpeechFailed(id, err))
		return "", err
	}

	c.stopRecognition()
	if mode == texttospeech.QueueFlush {
		c.outstanding = nil
	}
	c.outstanding = append(c.outstanding, id)
	c.transition(TurnStateSpeaking)

	err := c.synthesizer.speak(ctx, text,
		texttospeech.WithUtteranceID(id),
		texttospeech.WithQueueMode(mode),
		texttospeech.WithVoiceSettings(c.voice),
		texttospeech.WithStartedCallback(func(utteranceID string) {
			c.post(speechStartedInput{utteranceID: utteranceID})
		}),
		texttospeech.WithDoneCallback(func(utteranceID string) {
			c.post(speechFinishedInput{utteranceID: utteranceID})
		}),
		texttospeech.WithErrorCallback(func(utteranceID string, err error) {
			c.post(speechFinishedInput{utteranceID: utteranceID, err: err})
		}),
	)
	if err != nil {
		c.forget(id)
		c.emit(events.NewSpeechFailed(id, err))
		c.settle(ctx)
		return "", err
	}

	return id, nil
}

// interrupt drops every outstanding utterance and silences the synthesizer.
// The caller settles afterwards.
func (c *turnCoordinator) interrupt() {
	if len(c.outstanding) == 0 {
		return
	}
	c.outstanding = nil
	if err := c.synthesizer.stop(); err != nil {
		logger.Warn("failed to stop speech synthesizer", "error", err)
	}
}

func (c *turnCoordinator) forget(utteranceID string) bool {
	idx := slices.Index(c.outstanding, utteranceID)
	if idx < 0 {
		return false
	}
	c.outstanding = slices.Delete(c.outstanding, idx, idx+1)
	return true
}

func (c *turnCoordinator) onSpeechStarted(utteranceID string) {
	if slices.Contains(c.outstanding, utteranceID) {
		c.emit(events.NewSpeechStarted(utteranceID))
	}
}

// onSpeechFinished handles both done and error callbacks. Unknown, late and
// duplicate callbacks are ignored.
func (c *turnCoordinator) onSpeechFinished(ctx context.Context, utteranceID string, err error) {
	if !c.forget(utteranceID) {
		return
	}

	if err != nil {
		c.emit(events.NewSpeechFailed(utteranceID, err))
	} else {
		c.emit(events.NewSpeechDone(utteranceID))
	}

	if len(c.outstanding) == 0 {
		c.settle(ctx)
	}
}

// acceptsRecognition reports whether a result tagged with generation belongs
// to the listening turn that is still open.
func (c *turnCoordinator) acceptsRecognition(generation uint64) bool {
	return generation == c.listenGeneration && c.state == TurnStateListening
}

func (c *turnCoordinator) onRecognized() {
	c.recognitionErrors = 0
}

func (c *turnCoordinator) onRecognitionError(ctx context.Context, generation uint64, err error) {
	if generation != c.listenGeneration {
		return
	}
	c.recognizer.markStopped()
	c.emit(events.NewRecognitionFailed(err))
	if c.state != TurnStateListening {
		return
	}

	if isPermissionError(err) {
		c.recognitionUnavailable(engineRecognizer, err)
		return
	}

	c.recognitionErrors++
	if c.recognitionErrors >= maxConsecutiveRecognitionErrors {
		c.recognitionErrors = 0
		c.recognitionUnavailable(engineRecognizer, err)
		return
	}
	_ = c.requestListen(ctx)
}

func (c *turnCoordinator) onCaptureFailed(ctx context.Context, err error) {
	c.recognitionUnavailable(engineAudioInput, err)
	c.settle(ctx)
}

func (c *turnCoordinator) pause(ctx context.Context) {
	c.paused = true
	c.settle(ctx)
}

func (c *turnCoordinator) resume(ctx context.Context) {
	c.paused = false
	c.inert = false
	c.failed = false
	c.settle(ctx)
}

// setHeld holds recognition off without settling; callers settle or speak
// next.
func (c *turnCoordinator) setHeld(held bool) {
	c.held = held
}

func (c *turnCoordinator) grantPermission(ctx context.Context) {
	c.inert = false
	c.emit(events.NewPermissionGranted())
	if c.running {
		c.settle(ctx)
	}
}

func (c *turnCoordinator) setVoice(voice texttospeech.VoiceSettings) {
	c.voice = voice
}
