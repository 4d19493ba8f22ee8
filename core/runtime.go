package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// input is anything the runtime goroutine consumes from its mailbox.
type input interface {
	name() string
}

type commandResult struct {
	ack string
	err error
}

// command carries the reply channel of inputs issued through the
// Orchestrator API.
type command struct {
	reply chan<- commandResult
}

func (c command) respond(ack string, err error) {
	if c.reply == nil {
		return
	}
	select {
	case c.reply <- commandResult{ack: ack, err: err}:
	default:
	}
}

type (
	startServiceInput struct{ command }
	stopServiceInput  struct{ command }

	confirmIntentInput struct {
		command
		request ConfirmationRequest
	}
	cancelConfirmationInput struct {
		command
		immediate bool
	}
	resumeListeningInput struct{ command }
	pauseListeningInput  struct{ command }
	volumeInput          struct {
		command
		raise bool
	}

	speakInput struct {
		text string
		mode texttospeech.QueueMode
	}
	setSpeakerInput struct {
		voice texttospeech.VoiceSettings
	}
	grantPermissionInput struct{}
	sessionSnapshotInput struct {
		reply chan<- *ConfirmationSession
	}

	speechStartedInput  struct{ utteranceID string }
	speechFinishedInput struct {
		utteranceID string
		err         error
	}
	recognizedInput struct {
		text       string
		partial    bool
		generation uint64
	}
	recognitionErrorInput struct {
		err        error
		generation uint64
	}
	captureFailedInput struct{ err error }
	timerFiredInput    struct {
		kind       timerKind
		sessionID  string
		generation uint64
	}
)

func (startServiceInput) name() string       { return "start service" }
func (stopServiceInput) name() string        { return "stop service" }
func (confirmIntentInput) name() string      { return "confirm intent" }
func (cancelConfirmationInput) name() string { return "cancel confirmation" }
func (resumeListeningInput) name() string    { return "resume listening" }
func (pauseListeningInput) name() string     { return "pause listening" }
func (volumeInput) name() string             { return "adjust volume" }
func (speakInput) name() string              { return "speak" }
func (setSpeakerInput) name() string         { return "set speaker" }
func (grantPermissionInput) name() string    { return "grant permission" }
func (sessionSnapshotInput) name() string    { return "session snapshot" }
func (speechStartedInput) name() string      { return "speech started" }
func (speechFinishedInput) name() string     { return "speech finished" }
func (recognizedInput) name() string         { return "recognized" }
func (recognitionErrorInput) name() string   { return "recognition error" }
func (captureFailedInput) name() string      { return "capture failed" }
func (in timerFiredInput) name() string      { return in.kind.String() + " elapsed" }

// isHostCommand reports inputs that count as "the next command" for lazily
// retrying a failed engine.
func isHostCommand(in input) bool {
	switch in.(type) {
	case confirmIntentInput, cancelConfirmationInput, resumeListeningInput,
		pauseListeningInput, speakInput, setSpeakerInput, volumeInput:
		return true
	default:
		return false
	}
}

type queuedInput struct {
	input    input
	queuedAt time.Time
}

// mailbox is an unbounded FIFO. Engines may call back synchronously from
// inside a call made by the runtime goroutine, so posting must never block.
type mailbox struct {
	items  []queuedInput
	closed bool
	ready  chan struct{}
	mu     sync.Mutex
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) push(in input) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, queuedInput{input: in, queuedAt: time.Now()})
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) take() []queuedInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// voiceRuntime is one run of the service, from StartService to StopService.
// All coordinator, protocol and timer state lives on its goroutine.
type voiceRuntime struct {
	baseContext context.Context
	cancel      context.CancelFunc

	turns    *turnCoordinator
	protocol *confirmationProtocol
	timers   *sessionTimers
	emit     eventEmitter

	// startCapture (re)starts audio capture; it is idempotent.
	startCapture func()

	mailbox *mailbox
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once
	started   atomic.Bool
}

// newVoiceRuntime must be called with o.mu held.
func newVoiceRuntime(ctx context.Context, o *Orchestrator) *voiceRuntime {
	ctx, cancel := context.WithCancel(ctx)
	runtime := &voiceRuntime{
		baseContext:  ctx,
		cancel:       cancel,
		emit:         o.emitter.emit,
		startCapture: func() {},
		mailbox:      newMailbox(),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
	}

	runtime.timers = newSessionTimers(runtime.post)
	runtime.turns = newTurnCoordinator(turnCoordinatorConfig{
		recognizer:   o.speechToText,
		synthesizer:  o.textToSpeech,
		focus:        o.audioFocus,
		encodingInfo: o.audioInput.encodingInfo(),
		voice:        o.voice,
		post:         runtime.post,
		emit:         runtime.emit,
		onStateChanged: func(state TurnState) {
			o.turnState.Store(int32(state))
		},
	})
	runtime.protocol = newConfirmationProtocol(o.settings, runtime.turns, runtime.timers, runtime.emit)
	return runtime
}

func (r *voiceRuntime) start() {
	r.startOnce.Do(func() {
		if r.isClosed() {
			return
		}

		r.started.Store(true)
		go func() {
			defer close(r.done)
			for {
				select {
				case <-r.closeCh:
					return
				case <-r.mailbox.ready:
					for _, item := range r.mailbox.take() {
						if r.isClosed() {
							return
						}
						r.process(item)
					}
				}
			}
		}()
	})
}

func (r *voiceRuntime) end() {
	r.endOnce.Do(func() {
		r.mailbox.close()
		close(r.closeCh)
		r.cancel()
	})
}

func (r *voiceRuntime) waitUntilEnded() {
	if r.started.Load() {
		<-r.done
	}
}

func (r *voiceRuntime) isClosed() bool {
	select {
	case <-r.closeCh:
		return true
	default:
		return false
	}
}

// post queues an input for the runtime goroutine. It is safe from any
// goroutine, including engine callbacks.
func (r *voiceRuntime) post(in input) bool {
	if r == nil || r.isClosed() {
		return false
	}
	return r.mailbox.push(in)
}

func (r *voiceRuntime) process(item queuedInput) {
	ctx, span := tracer.Start(r.baseContext, "voiceloop."+strings.ReplaceAll(item.input.name(), " ", "_"))
	defer span.End()

	queuedTime := time.Since(item.queuedAt).Seconds()
	span.SetAttributes(
		attribute.Float64("voiceloop.queued_time", queuedTime),
		attribute.Int("voiceloop.queued_inputs", r.mailbox.len()),
	)

	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("%s input panicked: %v", item.input.name(), recovered)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("voice loop input panicked", "input", item.input.name(), "error", err)
			if responder, ok := item.input.(interface{ respond(string, error) }); ok {
				responder.respond("", err)
			}
		}
	}()

	if isHostCommand(item.input) && r.turns.failed {
		r.startCapture()
		r.turns.retryFailed(ctx)
	}

	if err := r.handle(ctx, item.input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("voiceloop.turn_state", r.turns.state.String()))
}

func (r *voiceRuntime) handle(ctx context.Context, in input) error {
	switch in := in.(type) {
	case startServiceInput:
		if !r.turns.running {
			r.emit(events.NewServiceStarted())
		}
		r.turns.start(ctx)
		in.respond(ackServiceStarted, nil)

	case stopServiceInput:
		r.protocol.clear()
		r.turns.stop()
		r.emit(events.NewServiceStopped())
		in.respond(ackServiceStopped, nil)

	case confirmIntentInput:
		ack, err := r.protocol.start(ctx, in.request)
		in.respond(ack, err)
		return err

	case cancelConfirmationInput:
		in.respond(r.protocol.cancel(ctx, in.immediate), nil)

	case resumeListeningInput:
		r.startCapture()
		r.turns.resume(ctx)
		in.respond(ackListeningResumed, nil)

	case pauseListeningInput:
		r.turns.pause(ctx)
		in.respond(ackListeningPaused, nil)

	case volumeInput:
		var err error
		if in.raise {
			err = r.turns.focus.raise()
		} else {
			err = r.turns.focus.lower()
		}
		in.respond("", err)
		return err

	case speakInput:
		if _, err := r.turns.requestSpeak(ctx, in.text, in.mode); err != nil {
			return fmt.Errorf("failed to speak: %w", err)
		}

	case setSpeakerInput:
		r.turns.setVoice(in.voice)

	case grantPermissionInput:
		r.startCapture()
		r.turns.grantPermission(ctx)

	case sessionSnapshotInput:
		if snapshot, ok := r.protocol.snapshot(); ok {
			in.reply <- &snapshot
		} else {
			in.reply <- nil
		}

	case speechStartedInput:
		r.turns.onSpeechStarted(in.utteranceID)

	case speechFinishedInput:
		r.turns.onSpeechFinished(ctx, in.utteranceID, in.err)

	case recognizedInput:
		r.onRecognized(ctx, in)

	case recognitionErrorInput:
		r.turns.onRecognitionError(ctx, in.generation, in.err)
		return in.err

	case captureFailedInput:
		r.turns.onCaptureFailed(ctx, in.err)
		return in.err

	case timerFiredInput:
		r.protocol.onTimer(ctx, in)

	default:
		return fmt.Errorf("unknown input %T", in)
	}

	return nil
}

// onRecognized routes an utterance to the confirmation protocol, or to the
// free listening stream when no session takes it.
func (r *voiceRuntime) onRecognized(ctx context.Context, in recognizedInput) {
	if !r.turns.acceptsRecognition(in.generation) {
		return
	}
	text := strings.TrimSpace(in.text)
	if text == "" {
		return
	}

	if in.partial {
		if r.protocol.session == nil || r.protocol.session.IsResolved() {
			r.emit(events.NewPartialRecognizedText(text))
		}
		return
	}

	r.turns.onRecognized()
	switch r.protocol.onUtterance(ctx, text) {
	case utteranceFree:
		r.emit(events.NewRecognizedText(text))
	case utteranceWithoutSession:
		r.emit(events.NewRecognizedText(text))
		r.emit(events.NewNoConfirmationInProgress(text, ErrNoConfirmationInProgress))
	}
}
