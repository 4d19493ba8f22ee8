package orchestration

import (
	"context"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
)

const (
	DefaultAcknowledgement = "Okay."
	DefaultFailureNotice   = "Sorry, I could not confirm that."
)

type protocolSettings struct {
	maxTries        int
	captureWindow   time.Duration
	cooldown        time.Duration
	acknowledgement string
	failureNotice   string
}

func defaultProtocolSettings() protocolSettings {
	return protocolSettings{
		maxTries:        DefaultMaxTries,
		captureWindow:   DefaultVoiceCaptureWindow,
		cooldown:        DefaultCooldown,
		acknowledgement: DefaultAcknowledgement,
		failureNotice:   DefaultFailureNotice,
	}
}

type utteranceDisposition int

const (
	// utteranceConsumed means the confirmation protocol took the utterance.
	utteranceConsumed utteranceDisposition = iota
	// utteranceFree means a resolved session is cooling down and the
	// utterance belongs to the free listening stream.
	utteranceFree
	// utteranceWithoutSession means no confirmation exists at all.
	utteranceWithoutSession
)

// confirmationProtocol drives a ConfirmationSession through
// voice input capture, confirmation and cooldown. It is owned by the runtime
// goroutine.
type confirmationProtocol struct {
	session  *ConfirmationSession
	holding  bool
	settings protocolSettings

	turns  *turnCoordinator
	timers *sessionTimers
	emit   eventEmitter
}

func newConfirmationProtocol(settings protocolSettings, turns *turnCoordinator, timers *sessionTimers, emit eventEmitter) *confirmationProtocol {
	if emit == nil {
		emit = noopEventEmitter
	}
	return &confirmationProtocol{settings: settings, turns: turns, timers: timers, emit: emit}
}

func (p *confirmationProtocol) start(ctx context.Context, request ConfirmationRequest) (string, error) {
	if err := request.Validate(); err != nil {
		return "", err
	}
	if p.session != nil && !p.session.IsResolved() {
		return "", ErrConfirmationBusy
	}
	p.clear()

	session := newConfirmationSession(request, p.settings.maxTries)
	p.session = session
	p.emit(events.NewConfirmationRequested(
		session.ID,
		session.ConfirmationText,
		session.PositiveCommand,
		session.NegativeCommand,
		session.VoiceInputPrompt,
		session.WantsVoiceInput,
	))
	p.speak(ctx, session.ConfirmationText)

	return request.acknowledgement(), nil
}

func (p *confirmationProtocol) onUtterance(ctx context.Context, utterance string) utteranceDisposition {
	session := p.session
	if session == nil {
		return utteranceWithoutSession
	}

	switch session.Phase {
	case PhaseAwaitingVoiceInput:
		if session.captureVoiceReply(utterance) {
			p.emit(events.NewConfirmationVoiceInputCaptured(session.ID, session.VoiceReply))
			p.holding = true
			p.turns.setHeld(true)
			p.turns.settle(ctx)
			p.timers.schedule(timerCaptureWindow, session.ID, p.settings.captureWindow)
		}
		return utteranceConsumed
	case PhaseAwaitingConfirmation:
		p.evaluate(ctx, session, utterance)
		return utteranceConsumed
	default:
		return utteranceFree
	}
}

func (p *confirmationProtocol) evaluate(ctx context.Context, session *ConfirmationSession, utterance string) {
	if token, ok := session.match(utterance); ok {
		session.MatchedReply = token
		session.Succeeded = true
		p.speak(ctx, p.settings.acknowledgement)
		p.resolve(session, nil)
		return
	}

	if session.recordMismatch() {
		p.speak(ctx, p.settings.failureNotice)
		p.resolve(session, ErrRetryExhausted)
	}
}

func (p *confirmationProtocol) resolve(session *ConfirmationSession, err error) {
	if advanceErr := session.advance(PhaseResolved); advanceErr != nil {
		logger.Warn("confirmation resolved twice", "session_id", session.ID, "error", advanceErr)
		return
	}
	p.emit(events.NewConfirmationResolved(session.result(), err))
	p.timers.schedule(timerCooldown, session.ID, p.settings.cooldown)
}

func (p *confirmationProtocol) onTimer(ctx context.Context, fired timerFiredInput) {
	if !p.timers.claim(fired) {
		return
	}
	session := p.session
	if session == nil || session.ID != fired.sessionID {
		return
	}

	switch fired.kind {
	case timerCaptureWindow:
		if err := session.advance(PhaseAwaitingConfirmation); err != nil {
			logger.Warn("capture window elapsed out of phase", "session_id", session.ID, "error", err)
			return
		}
		p.release()
		p.speak(ctx, session.confirmationPrompt())
		p.turns.settle(ctx)
	case timerCooldown:
		p.session = nil
	}
}

// cancel implements cancelConfirmation. An immediate cancel clears the
// session and interrupts speech in the same step; otherwise the session is
// resolved as cancelled and cleared by the cooldown.
func (p *confirmationProtocol) cancel(ctx context.Context, immediate bool) string {
	session := p.session
	if session == nil {
		p.emit(events.NewNoConfirmationInProgress("", ErrNoConfirmationInProgress))
		return ackNoConfirmation
	}

	if immediate {
		if !session.IsResolved() {
			session.Cancelled = true
			p.emit(events.NewConfirmationCancelled(session.ID, true))
		}
		p.clear()
		p.turns.interrupt()
		p.turns.settle(ctx)
		return ackConfirmationCancelled
	}

	if session.IsResolved() {
		p.timers.shorten(timerCooldown, p.settings.cooldown)
		return ackConfirmationCancelled
	}

	session.Cancelled = true
	_ = session.advance(PhaseResolved)
	p.timers.cancel(timerCaptureWindow)
	if p.holding {
		p.release()
		p.turns.settle(ctx)
	}
	p.emit(events.NewConfirmationCancelled(session.ID, false))
	p.timers.schedule(timerCooldown, session.ID, p.settings.cooldown)
	return ackConfirmationCancelled
}

// clear drops the session and its timers. The caller settles the turn.
func (p *confirmationProtocol) clear() {
	p.timers.cancelAll()
	p.release()
	p.session = nil
}

func (p *confirmationProtocol) release() {
	if p.holding {
		p.holding = false
		p.turns.setHeld(false)
	}
}

func (p *confirmationProtocol) speak(ctx context.Context, text string) {
	if _, err := p.turns.requestSpeak(ctx, text, texttospeech.QueueFlush); err != nil {
		logger.Warn("failed to speak confirmation prompt", "error", err)
	}
}

// snapshot returns a deep copy of the session that is safe to hand out.
func (p *confirmationProtocol) snapshot() (ConfirmationSession, bool) {
	if p.session == nil {
		return ConfirmationSession{}, false
	}

	var snapshot ConfirmationSession
	if err := copier.CopyWithOption(&snapshot, p.session, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to copy confirmation session", "session_id", p.session.ID, "error", err)
		return ConfirmationSession{}, false
	}
	return snapshot, true
}
