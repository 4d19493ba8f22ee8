package events

const (
	// KindConfirmationRequested identifies creation of a confirmation session.
	KindConfirmationRequested Kind = "confirmation.requested"
	// KindConfirmationVoiceInputCaptured identifies a captured free-form reply.
	KindConfirmationVoiceInputCaptured Kind = "confirmation.voice_input_captured"
	// KindConfirmationResolved identifies the terminal confirmation result.
	KindConfirmationResolved Kind = "confirmation.resolved"
	// KindConfirmationCancelled identifies host cancellation of a session.
	KindConfirmationCancelled Kind = "confirmation.cancelled"
	// KindNoConfirmationInProgress identifies input that found no session.
	KindNoConfirmationInProgress Kind = "confirmation.none"
)

// ConfirmationResult is the immutable outcome of one confirmation session.
type ConfirmationResult struct {
	SessionID          string
	OriginalText       string
	MatchedReply       string
	VoiceInputCaptured string
	Succeeded          bool
}

// ConfirmationRequested carries the parameters of a new session.
type ConfirmationRequested struct {
	Base
	SessionID        string
	ConfirmationText string
	PositiveCommand  string
	NegativeCommand  string
	VoiceInputPrompt string
	WantsVoiceInput  bool
}

// NewConfirmationRequested creates a confirmation requested event.
func NewConfirmationRequested(sessionID, confirmationText, positiveCommand, negativeCommand, voiceInputPrompt string, wantsVoiceInput bool) ConfirmationRequested {
	return ConfirmationRequested{
		Base:             NewBase(KindConfirmationRequested),
		SessionID:        sessionID,
		ConfirmationText: confirmationText,
		PositiveCommand:  positiveCommand,
		NegativeCommand:  negativeCommand,
		VoiceInputPrompt: voiceInputPrompt,
		WantsVoiceInput:  wantsVoiceInput,
	}
}

// ConfirmationVoiceInputCaptured carries the captured free-form reply.
type ConfirmationVoiceInputCaptured struct {
	Base
	SessionID string
	Text      string
}

// NewConfirmationVoiceInputCaptured creates a voice input captured event.
func NewConfirmationVoiceInputCaptured(sessionID, text string) ConfirmationVoiceInputCaptured {
	return ConfirmationVoiceInputCaptured{Base: NewBase(KindConfirmationVoiceInputCaptured), SessionID: sessionID, Text: text}
}

// ConfirmationResolved carries the terminal result of a session. Err is set
// when the session failed.
type ConfirmationResolved struct {
	Base
	Result ConfirmationResult
	Err    error
}

// NewConfirmationResolved creates a confirmation resolved event.
func NewConfirmationResolved(result ConfirmationResult, err error) ConfirmationResolved {
	return ConfirmationResolved{Base: NewBase(KindConfirmationResolved), Result: result, Err: err}
}

// ConfirmationCancelled marks a session cancelled before it resolved.
type ConfirmationCancelled struct {
	Base
	SessionID string
	Immediate bool
}

// NewConfirmationCancelled creates a confirmation cancelled event.
func NewConfirmationCancelled(sessionID string, immediate bool) ConfirmationCancelled {
	return ConfirmationCancelled{Base: NewBase(KindConfirmationCancelled), SessionID: sessionID, Immediate: immediate}
}

// NoConfirmationInProgress is the empty terminal result for input that
// referenced a session while none existed. Text is the utterance, if any.
type NoConfirmationInProgress struct {
	Base
	Text string
	Err  error
}

// NewNoConfirmationInProgress creates a no confirmation in progress event.
func NewNoConfirmationInProgress(text string, err error) NoConfirmationInProgress {
	return NoConfirmationInProgress{Base: NewBase(KindNoConfirmationInProgress), Text: text, Err: err}
}
