package events

const (
	// KindSpeechStarted identifies start of a synthesized utterance.
	KindSpeechStarted Kind = "speech.started"
	// KindSpeechDone identifies completion of a synthesized utterance.
	KindSpeechDone Kind = "speech.done"
	// KindSpeechFailed identifies failure of a synthesized utterance.
	KindSpeechFailed Kind = "speech.failed"
)

// SpeechStarted marks the start of an utterance.
type SpeechStarted struct {
	Base
	UtteranceID string
}

// NewSpeechStarted creates a speech started event.
func NewSpeechStarted(utteranceID string) SpeechStarted {
	return SpeechStarted{Base: NewBase(KindSpeechStarted), UtteranceID: utteranceID}
}

// SpeechDone marks completion of an utterance.
type SpeechDone struct {
	Base
	UtteranceID string
}

// NewSpeechDone creates a speech done event.
func NewSpeechDone(utteranceID string) SpeechDone {
	return SpeechDone{Base: NewBase(KindSpeechDone), UtteranceID: utteranceID}
}

// SpeechFailed marks a failed utterance.
type SpeechFailed struct {
	Base
	UtteranceID string
	Err         error
}

// NewSpeechFailed creates a speech failed event.
func NewSpeechFailed(utteranceID string, err error) SpeechFailed {
	return SpeechFailed{Base: NewBase(KindSpeechFailed), UtteranceID: utteranceID, Err: err}
}
