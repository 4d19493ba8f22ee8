package events

const (
	// KindRecognizedText identifies an utterance delivered to free listening.
	KindRecognizedText Kind = "recognition.text"
	// KindRecognitionFailed identifies a recognizer error while listening.
	KindRecognitionFailed Kind = "recognition.failed"
)

// RecognizedText carries an utterance that no confirmation consumed.
type RecognizedText struct {
	Base
	Text    string
	Partial bool
}

// NewRecognizedText creates a final recognized text event.
func NewRecognizedText(text string) RecognizedText {
	return RecognizedText{Base: NewBase(KindRecognizedText), Text: text}
}

// NewPartialRecognizedText creates an interim recognized text event.
func NewPartialRecognizedText(text string) RecognizedText {
	return RecognizedText{Base: NewBase(KindRecognizedText), Text: text, Partial: true}
}

// RecognitionFailed carries a recognizer error.
type RecognitionFailed struct {
	Base
	Err error
}

// NewRecognitionFailed creates a recognition failed event.
func NewRecognitionFailed(err error) RecognitionFailed {
	return RecognitionFailed{Base: NewBase(KindRecognitionFailed), Err: err}
}
