package texttospeech

import "errors"

var (
	// ErrFlushed is reported for utterances dropped by a flush or Stop.
	ErrFlushed = errors.New("utterance flushed")
	// ErrClosed is returned when speaking through a closed synthesizer.
	ErrClosed = errors.New("synthesizer closed")
)
