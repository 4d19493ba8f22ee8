package speechtotext

import "errors"

var (
	// ErrPermissionDenied means the recognizer was refused access, either to
	// the microphone or to the recognition service.
	ErrPermissionDenied = errors.New("recognition permission denied")
	// ErrNotListening is returned when audio is sent outside a listening turn.
	ErrNotListening = errors.New("recognizer is not listening")
)
