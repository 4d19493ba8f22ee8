package orchestration

import (
	"errors"

	"github.com/koscakluka/ema-voiceloop/core/speechtotext"
)

var (
	// ErrEngineInit is reported when a recognition or speech engine could not
	// be started. Recognition is retried on the next command.
	ErrEngineInit = errors.New("speech engine failed to initialize")
	// ErrPermissionDenied keeps recognition inert until permission is granted
	// again.
	ErrPermissionDenied = speechtotext.ErrPermissionDenied
	// ErrNoConfirmationInProgress is carried by input that referenced a
	// confirmation while none was active.
	ErrNoConfirmationInProgress = errors.New("no confirmation in progress")
	// ErrRetryExhausted is attached to a failed confirmation result.
	ErrRetryExhausted = errors.New("confirmation retries exhausted")
	// ErrConfirmationBusy rejects a confirmation request while another one is
	// unresolved.
	ErrConfirmationBusy = errors.New("confirmation already in progress")
	// ErrIncompleteIntent rejects a confirmation request with a missing
	// required field.
	ErrIncompleteIntent = errors.New("confirmation text, positive and negative commands are required")
	// ErrServiceNotStarted is returned by commands sent while the service is
	// stopped.
	ErrServiceNotStarted = errors.New("speech listener service not started")

	errTurnBusy = errors.New("speaking turn in progress")
)

// isPermissionError reports whether err should make recognition inert.
func isPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
