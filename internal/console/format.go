package console

import (
	"fmt"

	"github.com/koscakluka/ema-voiceloop/core/events"
)

// describeEvent renders an event as one log line. Partial transcripts are
// skipped.
func describeEvent(event events.Event) (string, bool) {
	switch event := event.(type) {
	case events.ServiceStarted:
		return "service started", true
	case events.ServiceStopped:
		return "service stopped", true
	case events.TurnStateChanged:
		return fmt.Sprintf("turn %s -> %s", event.From, event.To), true

	case events.ConfirmationRequested:
		return fmt.Sprintf("confirming %q (%s / %s)", event.ConfirmationText, event.PositiveCommand, event.NegativeCommand), true
	case events.ConfirmationVoiceInputCaptured:
		return fmt.Sprintf("captured %q", event.Text), true
	case events.ConfirmationResolved:
		if event.Err != nil {
			return fmt.Sprintf("confirmation failed: %v", event.Err), true
		}
		verdict := "declined"
		if event.Result.Succeeded {
			verdict = "confirmed"
		}
		return fmt.Sprintf("%s %q with %q", verdict, event.Result.OriginalText, event.Result.MatchedReply), true
	case events.ConfirmationCancelled:
		if event.Immediate {
			return "confirmation cancelled now", true
		}
		return "confirmation cancelled", true
	case events.NoConfirmationInProgress:
		return fmt.Sprintf("no confirmation for %q", event.Text), true

	case events.RecognizedText:
		if event.Partial {
			return "", false
		}
		return fmt.Sprintf("heard %q", event.Text), true
	case events.RecognitionFailed:
		return fmt.Sprintf("recognition failed: %v", event.Err), true

	case events.SpeechStarted:
		return "speaking", true
	case events.SpeechDone:
		return "speech done", true
	case events.SpeechFailed:
		return fmt.Sprintf("speech failed: %v", event.Err), true

	case events.EngineInitFailed:
		return fmt.Sprintf("%s failed to start: %v", event.Engine, event.Err), true
	case events.PermissionDenied:
		return fmt.Sprintf("%s needs audio permission, type grant once allowed", event.Engine), true
	case events.PermissionGranted:
		return "audio permission granted", true

	default:
		return string(event.Kind()), true
	}
}
