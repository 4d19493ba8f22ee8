// Package events defines the typed voice loop event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - service.*
//   - recognition.*
//   - speech.*
//   - confirmation.*
//   - turn_state.*
//   - engine.*
//
// recognition events
//
//   - RecognizedText (recognition.text): an utterance heard while no
//     confirmation consumed it. Partial marks an interim result.
//   - RecognitionFailed (recognition.failed): the recognizer reported an
//     error while listening. Listening is resumed.
//
// speech events
//
//   - SpeechStarted (speech.started): the synthesizer started an utterance.
//   - SpeechDone (speech.done): an utterance finished playing.
//   - SpeechFailed (speech.failed): an utterance failed. Listening is resumed
//     exactly as after SpeechDone.
//
// confirmation events
//
//   - ConfirmationRequested (confirmation.requested): a session was created.
//   - ConfirmationVoiceInputCaptured (confirmation.voice_input_captured): the
//     free-form reply was captured.
//   - ConfirmationResolved (confirmation.resolved): terminal result, emitted
//     once per session.
//   - ConfirmationCancelled (confirmation.cancelled): an unresolved session
//     was cancelled by the host.
//   - NoConfirmationInProgress (confirmation.none): an utterance or a cancel
//     arrived while no session existed.
//
// turn_state events
//
//   - TurnStateChanged (turn_state.changed): the coordinator moved between
//     idle, listening, speaking and ducked.
//
// engine events
//
//   - EngineInitFailed (engine.init_failed): an engine could not start. It is
//     retried on the next command.
//   - PermissionDenied (engine.permission_denied): audio capture is not
//     permitted. Recognition stays inert until permission is granted.
//   - PermissionGranted (engine.permission_granted): recognition was re-armed.
//
// Every event converts to a flat Payload and back, see MarshalPayload and
// ParsePayload.
package events
