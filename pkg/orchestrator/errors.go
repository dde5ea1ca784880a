package orchestrator

import "errors"

var (
	// ErrCallNotEnabled is logged when a tailer exits because its call
	// is no longer present in the EnabledSet.
	ErrCallNotEnabled = errors.New("call is not enabled for transcription")

	// ErrStreamIdle marks a stream whose file has not been modified
	// within the configured idle timeout.
	ErrStreamIdle = errors.New("stream idle timeout exceeded")

	// ErrRecognizerUnavailable wraps a recognizer failure: a session
	// that cannot be created, or an error on a single frame.
	ErrRecognizerUnavailable = errors.New("recognizer session unavailable")

	// ErrPublishDropped marks an event dropped after the publisher's
	// bounded retry window was exhausted.
	ErrPublishDropped = errors.New("event dropped after publish retries exhausted")

	// ErrNilProvider guards against constructing a component with a
	// required collaborator missing.
	ErrNilProvider = errors.New("required provider is nil")

	// ErrMaxStreamsReached marks a deferred tailer start under the
	// configured concurrency ceiling.
	ErrMaxStreamsReached = errors.New("maximum concurrent tailers reached")

	// ErrMalformedFilename marks a file skipped by the scanner because
	// its basename could not be parsed into a callId.
	ErrMalformedFilename = errors.New("filename does not match expected call naming convention")
)
