package orchestrator

// Publisher emits TranscriptEvents onto the message bus. Publish must
// be safe for concurrent use by many sessions at once; it is
// non-blocking best-effort (spec.md §4.5) — implementations retry
// internally with bounded back-off and drop the event past the
// window, never returning an error that should abort the session.
type Publisher interface {
	Publish(event TranscriptEvent) error
	DroppedEvents() int64
}
