package constants

const (
	// ContextRequestIDKey is set by the front door for every inbound
	// request and threaded through to logging and the event bus.
	ContextRequestIDKey = "request_id"

	// ContextRequestTimeKey records when the request entered the front
	// door, used to compute X-Request-Elapsed-Ms.
	ContextRequestTimeKey = "request_time"

	// ContextDeadlineKey carries the resolved absolute deadline so
	// downstream components can compute X-Request-Remaining-Ms without
	// re-deriving it from headers.
	ContextDeadlineKey = "request_deadline"

	ContextModelKey  = "model"
	ContextStreamKey = "stream"
)
