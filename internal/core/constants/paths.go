package constants

const (
	PathV1ChatCompletions = "/v1/chat/completions"
	PathV1Completions     = "/v1/completions"
	PathV1Embeddings      = "/v1/embeddings"
	PathHealth            = "/internal/health"
	PathStatus            = "/internal/status"
	PathVersion            = "/internal/version"
)

// Header names the front door reads/sets per request.
const (
	HeaderRequestID        = "X-Request-Id"
	HeaderRequestTimeoutMs = "X-Request-Timeout-Ms"
	HeaderRequestElapsedMs = "X-Request-Elapsed-Ms"
	HeaderRequestRemainMs  = "X-Request-Remaining-Ms"
)
