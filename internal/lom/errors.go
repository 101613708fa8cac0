package lom

import "errors"

// Error kinds the poller and write service dispatch on. Callers match these
// with errors.Is; the wrapped error carries the detail.
var (
	// ErrUnreachable covers connection refusals, DNS failures and resets.
	ErrUnreachable = errors.New("controller unreachable")

	// ErrTimeout marks a request that exceeded its deadline. The request is
	// reported failed, never cancelled-and-retried within the same call.
	ErrTimeout = errors.New("request timed out")

	// ErrAuthRejected marks a 401/403 after the digest handshake.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrNotFound marks a 404 from the controller.
	ErrNotFound = errors.New("endpoint not found")

	// ErrServer marks a 5xx or otherwise unexpected status.
	ErrServer = errors.New("controller error")

	// ErrMalformed marks a response body that is neither the JSON value list
	// nor a scrapable legacy HTML page.
	ErrMalformed = errors.New("malformed response")
)
