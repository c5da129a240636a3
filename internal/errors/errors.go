// Package errors defines the sentinel error kinds classified in the
// control plane's error-handling design. Call sites wrap these with
// fmt.Errorf("...: %w", ...) so callers can still use errors.Is.
package errors

import "errors"

// Is is re-exported so callers only need to import this package.
var Is = errors.Is

// New is re-exported for constructing ad-hoc errors alongside the
// sentinels below.
var New = errors.New

var (
	// NotFound indicates a requested entity does not exist. Audit code
	// treats this as benign; an API layer would map it to 404.
	NotFound = errors.New("not found")

	// BadRequest indicates a validation failure on strategy create/apply.
	BadRequest = errors.New("bad request")

	// EndpointNotSupported indicates a driver has no binding for the
	// requested endpoint type.
	EndpointNotSupported = errors.New("endpoint not supported")

	// EndpointNotReachable indicates driver I/O repeatedly failed for a
	// sync pass; the pass must abort.
	EndpointNotReachable = errors.New("endpoint not reachable")

	// SyncRequestTimeout indicates a sync handler call exceeded its
	// deadline; the request is retried.
	SyncRequestTimeout = errors.New("sync request timeout")

	// SyncRequestFailedRetry indicates a sync handler call failed in a way
	// that should still be retried.
	SyncRequestFailedRetry = errors.New("sync request failed, will retry")

	// SyncRequestFailed indicates a sync handler call failed fatally; the
	// request is marked failed without further retries.
	SyncRequestFailed = errors.New("sync request failed")

	// OrchRequestNotFound indicates a concurrent delete raced a worker's
	// attempt to transition an OrchRequest. Workers treat it as a skip.
	OrchRequestNotFound = errors.New("orch request not found")
)
