package trust

import "errors"

// Errors returned by the Evaluator. They are wrapped with context; match
// them with errors.Is.
var (
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrServiceUnavailable   = errors.New("decision service unavailable")
	ErrTimeout              = errors.New("timed out waiting for trust decision")
	ErrNotTrusted           = errors.New("certificate not trusted")
	ErrTransportFailure     = errors.New("transport failure")
)
