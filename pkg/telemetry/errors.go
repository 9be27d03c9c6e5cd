package telemetry

import "errors"

// Every per-message failure wraps exactly one of these. None of them is fatal:
// the message is logged and dropped and the session carries on.
var (
	ErrMalformedTopic  = errors.New("malformed topic")
	ErrInvalidEncoding = errors.New("payload is not valid UTF-8")
	ErrInvalidPayload  = errors.New("payload is not a JSON object")
	ErrMissingField    = errors.New("required payload field missing")
	ErrUnknownRoute    = errors.New("unknown route")
	ErrWriteFailed     = errors.New("write failed")
)

var dropReasons = []struct {
	err    error
	reason string
}{
	{ErrMalformedTopic, "malformed_topic"},
	{ErrInvalidEncoding, "invalid_encoding"},
	{ErrInvalidPayload, "invalid_payload"},
	{ErrMissingField, "missing_field"},
	{ErrUnknownRoute, "unknown_route"},
	{ErrWriteFailed, "write_failed"},
}

// DropReason maps an error returned by this package to a short label suitable
// for logs and metrics. Errors from outside the taxonomy map to "unknown".
func DropReason(err error) string {
	for _, r := range dropReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "unknown"
}
