package domain

import "errors"

var (
	// ErrTransientNetwork marks navigation failures that survived the capability's own retries.
	ErrTransientNetwork = errors.New("transient network failure")
	// ErrAuthFailed is returned when every login attempt failed.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrRateLimited marks the error banner shown by the search page while throttled.
	ErrRateLimited = errors.New("rate limited")
	// ErrExtraction marks a card that could not be turned into a record.
	ErrExtraction = errors.New("record extraction failed")
)

// ErrorClass names the taxonomy bucket of err for logging.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransientNetwork):
		return "transient_network"
	case errors.Is(err, ErrAuthFailed):
		return "session_auth_failure"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrExtraction):
		return "extraction_failure"
	}
	return "unclassified"
}
