package sources

import "errors"

var (
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrRateLimitExceeded indicates that a rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidResponse indicates an invalid response from the source.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrAPIKeyRequired indicates that an API key is required.
	ErrAPIKeyRequired = errors.New("API key is required")
	// ErrUnknownSource indicates an unregistered source name.
	ErrUnknownSource = errors.New("unknown source")
	// ErrNoQuotesInResponse indicates that the response carried no usable quotes.
	ErrNoQuotesInResponse = errors.New("no quotes in response")
)
