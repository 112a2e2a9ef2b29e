package shopify

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken indicates the access token was rejected
var ErrInvalidToken = errors.New("invalid or revoked Shopify access token")

// ErrRateLimited indicates the API answered HTTP 429
var ErrRateLimited = errors.New("shopify API rate limit exceeded")

// ErrThrottled indicates a GraphQL THROTTLED error (query cost budget exhausted)
var ErrThrottled = errors.New("shopify GraphQL query throttled")

// ErrMalformedResponse indicates a body that is not the expected JSON shape
var ErrMalformedResponse = errors.New("malformed Shopify response")

// ServerError represents a 5xx error from the Shopify API
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("Shopify server error: HTTP %d", e.StatusCode)
}

// StatusError is any other unexpected HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// GraphQLError carries the errors[] payload of a response.
type GraphQLError struct {
	Messages []string
	Codes    []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// FatalFetchError is returned by the fetcher once it gives up on a request,
// either because retries ran out or because the cause was not retryable.
type FatalFetchError struct {
	Attempts  int
	Transient bool
	Err       error
}

func (e *FatalFetchError) Error() string {
	if e.Transient {
		return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *FatalFetchError) Unwrap() error {
	return e.Err
}

// Exhausted reports whether the error came from running out of retries.
func (e *FatalFetchError) Exhausted() bool {
	return e.Transient
}
