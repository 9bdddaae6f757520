package pester

import "errors"

// ErrNotFound is the error returned by store lookups for records that do not exist.
var ErrNotFound = errors.New("not found")

// ErrRateLimited is the error that delivery attempts surface when the chat
// gateway reports HTTP 429. It is the only error the delivery queue retries.
var ErrRateLimited = errors.New("rate limited")

// ValidationError reports malformed arguments to a ThreadStore mutation.
type ValidationError string

func (e ValidationError) Error() string { return "validation: " + string(e) }

// IntegrityError reports a post-write verification mismatch in a ThreadStore:
// the value read back from the durable medium did not match what was written.
type IntegrityError string

func (e IntegrityError) Error() string { return "integrity: " + string(e) }
