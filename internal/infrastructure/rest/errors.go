package rest

import "errors"

// Sentinel errors for data service operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, rest.ErrServerError) {
//	    // Server reachable but rejected the request
//	}
var (
	// ErrInvalidConfig indicates the client was constructed with an
	// unusable configuration (missing node ID or host).
	ErrInvalidConfig = errors.New("rest: invalid configuration")

	// ErrRequestFailed indicates the HTTP request could not be completed
	// (network fault, timeout, or malformed response).
	ErrRequestFailed = errors.New("rest: request failed")

	// ErrServerError indicates the server responded with a non-2xx status.
	ErrServerError = errors.New("rest: server error")

	// ErrEmptyDataset indicates a send or conversion was attempted with
	// no records.
	ErrEmptyDataset = errors.New("rest: empty dataset")
)
