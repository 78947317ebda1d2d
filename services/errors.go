package services

import "errors"

var (
	// ErrUnsupportedFormat means a document's extension has no extractor.
	// The registry marks such documents UNSUPPORTED instead of failing a run.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrClassification means the router could not get a usable category
	// for a question. There is no default category; the request fails.
	ErrClassification = errors.New("question classification failed")

	// ErrRegistryUnavailable means the document registry could not be read.
	// An indexing run cannot proceed without it.
	ErrRegistryUnavailable = errors.New("document registry unavailable")
)
