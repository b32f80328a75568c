package domain

import "errors"

var (
	// ErrMissingIdentity signals a document record without its URL key.
	// This is a programming-contract violation, not a data-quality problem.
	ErrMissingIdentity = errors.New("document record missing url identity")
	// ErrRelevanceProviderError signals a failed relevance-ranker call.
	// The core has no safe default semantic score, so this surfaces upstream.
	ErrRelevanceProviderError = errors.New("relevance provider error")
	// ErrModelUnavailable signals a cascade model that could not be loaded.
	ErrModelUnavailable = errors.New("cascade model unavailable")
)
