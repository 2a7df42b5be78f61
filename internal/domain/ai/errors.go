package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrEmptyCompletion is returned when the provider answered without any choice.
var ErrEmptyCompletion = errors.New("ai returned no choices")
