package ai

import "errors"

var (
	// ErrPromptTooLarge means the accumulated history no longer fits the
	// gateway input budget; the caller should start a new session.
	ErrPromptTooLarge = errors.New("prompt exceeds gateway input limit")

	// ErrGatewayUnavailable covers rate limits, open circuit and any other
	// non-timeout failure from the model service.
	ErrGatewayUnavailable = errors.New("model gateway unavailable")

	// ErrGatewayTimeout means the model service did not answer within the
	// configured request timeout.
	ErrGatewayTimeout = errors.New("model gateway timeout")

	// ErrGatewayStreamError means a stream failed after possibly having
	// emitted chunks already delivered to the caller.
	ErrGatewayStreamError = errors.New("model gateway stream error")
)
