package chat

import "errors"

// Error taxonomy for one streaming call. Errors surfaced from Begin are
// pre-stream: nothing has been relayed to the client and the transport
// may answer with a plain HTTP status. Errors from Call.Stream are
// mid-stream: output has already begun flowing and they must be
// delivered as a terminal stream event.
var (
	// ErrInvalidModel means the requested model tier is not in the
	// static table. Fails before any persistence or network call.
	ErrInvalidModel = errors.New("invalid model")

	// ErrInvalidMode means the conversation's stored mode is not one of
	// the known modes. Fails before any persistence or network call.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrUpstream means the provider call failed, either on open or
	// mid-stream. No assistant message is persisted; the committed user
	// message remains.
	ErrUpstream = errors.New("upstream provider error")

	// ErrPersistence means a store write failed before streaming began.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotSaved means the reply streamed fully to the client but the
	// final write failed. The client saw content that is not durable;
	// this must be surfaced distinctly so the user can be warned.
	ErrNotSaved = errors.New("reply streamed but not saved")
)
