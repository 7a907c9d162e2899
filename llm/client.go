// Package llm provides the narrow inference interface the assistant
// consumes: one call that turns an instruction and an input into text, and
// its streaming variant. The intent classifier and the answer generator
// both sit on this interface; everything about prompt mechanics lives in
// the callers.
package llm

import "context"

// Client is the inference collaborator. Implementations must fail
// explicitly when the backing service errors, returns an empty result, or
// times out — never silently return defaults.
type Client interface {
	// Infer sends the instruction as the system message and the input as
	// the user message, returning the full completion text.
	Infer(ctx context.Context, instruction, input string) (string, error)

	// Stream is Infer with incremental delivery: fn is called once per
	// content chunk, in order. A non-nil error from fn stops the stream
	// and is returned.
	Stream(ctx context.Context, instruction, input string, fn func(chunk string) error) error
}
