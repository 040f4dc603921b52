package upstream

import "context"

// Client is the contract the gateway core consumes for upstream calls.
// Implementations must classify failures into the package's error taxonomy:
// *AuthError for credential rejections, *RateLimitError for 429s, and
// *TransientError for everything temporary. The retry chain in the gateway
// branches on that classification, never on raw status codes.
//
// All methods accept a context.Context and must return promptly when it is
// cancelled.
type Client interface {
	// Generate performs one generation call with the given credential.
	Generate(ctx context.Context, credential string, req *GenerationRequest) (*GenerationResponse, error)

	// Probe performs a cheap upstream call with the given credential to
	// establish whether the upstream accepts it. A nil error means the
	// credential was unambiguously accepted.
	Probe(ctx context.Context, credential string) error

	// ListModels returns the model identifiers the upstream currently
	// serves for the given credential.
	ListModels(ctx context.Context, credential string) ([]string, error)

	// Endpoint returns the upstream variant name ("gemini" or "vertex").
	Endpoint() string

	// Close releases transport resources. The client must not be used
	// after Close.
	Close() error
}
