package keypool

import (
	"context"
	"log/slog"

	"sundial-hq/aperture/pkg/upstream"
)

// Outcome is the three-way result of a credential probe.
type Outcome int

const (
	// OutcomeValid means the upstream accepted the credential.
	OutcomeValid Outcome = iota

	// OutcomeInvalid means the upstream rejected the credential itself.
	// Invalid is a permanent classification.
	OutcomeInvalid

	// OutcomeUnknown means the probe could not reach a verdict, for
	// example a network failure or upstream outage. Unknown never marks
	// a credential invalid.
	OutcomeUnknown
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "unrecognized"
	}
}

// Validator probes credentials against the upstream API with a cheap
// capability request and classifies the result.
type Validator struct {
	client upstream.Client
	logger *slog.Logger
}

// NewValidator creates a validator backed by the given upstream client.
func NewValidator(client upstream.Client, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		client: client,
		logger: logger.With("component", "validator"),
	}
}

// Validate probes a single credential. Only an auth-class rejection
// produces OutcomeInvalid; rate limits, network failures and upstream
// errors all map to OutcomeUnknown so a degraded upstream cannot poison
// the invalid set.
func (v *Validator) Validate(ctx context.Context, credential string) Outcome {
	err := v.client.Probe(ctx, credential)
	if err == nil {
		return OutcomeValid
	}

	if upstream.IsAuthError(err) {
		v.logger.Warn("credential rejected by upstream",
			"credential", Redact(credential),
			"error", err,
		)
		return OutcomeInvalid
	}

	v.logger.Debug("credential probe inconclusive",
		"credential", Redact(credential),
		"error", err,
	)
	return OutcomeUnknown
}
