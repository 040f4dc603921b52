package requestcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"sundial-hq/aperture/pkg/upstream"
)

// fingerprintPayload is the canonical projection of a request used for
// cache identity. Only fields that change the upstream answer participate;
// volatile metadata such as client identity or arrival time must never
// appear here, or equivalent requests stop deduplicating.
type fingerprintPayload struct {
	Model    string                     `json:"model"`
	Messages []upstream.Message         `json:"messages"`
	Params   *upstream.GenerationParams `json:"params,omitempty"`
}

// Fingerprint derives the stable cache key for a generation request: the
// SHA-256 digest of the canonical JSON projection, hex encoded. Two
// requests with identical model, messages and generation parameters
// always produce the same fingerprint regardless of field ordering at the
// transport layer.
func Fingerprint(req *upstream.GenerationRequest) (string, error) {
	payload := fingerprintPayload{
		Model:    req.Model,
		Messages: req.Messages,
	}
	if !req.Params.IsZero() {
		params := req.Params
		payload.Params = &params
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
