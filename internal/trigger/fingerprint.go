package trigger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
)

// NormalizedConfig is the canonical form of a trigger's semantic
// configuration. Slices are sorted so client-submitted ordering never
// influences identity.
type NormalizedConfig struct {
	SourceConfig SourceConfig
	Targets      Targets
}

// Normalize produces the canonical form of sourceConfig and targets. The
// inputs are not mutated.
func Normalize(sourceConfig SourceConfig, targets Targets) NormalizedConfig {
	norm := NormalizedConfig{
		SourceConfig: sourceConfig,
		Targets:      Targets{RepositoryIDs: sortedCopy(targets.RepositoryIDs)},
	}
	if sourceConfig.Webhook != nil {
		norm.SourceConfig.Webhook = &WebhookConfig{
			EventTypes: sortedCopy(sourceConfig.Webhook.EventTypes),
		}
	}
	return norm
}

// fingerprintPayload fixes the serialization key order. Struct fields encode
// in declaration order, which is what makes the digest stable.
type fingerprintPayload struct {
	SourceType   SourceType     `json:"sourceType"`
	SourceConfig SourceConfig   `json:"sourceConfig"`
	Targets      Targets        `json:"targets"`
	OutputType   OutputType     `json:"outputType"`
	Window       LookbackWindow `json:"lookbackWindow"`
}

// Fingerprint digests the semantic configuration of a trigger into a stable
// hex-encoded 256-bit hash. Two triggers with the same source, repositories
// (regardless of input order), output, and window collide to the same hash.
//
// Create and update paths must call this identically; any divergence breaks
// the per-organization uniqueness invariant.
func Fingerprint(sourceType SourceType, norm NormalizedConfig, outputType OutputType, window LookbackWindow) (string, error) {
	payload := fingerprintPayload{
		SourceType:   sourceType,
		SourceConfig: norm.SourceConfig,
		Targets:      norm.Targets,
		OutputType:   outputType,
		Window:       window,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serialize fingerprint payload: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func sortedCopy(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
