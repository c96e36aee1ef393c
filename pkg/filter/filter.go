// Package filter provides identification filtering
package filter

import (
	"fmt"
	"math"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

// OnePercentFDR is the q-value threshold used for "filtered" results.
const OnePercentFDR = 0.01

// Config holds filtering configuration
type Config struct {
	MaxQValue      float64 // Keep only identifications at or below this q-value (0 = no limit)
	MinProbability float64 // Keep only identifications at or above this probability (0 = no cutoff)
	ExcludeDecoys  bool    // Drop decoy identifications
}

// Validate checks the thresholds are usable.
func (c *Config) Validate() error {
	if c.MaxQValue < 0 || c.MaxQValue > 1 || math.IsNaN(c.MaxQValue) {
		return fmt.Errorf("q-value threshold must be within [0, 1], got %v", c.MaxQValue)
	}
	if c.MinProbability < 0 || c.MinProbability > 1 || math.IsNaN(c.MinProbability) {
		return fmt.Errorf("probability cutoff must be within [0, 1], got %v", c.MinProbability)
	}
	return nil
}

// Enabled reports whether any criterion is configured.
func (c *Config) Enabled() bool {
	return c.MaxQValue > 0 || c.MinProbability > 0 || c.ExcludeDecoys
}

// Passes reports whether a single identification passes all configured filters
func (c *Config) Passes(id *core.Identification) bool {
	if c.ExcludeDecoys && id.IsDecoy {
		return false
	}
	if c.MaxQValue > 0 && id.QValue > c.MaxQValue {
		return false
	}
	if c.MinProbability > 0 && id.Probability < c.MinProbability {
		return false
	}
	return true
}

// Apply returns the identifications passing all configured filters, in input order.
// The input slice is not modified.
func (c *Config) Apply(ids []*core.Identification) []*core.Identification {
	if !c.Enabled() {
		out := make([]*core.Identification, len(ids))
		copy(out, ids)
		return out
	}

	var filtered []*core.Identification
	for _, id := range ids {
		if c.Passes(id) {
			filtered = append(filtered, id)
		}
	}
	return filtered
}
