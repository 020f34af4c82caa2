// Package prompt defines weighted prompts and the resolution of the three
// prompt sources (scheduler parameters, routed profile, user steering
// override) into one ordered list for the generation backend.
package prompt

import (
	"errors"

	"github.com/flowtonehq/flowtone/internal/domain/session"
)

// OverrideWeight is the fixed weight given to a user steering override. The
// override is appended last, so it dominates order-sensitive combination on
// the backend without erasing the ambient pair.
const OverrideWeight = 1.0

// Default ambient prompt texts for wave sessions.
const (
	DefaultCalmPrompt    = "calm ambient textures, slow evolving pads"
	DefaultIntensePrompt = "driving rhythmic focus, bright arpeggios"
)

// WeightedPrompt pairs a text description with its relative influence.
// Ordering within a list is significant and must be preserved on the wire.
type WeightedPrompt struct {
	Text   string
	Weight float64
}

// Validate checks that the prompt is well-formed.
func (p WeightedPrompt) Validate() error {
	if p.Text == "" {
		return errors.New("prompt text is required")
	}
	if p.Weight <= 0 {
		return errors.New("prompt weight must be positive")
	}
	return nil
}

// Resolution holds the inputs merged into one prompt list.
type Resolution struct {
	CalmPrompt    string
	IntensePrompt string
	Parameters    session.Parameters

	// Override is the active user steering prompt, empty when none.
	Override string

	// Routed is the prompt of the committed routing rule, empty when none.
	// A routed prompt replaces the ambient pair entirely.
	Routed string

	// Static is the free-play prompt; mutually exclusive with Routed.
	Static string
}

// Resolve merges the prompt sources into one ordered list. Base entries are
// the calm/intense ambient pair weighted by the current parameters; a routed
// or static prompt replaces the pair with a single full-weight entry; a user
// override is always appended last.
func Resolve(r Resolution) []WeightedPrompt {
	var prompts []WeightedPrompt

	switch {
	case r.Routed != "":
		prompts = append(prompts, WeightedPrompt{Text: r.Routed, Weight: 1})
	case r.Static != "":
		prompts = append(prompts, WeightedPrompt{Text: r.Static, Weight: 1})
	default:
		calm := r.CalmPrompt
		if calm == "" {
			calm = DefaultCalmPrompt
		}
		intense := r.IntensePrompt
		if intense == "" {
			intense = DefaultIntensePrompt
		}
		prompts = append(prompts,
			WeightedPrompt{Text: calm, Weight: r.Parameters.CalmWeight},
			WeightedPrompt{Text: intense, Weight: r.Parameters.IntenseWeight},
		)
	}

	if r.Override != "" {
		prompts = append(prompts, WeightedPrompt{Text: r.Override, Weight: OverrideWeight})
	}

	return prompts
}
