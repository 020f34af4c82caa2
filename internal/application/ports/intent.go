package ports

import "context"

// IntentKind classifies a free-form steering utterance.
type IntentKind string

const (
	IntentSteerMusic IntentKind = "steer_music"
	IntentBlock      IntentKind = "block"
	IntentUnblock    IntentKind = "unblock"
	IntentUnknown    IntentKind = "unknown"
)

// Intent is the structured result of classifying a steering utterance.
type Intent struct {
	Kind IntentKind

	// Prompt is the musical direction for steer_music intents.
	Prompt string

	// Targets holds app names or domains for block/unblock intents.
	Targets []string
}

// BlockContext carries the current blocked lists along with a
// classification request, so the backend can resolve references like
// "unblock that site again".
type BlockContext struct {
	BlockedApps    []string
	BlockedDomains []string
}

// ClassifierPort turns free-form user text into a structured intent via a
// language-model backend.
type ClassifierPort interface {
	Classify(ctx context.Context, input string, blockCtx BlockContext) (Intent, error)
}
