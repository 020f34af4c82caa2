package ports

import (
	"context"

	"github.com/flowtonehq/flowtone/internal/domain/focus"
	"github.com/flowtonehq/flowtone/internal/domain/routing"
)

// RuleStoragePort persists routing rules. Rule order is significant and must
// survive round trips.
type RuleStoragePort interface {
	SaveRule(ctx context.Context, rule *routing.Rule) error
	GetRule(ctx context.Context, id string) (*routing.Rule, error)
	ListRules(ctx context.Context) ([]*routing.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	// ReplaceRules swaps the full ordered rule list atomically.
	ReplaceRules(ctx context.Context, rules []*routing.Rule) error
}

// PolicyStoragePort persists the focus policy. A missing policy is not an
// error; LoadPolicy reports absence through its second return value.
type PolicyStoragePort interface {
	SavePolicy(ctx context.Context, policy focus.Policy) error
	LoadPolicy(ctx context.Context) (focus.Policy, bool, error)
}

// PreferenceStoragePort is a small key-value store for user preferences
// such as the last used ambient prompt pair. Absent keys return ok=false.
type PreferenceStoragePort interface {
	SetPreference(ctx context.Context, key, value string) error
	GetPreference(ctx context.Context, key string) (string, bool, error)
	DeletePreference(ctx context.Context, key string) error
}
