// Package routing defines context-routing rules: user-edited mappings from
// observed applications and sites to musical profiles.
package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/flowtonehq/flowtone/internal/domain/focus"
)

// Rule maps a set of applications and domains to a musical prompt. Rules are
// evaluated in stored order; the first match wins.
type Rule struct {
	ID       string   `yaml:"id"`
	Label    string   `yaml:"label"`
	AppNames []string `yaml:"apps,omitempty"`
	Domains  []string `yaml:"domains,omitempty"`
	Prompt   string   `yaml:"prompt"`
}

// NewRule creates a rule with a generated ID.
func NewRule(label string, appNames, domains []string, prompt string) (*Rule, error) {
	r := &Rule{
		ID:       uuid.NewString(),
		Label:    label,
		AppNames: appNames,
		Domains:  domains,
		Prompt:   prompt,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that the rule is well-formed.
func (r *Rule) Validate() error {
	if r == nil {
		return errors.New("rule is nil")
	}

	var errs []error

	if r.Label == "" {
		errs = append(errs, errors.New("label is required"))
	}
	if r.Prompt == "" {
		errs = append(errs, errors.New("prompt is required"))
	}
	if len(r.AppNames) == 0 && len(r.Domains) == 0 {
		errs = append(errs, errors.New("at least one app name or domain is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Matches reports whether the rule applies to the given context: the app
// name matches case-insensitively, or the active host equals or is a
// subdomain of one of the rule's domains.
func (r *Rule) Matches(ctx focus.Context) bool {
	for _, app := range r.AppNames {
		if strings.EqualFold(app, ctx.AppName) {
			return true
		}
	}
	if ctx.ActiveHost != "" {
		for _, d := range r.Domains {
			if focus.HostMatchesDomain(ctx.ActiveHost, d) {
				return true
			}
		}
	}
	return false
}

// Set is an ordered, immutable snapshot of rules. Engines evaluate against a
// snapshot; user edits replace the whole snapshot.
type Set struct {
	rules []*Rule
}

// NewSet creates a rule set preserving the given order.
func NewSet(rules []*Rule) *Set {
	copied := make([]*Rule, len(rules))
	copy(copied, rules)
	return &Set{rules: copied}
}

// Match returns the first rule matching the context, or nil when none match.
func (s *Set) Match(ctx focus.Context) *Rule {
	if s == nil {
		return nil
	}
	for _, r := range s.rules {
		if r.Matches(ctx) {
			return r
		}
	}
	return nil
}

// Rules returns the rules in stored order.
func (s *Set) Rules() []*Rule {
	if s == nil {
		return nil
	}
	copied := make([]*Rule, len(s.rules))
	copy(copied, s.rules)
	return copied
}

// Len returns the number of rules in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Validate checks every rule in the set.
func (s *Set) Validate() error {
	var errs []error
	for i, r := range s.rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, r.Label, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
