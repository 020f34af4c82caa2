package storage

import (
	"context"
	"path/filepath"
	"testing"

	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
	"github.com/flowtonehq/flowtone/internal/domain/focus"
	"github.com/flowtonehq/flowtone/internal/domain/routing"
)

func openTestConnection(t *testing.T) *Connection {
	t.Helper()
	conn, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	if err := conn.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func mustRule(t *testing.T, label string, apps, domains []string, prompt string) *routing.Rule {
	t.Helper()
	rule, err := routing.NewRule(label, apps, domains, prompt)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	return rule
}

func TestRuleRepository_RoundTripPreservesOrder(t *testing.T) {
	repo := NewRuleRepository(openTestConnection(t))
	ctx := context.Background()

	first := mustRule(t, "coding", []string{"Editor", "Terminal"}, nil, "driving synthwave")
	second := mustRule(t, "reading", nil, []string{"docs.example.com"}, "soft piano")
	third := mustRule(t, "design", []string{"Figma"}, []string{"figma.com"}, "ambient textures")

	for _, rule := range []*routing.Rule{first, second, third} {
		if err := repo.SaveRule(ctx, rule); err != nil {
			t.Fatalf("SaveRule(%s): %v", rule.Label, err)
		}
	}

	rules, err := repo.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("rules = %d, expected 3", len(rules))
	}
	for i, want := range []string{"coding", "reading", "design"} {
		if rules[i].Label != want {
			t.Errorf("rule %d = %q, expected %q", i, rules[i].Label, want)
		}
	}
	if len(rules[0].AppNames) != 2 {
		t.Errorf("app names = %v", rules[0].AppNames)
	}
	if len(rules[2].Domains) != 1 || rules[2].Domains[0] != "figma.com" {
		t.Errorf("domains = %v", rules[2].Domains)
	}
}

func TestRuleRepository_GetAndDelete(t *testing.T) {
	repo := NewRuleRepository(openTestConnection(t))
	ctx := context.Background()

	rule := mustRule(t, "coding", []string{"Editor"}, nil, "driving synthwave")
	if err := repo.SaveRule(ctx, rule); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}

	got, err := repo.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.Label != "coding" || got.Prompt != "driving synthwave" {
		t.Errorf("rule = %+v", got)
	}

	if err := repo.DeleteRule(ctx, rule.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if _, err := repo.GetRule(ctx, rule.ID); !flowerrors.Is(err, flowerrors.ErrRuleNotFound) {
		t.Errorf("err = %v, expected ErrRuleNotFound", err)
	}
	if err := repo.DeleteRule(ctx, rule.ID); !flowerrors.Is(err, flowerrors.ErrRuleNotFound) {
		t.Errorf("double delete err = %v, expected ErrRuleNotFound", err)
	}
}

func TestRuleRepository_SaveUpdatesInPlace(t *testing.T) {
	repo := NewRuleRepository(openTestConnection(t))
	ctx := context.Background()

	rule := mustRule(t, "coding", []string{"Editor"}, nil, "driving synthwave")
	if err := repo.SaveRule(ctx, rule); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}

	rule.Prompt = "dark techno"
	if err := repo.SaveRule(ctx, rule); err != nil {
		t.Fatalf("SaveRule update: %v", err)
	}

	rules, err := repo.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %d, update must not duplicate", len(rules))
	}
	if rules[0].Prompt != "dark techno" {
		t.Errorf("prompt = %q", rules[0].Prompt)
	}
}

func TestRuleRepository_ReplaceRules(t *testing.T) {
	repo := NewRuleRepository(openTestConnection(t))
	ctx := context.Background()

	if err := repo.SaveRule(ctx, mustRule(t, "old", []string{"X"}, nil, "p")); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}

	replacement := []*routing.Rule{
		mustRule(t, "b", []string{"B"}, nil, "pb"),
		mustRule(t, "a", []string{"A"}, nil, "pa"),
	}
	if err := repo.ReplaceRules(ctx, replacement); err != nil {
		t.Fatalf("ReplaceRules: %v", err)
	}

	rules, err := repo.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 2 || rules[0].Label != "b" || rules[1].Label != "a" {
		t.Errorf("rules = %+v, expected given order preserved", rules)
	}
}

func TestPolicyRepository_AbsentPolicyIsNotAnError(t *testing.T) {
	repo := NewPolicyRepository(openTestConnection(t))

	_, ok, err := repo.LoadPolicy(context.Background())
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if ok {
		t.Error("expected no stored policy")
	}
}

func TestPolicyRepository_RoundTrip(t *testing.T) {
	repo := NewPolicyRepository(openTestConnection(t))
	ctx := context.Background()

	policy := focus.Policy{
		Mode:           focus.ModeBlocklist,
		BlockedApps:    []string{"Steam", "Discord"},
		BlockedDomains: []string{"reddit.com"},
	}
	if err := repo.SavePolicy(ctx, policy); err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}

	// Saving again overwrites the single row.
	policy.Mode = focus.ModeAllowlist
	policy.AllowedApps = []string{"Editor"}
	if err := repo.SavePolicy(ctx, policy); err != nil {
		t.Fatalf("SavePolicy overwrite: %v", err)
	}

	got, ok, err := repo.LoadPolicy(ctx)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if !ok {
		t.Fatal("expected stored policy")
	}
	if got.Mode != focus.ModeAllowlist {
		t.Errorf("mode = %q", got.Mode)
	}
	if len(got.BlockedApps) != 2 || len(got.AllowedApps) != 1 {
		t.Errorf("policy = %+v", got)
	}
}

func TestPreferenceRepository_RoundTrip(t *testing.T) {
	repo := NewPreferenceRepository(openTestConnection(t))
	ctx := context.Background()

	if _, ok, err := repo.GetPreference(ctx, PrefCalmPrompt); err != nil || ok {
		t.Fatalf("absent key: ok=%v err=%v", ok, err)
	}

	if err := repo.SetPreference(ctx, PrefCalmPrompt, "warm tape hiss"); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	if err := repo.SetPreference(ctx, PrefCalmPrompt, "soft rain"); err != nil {
		t.Fatalf("SetPreference overwrite: %v", err)
	}

	got, ok, err := repo.GetPreference(ctx, PrefCalmPrompt)
	if err != nil || !ok {
		t.Fatalf("GetPreference: ok=%v err=%v", ok, err)
	}
	if got != "soft rain" {
		t.Errorf("value = %q", got)
	}

	if err := repo.DeletePreference(ctx, PrefCalmPrompt); err != nil {
		t.Fatalf("DeletePreference: %v", err)
	}
	if _, ok, _ := repo.GetPreference(ctx, PrefCalmPrompt); ok {
		t.Error("key survived delete")
	}
}
