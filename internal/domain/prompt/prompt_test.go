package prompt

import (
	"testing"

	"github.com/flowtonehq/flowtone/internal/domain/session"
)

func TestResolve_AmbientPair(t *testing.T) {
	params := session.ParametersFor(0.3)
	got := Resolve(Resolution{
		CalmPrompt:    "calm",
		IntensePrompt: "intense",
		Parameters:    params,
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(got))
	}
	if got[0].Text != "calm" || got[0].Weight != params.CalmWeight {
		t.Errorf("unexpected calm entry: %+v", got[0])
	}
	if got[1].Text != "intense" || got[1].Weight != params.IntenseWeight {
		t.Errorf("unexpected intense entry: %+v", got[1])
	}
}

func TestResolve_OverrideAppendedLast(t *testing.T) {
	got := Resolve(Resolution{
		CalmPrompt:    "calm",
		IntensePrompt: "intense",
		Parameters:    session.ParametersFor(0.5),
		Override:      "lo-fi hip hop",
	})

	if len(got) != 3 {
		t.Fatalf("expected 3 prompts, got %d", len(got))
	}
	last := got[len(got)-1]
	if last.Text != "lo-fi hip hop" || last.Weight != OverrideWeight {
		t.Errorf("unexpected override entry: %+v", last)
	}
}

func TestResolve_RoutedReplacesPair(t *testing.T) {
	got := Resolve(Resolution{
		CalmPrompt:    "calm",
		IntensePrompt: "intense",
		Parameters:    session.ParametersFor(0.5),
		Routed:        "deep focus synths",
	})

	if len(got) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(got))
	}
	if got[0].Text != "deep focus synths" || got[0].Weight != 1 {
		t.Errorf("unexpected routed entry: %+v", got[0])
	}
}

func TestResolve_RoutedTakesPrecedenceOverStatic(t *testing.T) {
	got := Resolve(Resolution{
		Static: "mellow beats",
		Routed: "deep focus synths",
	})

	if len(got) != 1 || got[0].Text != "deep focus synths" {
		t.Errorf("expected routed prompt to win, got %+v", got)
	}
}

func TestResolve_DefaultsWhenUnset(t *testing.T) {
	got := Resolve(Resolution{Parameters: session.ParametersFor(0)})

	if len(got) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(got))
	}
	if got[0].Text != DefaultCalmPrompt || got[1].Text != DefaultIntensePrompt {
		t.Errorf("expected default prompt texts, got %+v", got)
	}
}

func TestWeightedPrompt_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       WeightedPrompt
		wantErr bool
	}{
		{"valid", WeightedPrompt{Text: "x", Weight: 0.5}, false},
		{"empty text", WeightedPrompt{Weight: 0.5}, true},
		{"zero weight", WeightedPrompt{Text: "x"}, true},
		{"negative weight", WeightedPrompt{Text: "x", Weight: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
