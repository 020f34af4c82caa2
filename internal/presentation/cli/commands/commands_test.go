package commands

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

// executeCommand executes a cobra command with the given args.
func executeCommand(root *cobra.Command, args ...string) error {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	return root.Execute()
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd == nil {
		t.Fatal("NewRootCmd returned nil")
	}

	if cmd.Use != "flowtone" {
		t.Errorf("expected Use='flowtone', got %q", cmd.Use)
	}

	wantSubcmds := []string{"version", "init", "start", "status", "steer", "rules", "policy"}
	subcmds := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcmds[sub.Name()] = true
	}
	for _, want := range wantSubcmds {
		if !subcmds[want] {
			t.Errorf("missing subcommand: %s", want)
		}
	}

	wantFlags := []string{"config", "output", "verbose"}
	for _, flag := range wantFlags {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag: %s", flag)
		}
	}
}

func TestVersionCmd_NoError(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"basic", []string{"version"}},
		{"short", []string{"version", "--short"}},
		{"json", []string{"version", "-o", "json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			if err := executeCommand(cmd, tt.args...); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestStartCmd_Flags(t *testing.T) {
	cmd := NewStartCmd()

	for _, flag := range []string{"duration", "free-play", "bpm", "no-monitor"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestRulesAddCmd_RequiresPrompt(t *testing.T) {
	cmd := NewRulesCmd()
	// Missing --prompt must be rejected before touching the container.
	if err := executeCommand(cmd, "add", "coding", "--app", "Code"); err == nil {
		t.Error("expected error for missing --prompt")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"); got != "6ba7b810" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("plain"); got != "plain" {
		t.Errorf("shortID = %q", got)
	}
}
