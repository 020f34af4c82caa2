package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowtonehq/flowtone/internal/domain/focus"
	"github.com/flowtonehq/flowtone/internal/presentation/cli/output"
)

// NewPolicyCmd creates the policy command group.
func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage the focus policy",
		Long: `Manage the focus policy that classifies foreground contexts.

In blocklist mode everything is allowed except the listed apps and
domains. In allowlist mode everything is blocked except the listed
ones.`,
	}

	cmd.AddCommand(newPolicyShowCmd())
	cmd.AddCommand(newPolicyModeCmd())
	cmd.AddCommand(newPolicyBlockCmd())
	cmd.AddCommand(newPolicyUnblockCmd())

	return cmd
}

func newPolicyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active focus policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := GetFormatter()
			container := GetContainer()
			if container == nil {
				return errors.New("application not initialized")
			}

			policy := container.Policy()

			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(policy)
			}

			formatter.Header("Focus Policy")
			formatter.Item("Mode", string(policy.Mode))

			if policy.Mode == focus.ModeAllowlist {
				printList(formatter, "Allowed apps", policy.AllowedApps)
				printList(formatter, "Allowed domains", policy.AllowedDomains)
			} else {
				printList(formatter, "Blocked apps", policy.BlockedApps)
				printList(formatter, "Blocked domains", policy.BlockedDomains)
			}
			return nil
		},
	}
}

func printList(formatter *output.Formatter, key string, items []string) {
	if len(items) == 0 {
		formatter.Item(key, formatter.Dim("none"))
		return
	}
	formatter.Item(key, strings.Join(items, ", "))
}

func newPolicyModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode <blocklist|allowlist>",
		Short: "Switch the policy mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := GetFormatter()
			container := GetContainer()
			if container == nil {
				return errors.New("application not initialized")
			}

			var mode focus.Mode
			switch args[0] {
			case "blocklist":
				mode = focus.ModeBlocklist
			case "allowlist":
				mode = focus.ModeAllowlist
			default:
				return fmt.Errorf("mode %q is not blocklist or allowlist", args[0])
			}

			if err := container.SetPolicyMode(context.Background(), mode); err != nil {
				return err
			}
			formatter.Success("Policy mode set to %s", mode)
			return nil
		},
	}
}

func newPolicyBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <target>...",
		Short: "Block apps or domains",
		Long: `Add targets to the blocked lists. Targets containing a dot are
treated as domains, everything else as application names.

Examples:
  flowtone policy block Steam Discord
  flowtone policy block reddit.com news.ycombinator.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editPolicyTargets(args, true)
		},
	}
}

func newPolicyUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <target>...",
		Short: "Unblock apps or domains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editPolicyTargets(args, false)
		},
	}
}

func editPolicyTargets(targets []string, block bool) error {
	formatter := GetFormatter()
	container := GetContainer()
	if container == nil {
		return errors.New("application not initialized")
	}

	if err := container.EditBlockedTargets(context.Background(), targets, block); err != nil {
		return err
	}

	if block {
		formatter.Success("Blocked: %s", strings.Join(targets, ", "))
	} else {
		formatter.Success("Unblocked: %s", strings.Join(targets, ", "))
	}
	return nil
}
