package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowtonehq/flowtone/internal/domain/routing"
	"github.com/flowtonehq/flowtone/internal/infrastructure/watch"
	"github.com/flowtonehq/flowtone/internal/presentation/cli/output"
)

// NewRulesCmd creates the rules command group.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage context routing rules",
		Long: `Manage the routing rules that map foreground applications and sites
to musical profiles. Rules are evaluated in order; the first match wins.`,
	}

	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesAddCmd())
	cmd.AddCommand(newRulesRemoveCmd())
	cmd.AddCommand(newRulesExportCmd())

	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List routing rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := GetFormatter()
			container := GetContainer()
			if container == nil {
				return errors.New("application not initialized")
			}

			rules, err := container.RulesRepository().ListRules(context.Background())
			if err != nil {
				return err
			}

			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(rules)
			}

			if len(rules) == 0 {
				formatter.Info("No routing rules configured. Add one with: flowtone rules add")
				return nil
			}

			data := output.TableData{
				Columns: []output.TableColumn{
					{Header: "ID"},
					{Header: "LABEL"},
					{Header: "APPS"},
					{Header: "DOMAINS"},
					{Header: "PROMPT"},
				},
			}
			for _, rule := range rules {
				data.Rows = append(data.Rows, []string{
					shortID(rule.ID),
					rule.Label,
					strings.Join(rule.AppNames, ","),
					strings.Join(rule.Domains, ","),
					rule.Prompt,
				})
			}
			return formatter.Table(data)
		},
	}
}

func newRulesAddCmd() *cobra.Command {
	var apps, domains []string
	var prompt string

	cmd := &cobra.Command{
		Use:   "add <label>",
		Short: "Add a routing rule",
		Long: `Add a routing rule mapping applications or domains to a musical prompt.

Examples:
  flowtone rules add coding --app Code --app Terminal --prompt "driving synthwave"
  flowtone rules add reading --domain docs.rs --prompt "soft piano"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := GetFormatter()
			container := GetContainer()
			if container == nil {
				return errors.New("application not initialized")
			}

			rule, err := routing.NewRule(args[0], apps, domains, prompt)
			if err != nil {
				return err
			}

			ctx := context.Background()
			if err := container.RulesRepository().SaveRule(ctx, rule); err != nil {
				return err
			}
			if err := container.ReloadRules(ctx); err != nil {
				formatter.Warning("Rule saved but reload failed: %v", err)
			}

			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(rule)
			}
			formatter.Success("Rule %q added (%s)", rule.Label, shortID(rule.ID))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&apps, "app", nil, "application name to match (repeatable)")
	cmd.Flags().StringArrayVar(&domains, "domain", nil, "domain to match (repeatable)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "musical prompt for this rule")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func newRulesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a routing rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := GetFormatter()
			container := GetContainer()
			if container == nil {
				return errors.New("application not initialized")
			}

			ctx := context.Background()
			id, err := resolveRuleID(ctx, container.RulesRepository().ListRules, args[0])
			if err != nil {
				return err
			}

			if err := container.RulesRepository().DeleteRule(ctx, id); err != nil {
				return err
			}
			if err := container.ReloadRules(ctx); err != nil {
				formatter.Warning("Rule removed but reload failed: %v", err)
			}

			formatter.Success("Rule %s removed", shortID(id))
			return nil
		},
	}
}

func newRulesExportCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export rules to a YAML file",
		Long: `Write the stored rules to a YAML file. Pointing routing.rules_file at
the exported file enables hot reload: edits apply without restarting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := GetFormatter()
			container := GetContainer()
			if container == nil {
				return errors.New("application not initialized")
			}

			if file == "" {
				file = container.Config().Routing.RulesFile
			}
			if file == "" {
				return errors.New("no file given and routing.rules_file is not configured")
			}

			rules, err := container.RulesRepository().ListRules(context.Background())
			if err != nil {
				return err
			}
			if err := watch.SaveRulesFile(file, routing.NewSet(rules)); err != nil {
				return err
			}

			formatter.Success("%d rules written to %s", len(rules), file)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "destination file (default: routing.rules_file)")

	return cmd
}

// resolveRuleID accepts a full ID, a unique ID prefix, or a label.
func resolveRuleID(ctx context.Context, list func(context.Context) ([]*routing.Rule, error), ref string) (string, error) {
	rules, err := list(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, rule := range rules {
		if rule.ID == ref {
			return rule.ID, nil
		}
		if strings.HasPrefix(rule.ID, ref) || strings.EqualFold(rule.Label, ref) {
			matches = append(matches, rule.ID)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no rule matches %q", ref)
	default:
		return "", fmt.Errorf("%q is ambiguous, matches %d rules", ref, len(matches))
	}
}

// shortID trims a UUID to its first group for display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
