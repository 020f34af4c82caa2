package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowtonehq/flowtone/internal/presentation/cli/output"
)

// StatusInfo holds the status report for JSON output.
type StatusInfo struct {
	BackendURL    string `json:"backend_url"`
	BackendModel  string `json:"backend_model"`
	HasAPIKey     bool   `json:"has_api_key"`
	PolicyMode    string `json:"policy_mode"`
	BlockedApps   int    `json:"blocked_apps"`
	BlockedHosts  int    `json:"blocked_domains"`
	RoutingOn     bool   `json:"routing_enabled"`
	RuleCount     int    `json:"rule_count"`
	ClassifierURL string `json:"classifier_url"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and readiness",
		Long:  `Display the configured backend, focus policy, and routing rules.`,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	formatter := GetFormatter()
	container := GetContainer()
	if container == nil {
		return errors.New("application not initialized")
	}

	cfg := container.Config()
	policy := container.Policy()

	rules, err := container.RulesRepository().ListRules(context.Background())
	if err != nil {
		return err
	}

	info := StatusInfo{
		BackendURL:    cfg.Backend.URL,
		BackendModel:  cfg.Backend.Model,
		HasAPIKey:     cfg.HasCredentials(),
		PolicyMode:    string(policy.Mode),
		BlockedApps:   len(policy.BlockedApps),
		BlockedHosts:  len(policy.BlockedDomains),
		RoutingOn:     cfg.Routing.Enabled,
		RuleCount:     len(rules),
		ClassifierURL: cfg.Classifier.URL,
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(info)
	}

	formatter.Header("Flowtone Status")

	formatter.Item("Backend", fmt.Sprintf("%s (%s)", info.BackendURL, info.BackendModel))
	if info.HasAPIKey {
		formatter.Item("Credentials", formatter.Colorize("configured", output.ColorGreen))
	} else {
		formatter.Item("Credentials", formatter.Colorize("missing, run flowtone init", output.ColorYellow))
	}

	formatter.Item("Policy", fmt.Sprintf("%s (%d apps, %d domains blocked)",
		info.PolicyMode, info.BlockedApps, info.BlockedHosts))

	if info.RoutingOn {
		formatter.Item("Routing", fmt.Sprintf("enabled, %d rules", info.RuleCount))
	} else {
		formatter.Item("Routing", "disabled")
	}

	formatter.Item("Classifier", info.ClassifierURL)

	return nil
}
