package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowtonehq/flowtone/internal/infrastructure/config"
	"github.com/flowtonehq/flowtone/internal/presentation/cli/output"
)

// InitResult holds the result of the init command for JSON output.
type InitResult struct {
	ConfigDir   string `json:"config_dir"`
	ConfigFile  string `json:"config_file"`
	Initialized bool   `json:"initialized"`
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var force bool
	var apiKey string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize flowtone configuration",
		Long: `Initialize flowtone configuration interactively.

This command creates the ~/.flowtone/ directory and generates a
config.yaml with the music backend settings. The backend API key can be
provided with --api-key or entered at the prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force, apiKey)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "music backend API key")

	return cmd
}

func runInit(force bool, apiKey string) error {
	formatter := GetFormatter()

	loader, err := config.NewLoader("")
	if err != nil {
		return fmt.Errorf("could not create config loader: %w", err)
	}

	configPath := loader.DefaultConfigPath()
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.NewDefaultConfig()

	if apiKey == "" {
		formatter.Println("Enter your music backend API key (leave empty to configure later):")
		formatter.Print("> ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err == nil {
			apiKey = strings.TrimSpace(line)
		}
	}
	cfg.Backend.APIKey = apiKey

	if err := loader.Save(cfg, configPath); err != nil {
		return fmt.Errorf("could not write configuration: %w", err)
	}

	result := InitResult{
		ConfigDir:   loader.ConfigDir(),
		ConfigFile:  configPath,
		Initialized: true,
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(result)
	}

	formatter.Success("Configuration written to %s", configPath)
	if apiKey == "" {
		formatter.Warning("No API key set; sessions will not start until backend.api_key is configured")
	}
	formatter.Info("Start a session with: flowtone start")
	return nil
}
