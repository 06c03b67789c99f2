package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/tradebrain/internal/config"
	"github.com/harun/tradebrain/internal/observability"
)

var (
	initForce       bool
	initInteractive bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	Long: `Load the configuration file and environment overrides, then report
every problem that would stop the agent from starting. Format warnings are
printed but do not fail validation.`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with credentials masked",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Write a configuration file with default values, or with answers from an
interactive wizard when --interactive is given.`,
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	configInitCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "prompt for credentials and loop settings")
	configCmd.AddCommand(configValidateCmd, configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, warning := range config.NewValidator().ValidateConfig(cfg) {
		fmt.Fprintf(out, "warning: %v\n", warning)
	}
	fmt.Fprintln(out, "Configuration is valid")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyOverrides(cmd, cfg)
	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	path := loader.GetConfigPath()

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	cfg := config.DefaultConfig()
	if initInteractive {
		wizard := config.NewWizardWithIO(cmd.InOrStdin(), cmd.OutOrStdout())
		answers, err := wizard.Run()
		if err != nil {
			return fmt.Errorf("configuration failed: %w", err)
		}
		if err := answers.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = answers
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	observability.RecordConfigAudit(context.Background(), "config_init", "cli", map[string]interface{}{
		"path":        path,
		"interactive": initInteractive,
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", path)
	if !initInteractive {
		fmt.Fprintln(out, "Set OR_TOKEN, KRAKEN_API_KEY and KRAKEN_API_SECRET, then start with: tradebrain run")
	} else {
		fmt.Fprintln(out, "Start the agent with: tradebrain run")
	}
	return nil
}
