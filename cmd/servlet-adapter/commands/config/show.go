package config

import (
	"github.com/spf13/cobra"

	"github.com/tailrecursion/servlet-adapter/internal/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after merging defaults, the config file and the
environment, as YAML.

Examples:
  servlet-adapter config show
  servlet-adapter config show --config /etc/servlet-adapter/config.yaml`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return cfg.WriteYAML(cmd.OutOrStdout())
}
