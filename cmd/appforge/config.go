package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/appforge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show effective configuration",
	Long: `Display the configuration appforge would run with, after merging
defaults, config files, and environment variables. Secrets are masked.

Without arguments, prints the whole configuration as YAML.
With a dot-notation key (e.g. notify.max_attempts), prints that value.

Configuration is read from ~/.config/appforge/config.yaml
Project-specific overrides can be placed in .appforge.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, v, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			data, err := renderConfig(cfg)
			if err != nil {
				return err
			}
			if v != nil && v.ConfigFileUsed() != "" {
				fmt.Fprintf(out, "# %s\n", v.ConfigFileUsed())
			} else if configPath == "" && config.GetProjectConfigPath() == "" {
				fmt.Fprintf(out, "# no config file (looked for %s and .appforge.yaml)\n", config.GetUserConfigPath())
			}
			fmt.Fprint(out, string(data))
			return nil
		}

		value, err := configValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, value)
		return nil
	},
}

// maskedConfig returns a copy of cfg with every secret masked.
func maskedConfig(cfg *config.Config) config.Config {
	masked := *cfg
	masked.VerificationSecret = config.MaskSecret(cfg.VerificationSecret)
	masked.LLM.APIKey = config.MaskSecret(cfg.LLM.APIKey)
	masked.GitHub.Token = config.MaskSecret(cfg.GitHub.Token)
	return masked
}

// renderConfig renders the masked configuration as YAML.
func renderConfig(cfg *config.Config) ([]byte, error) {
	data, err := yaml.Marshal(maskedConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// configValue retrieves a masked configuration value by dot-notation key.
func configValue(cfg *config.Config, key string) (string, error) {
	data, err := renderConfig(cfg)
	if err != nil {
		return "", err
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return "", fmt.Errorf("decode config: %w", err)
	}

	var node any = tree
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", fmt.Errorf("unknown configuration key: %s", key)
		}
		node, ok = m[part]
		if !ok {
			return "", fmt.Errorf("unknown configuration key: %s", key)
		}
	}

	if sub, ok := node.(map[string]any); ok {
		out, err := yaml.Marshal(sub)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(out), "\n"), nil
	}
	return fmt.Sprint(node), nil
}
