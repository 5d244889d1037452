package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShayCichocki/appforge/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "appforge",
	Short: "Generate and publish single-page apps from task briefs",
	Long: `appforge receives a task request, asks a language model to build a
self-contained web app, publishes it as a public GitHub repository with
Pages enabled, and reports the result to the caller's evaluation URL.

Secrets come from the environment:
  GITHUB_PAT            token used to create repositories
  LLM_API_KEY           language model API key (or ANTHROPIC_API_KEY)
  VERIFICATION_SECRET   shared secret callers must present

Other settings are read from ~/.config/appforge/config.yaml and
.appforge.yaml, and can be overridden with APPFORGE_* variables.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: XDG and project lookup)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(nameCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration from --config or the default lookup.
func loadConfig() (*config.Config, *viper.Viper, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
