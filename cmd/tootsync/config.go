package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tootsync/pkg/config"
	"tootsync/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage tootsync configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (TOOTSYNC_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.tootsync.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration merged from all sources:
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values`,
	Run: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Path accessibility`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".tootsync.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		ui.PrintError("Failed to write configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nEdit the file to set your instance domain and preferences.")
	fmt.Println("Environment variables prefixed with TOOTSYNC_ override file values.")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (TOOTSYNC_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (not specified)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile == "" {
		ui.PrintError("No configuration file specified", "Use the --config flag")
		os.Exit(1)
	}
	if _, err := os.Stat(configFile); err != nil {
		ui.PrintError("Configuration file not found", configFile)
		os.Exit(1)
	}

	ui.PrintInfo("Validating configuration", configFile)

	if _, err := config.Load(configFile, nil); err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Configuration is valid")
}
