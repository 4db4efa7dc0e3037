package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/comicshare/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage comicshare configuration",
	Long: `Manage comicshare configuration files and settings.

Examples:
  comicshare config init                 # Create .comicshare.yml interactively
  comicshare config validate             # Validate the current configuration
  comicshare config show                 # Show the resolved configuration
  comicshare config validate --file shares.yml`,
}

var configInitCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"wizard"},
	Short:   "Create a configuration file interactively",
	Long: `Run an interactive wizard that asks for the server port, the catalog
manifest and one share, then writes a configuration file.

Examples:
  comicshare config init                   # Write .comicshare.yml
  comicshare config init --output peer.yml # Write another file
  comicshare config init --force           # Replace an existing file`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a comicshare configuration file.

This command checks for:
- Valid port range and hostname
- Certificate and key configured together and present
- A catalog manifest that exists
- Share names, modes, qualities and list IDs

Examples:
  comicshare config validate                   # Validate .comicshare.yml
  comicshare config validate --file peer.yml   # Validate a specific file
  comicshare config validate --strict          # Treat warnings as errors`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the configuration after loading the file, applying
environment overrides and filling defaults. Share passwords are masked.

Examples:
  comicshare config show                 # YAML
  comicshare config show --format json   # JSON`,
	RunE: runConfigShow,
}

var (
	configOutput string
	configForce  bool
	configFile   string
	configFormat string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().
		StringVarP(&configOutput, "output", "o", DefaultConfigName+".yml", "Output configuration file")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configValidateCmd.Flags().
		StringVarP(&configFile, "file", "f", "", "Configuration file to validate (default: .comicshare.yml)")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(configOutput); err == nil && !configForce {
		return fmt.Errorf("configuration file %s already exists, use --force to replace it", configOutput)
	}

	wizard := config.NewConfigWizard(cmd.InOrStdin(), out)
	cfg, err := wizard.Run()
	if err != nil {
		return fmt.Errorf("configuration wizard failed: %w", err)
	}

	// The catalog manifest may not exist yet, so problems are reported
	// without refusing to write the file.
	validation := config.ValidateConfigWithDetails(cfg)
	if validation.HasErrors() || validation.HasWarnings() {
		fmt.Fprint(out, validation.String())
	}

	if err := wizard.WriteConfigFile(configOutput, configForce); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nNext steps:\n")
	if validation.HasErrors() {
		fmt.Fprintf(out, "  1. Fix the errors reported above in %s\n", configOutput)
	} else {
		fmt.Fprintf(out, "  1. Review %s\n", configOutput)
	}
	fmt.Fprintf(out, "  2. Run 'comicshare serve' to start sharing\n")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	targetFile := configFile
	if targetFile == "" {
		targetFile = viper.ConfigFileUsed()
	}
	if targetFile == "" {
		return errors.New("no configuration file found. Use --file to specify a config file " +
			"or run 'comicshare config init' to create one")
	}

	if _, err := os.Stat(targetFile); os.IsNotExist(err) {
		return fmt.Errorf("configuration file %s does not exist", targetFile)
	}

	fmt.Fprintf(out, "🔍 Validating configuration file: %s\n", targetFile)

	v := viper.New()
	v.SetConfigFile(targetFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	validation := config.ValidateConfigWithDetails(&cfg)

	if validation.Valid && !validation.HasWarnings() {
		fmt.Fprintln(out, "✅ Configuration is valid!")
		return nil
	}

	fmt.Fprint(out, validation.String())

	if validation.HasErrors() {
		return fmt.Errorf("configuration validation failed with %d errors", len(validation.Errors))
	}

	if configStrict {
		return fmt.Errorf(
			"configuration validation failed in strict mode with %d warnings",
			len(validation.Warnings),
		)
	}

	fmt.Fprintln(out, "✅ Configuration is valid with warnings.")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if err := validateFormat(configFormat, "yaml", "yml", "json"); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return showConfig(cmd.OutOrStdout(), config.Redacted(cfg), configFormat)
}

func showConfig(out io.Writer, cfg *config.Config, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "# Resolved from all sources (file, env vars, defaults)")
	_, err = out.Write(data)
	return err
}
