// Package cmd provides the command-line interface for comicshare with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. COMICSHARE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (COMICSHARE_SERVER_PORT, etc.)
//	4. Configuration files (.comicshare.yml) - lowest priority
//
// Environment Variables:
//
//	COMICSHARE_CONFIG_FILE: Path to custom configuration file
//	COMICSHARE_SERVER_PORT: Override server port
//	COMICSHARE_SERVER_HOST: Override server host
//	COMICSHARE_CATALOG_PATH: Override the catalog manifest
//	And many more following the COMICSHARE_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// DefaultConfigName is the configuration file looked up in the working
// directory, without extension.
const DefaultConfigName = ".comicshare"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "comicshare",
	Short: "Share a comic library with peers over TLS",
	Long: `comicshare serves a comic library to remote readers. Each configured
share exposes all of the library, a selection of its lists, or nothing,
under its own name on a single TLS port.

Quick Start:
  comicshare config init          Create a configuration interactively
  comicshare serve                Start serving the configured shares
  comicshare info URL             Describe a share served by a peer
  comicshare config show          Show the resolved configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .comicshare.yml, can also use COMICSHARE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag
//  2. COMICSHARE_CONFIG_FILE environment variable
//  3. .comicshare.yml in the current directory
//
// Every key can also be set through COMICSHARE_<SECTION>_<OPTION>.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("COMICSHARE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(DefaultConfigName)
	}

	viper.SetEnvPrefix("COMICSHARE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed file leaves the defaults in place; serve
	// reports the problem through config validation.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
