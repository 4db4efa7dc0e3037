package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// serverFlagBindings maps serve flags onto configuration keys.
var serverFlagBindings = map[string]string{
	"host":             "server.host",
	"port":             "server.port",
	"cert-file":        "server.cert_file",
	"key-file":         "server.key_file",
	"external-address": "server.external_address",
	"max-connections":  "server.max_connections",
	"catalog":          "catalog.path",
	"log-dir":          "logging.dir",
}

// addServerFlags adds the flags that override server settings. Defaults
// are left to the configuration layer so unset flags do not mask the file.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("host", "H", "", "Host to bind to")
	cmd.Flags().IntP("port", "p", 0, "Port to serve on")
	cmd.Flags().String("cert-file", "", "TLS certificate (PEM)")
	cmd.Flags().String("key-file", "", "TLS private key (PEM)")
	cmd.Flags().String("external-address", "", "Address announced to peers (host or host:port)")
	cmd.Flags().Int("max-connections", 0, "Maximum concurrent peer connections (0 for no limit)")
	cmd.Flags().String("catalog", "", "Catalog manifest (JSONC)")
	cmd.Flags().String("log-dir", "", "Also write logs to a dated file in this directory")

	AddFlagValidation(cmd, "port", ValidatePort)
	AddFlagValidation(cmd, "cert-file", ValidateFileExists)
	AddFlagValidation(cmd, "key-file", ValidateFileExists)
	AddFlagValidation(cmd, "catalog", ValidateFileExists)
}

// SetViperBindings binds the flags that were given on the command line to
// their configuration keys.
func SetViperBindings(cmd *cobra.Command, bindings map[string]string) error {
	for flagName, configKey := range bindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := viper.BindPFlag(configKey, flag); err != nil {
			return fmt.Errorf("binding --%s: %w", flagName, err)
		}
	}
	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort accepts 0 (any free port) through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// ValidateFileExists accepts an empty name or an existing file.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}

	return nil
}

// validateFormat checks an output format flag against the allowed ones.
func validateFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported format: %s (supported: %s)", format, strings.Join(allowed, ", "))
}
