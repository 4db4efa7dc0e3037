package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/conneroisu/comicshare/internal/share"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("❌ Validation Errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("⚠️  Validation Warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateCatalogConfigDetails(&config.Catalog, result)
	validateSharesDetails(config.Shares, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				fmt.Sprintf("Peers connect to port %d by default", DefaultPort),
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: "port below 1024 requires elevated privileges",
			Suggestions: []string{
				"Consider using a port above 1024",
			},
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use '0.0.0.0' to accept peers on every interface",
					"Use a valid IP address or hostname",
				},
			})
		}
	}

	if config.CertFile != "" || config.KeyFile != "" {
		for field, path := range map[string]string{"server.cert_file": config.CertFile, "server.key_file": config.KeyFile} {
			if path == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:       field,
					Message:     "certificate and key must be configured together",
					Suggestions: []string{"Leave both empty to use a generated self-signed certificate"},
				})
			} else if !pathExists(path) {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Value:   path,
					Message: "file does not exist",
				})
			}
		}
	}

	if config.MaxConnections == 0 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.max_connections",
			Value:   config.MaxConnections,
			Message: "no limit on concurrent peer connections",
			Suggestions: []string{"Set a limit when sharing over a public network"},
		})
	}

	if config.ExternalAddress != "" && strings.Contains(config.ExternalAddress, "/") {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "server.external_address",
			Value:       config.ExternalAddress,
			Message:     "external address must be a host or host:port",
			Suggestions: []string{"Use e.g. 'comics.example.net' or 'comics.example.net:7612'"},
		})
	}
}

func validateCatalogConfigDetails(config *CatalogConfig, result *ValidationResult) {
	if config.Path == "" {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "catalog.path",
			Message:     "no catalog configured, shares will be empty",
			Suggestions: []string{"Point catalog.path at a JSONC catalog manifest"},
		})
		return
	}

	if !pathExists(config.Path) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "catalog.path",
			Value:   config.Path,
			Message: "catalog manifest does not exist",
		})
	}
}

func validateSharesDetails(shares []ShareConfig, result *ValidationResult) {
	if len(shares) == 0 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "shares",
			Message:     "no shares configured, the server will not listen",
			Suggestions: []string{"Add at least one entry under 'shares'"},
		})
		return
	}

	seen := make(map[string]bool)
	for i, s := range shares {
		field := fmt.Sprintf("shares[%d]", i)

		if problem := s.Problem(); problem != "" {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   field,
				Value:   s.Name,
				Message: problem + "; the share will not be served",
				Suggestions: []string{
					"Share names may use letters, digits, '-', '_', '.' and '~'",
					"Modes: none, selected, all",
				},
			})
			continue
		}

		if seen[s.Name] {
			result.Errors = append(result.Errors, ValidationError{
				Field:       field + ".name",
				Value:       s.Name,
				Message:     "duplicate share name",
				Suggestions: []string{"Every share needs its own name"},
			})
		}
		seen[s.Name] = true

		if _, err := s.ListIDs(); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".shared_lists",
				Value:   s.SharedLists,
				Message: err.Error(),
			})
		}

		if s.Mode == share.ModeSelected && len(s.SharedLists) == 0 {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   field + ".shared_lists",
				Message: "selected mode without lists shares nothing",
			})
		}

		if s.Password == "" && !s.PrivateOnly {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   field + ".password",
				Value:   s.Name,
				Message: "share is reachable from any network without a password",
				Suggestions: []string{
					"Set a password",
					"Set private_only to limit the share to local networks",
				},
			})
		}
	}
}

// Helper validation functions

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
