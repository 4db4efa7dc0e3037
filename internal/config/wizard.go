package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/conneroisu/comicshare/internal/share"
	"gopkg.in/yaml.v3"
)

// ConfigWizard asks for the settings of a first share and writes a
// starter configuration file.
type ConfigWizard struct {
	reader *bufio.Reader
	out    io.Writer
	config *Config
}

// NewConfigWizard creates a wizard reading answers from in and writing
// prompts to out.
func NewConfigWizard(in io.Reader, out io.Writer) *ConfigWizard {
	return &ConfigWizard{
		reader: bufio.NewReader(in),
		out:    out,
		config: &Config{},
	}
}

// Run executes the interactive configuration wizard
func (w *ConfigWizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "📚 comicshare configuration")
	fmt.Fprintln(w.out, "===========================")
	fmt.Fprintln(w.out)

	if err := w.configureServer(); err != nil {
		return nil, fmt.Errorf("server configuration failed: %w", err)
	}

	w.config.Catalog.Path = w.askString("Catalog manifest", "catalog.jsonc")

	if err := w.configureShare(); err != nil {
		return nil, fmt.Errorf("share configuration failed: %w", err)
	}

	applyWizardDefaults(w.config)

	if err := validateConfig(w.config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "✅ Configuration completed successfully!")
	return w.config, nil
}

func (w *ConfigWizard) configureServer() error {
	port, err := w.askInt("Server port", DefaultPort, 1, 65535)
	if err != nil {
		return err
	}
	w.config.Server.Port = port
	w.config.Server.Host = w.askString("Listen address", DefaultHost)
	return nil
}

func (w *ConfigWizard) configureShare() error {
	var s ShareConfig

	for {
		s.Name = w.askString("Share name", "library")
		if IsSafeSegment(s.Name) {
			break
		}
		fmt.Fprintln(w.out, "❌ Use letters, digits, '-', '_', '.' or '~'.")
	}

	s.Description = w.askString("Description", "")
	s.Mode = share.Mode(w.askChoice("Share mode",
		[]string{string(share.ModeAll), string(share.ModeSelected), string(share.ModeNone)},
		string(share.ModeAll)))

	if s.Mode == share.ModeSelected {
		lists := w.askString("Shared list IDs (comma separated)", "")
		for _, id := range strings.Split(lists, ",") {
			if id = strings.TrimSpace(id); id != "" {
				s.SharedLists = append(s.SharedLists, id)
			}
		}
		if _, err := s.ListIDs(); err != nil {
			return err
		}
	}

	s.Password = w.askString("Password (empty for none)", "")
	s.PrivateOnly = w.askBool("Private networks only", true)
	s.Editable = w.askBool("Allow peers to edit metadata", false)

	var err error
	if s.PageQuality, err = w.askInt("Page quality", DefaultQuality, 0, 100); err != nil {
		return err
	}
	if s.ThumbnailQuality, err = w.askInt("Thumbnail quality", DefaultQuality, 0, 100); err != nil {
		return err
	}

	w.config.Shares = append(w.config.Shares, s)
	return nil
}

// applyWizardDefaults fills the settings the wizard does not ask for.
func applyWizardDefaults(config *Config) {
	config.Server.MaxMessageSize = DefaultMaxMessageSize
	config.Server.ShutdownTimeout = DefaultShutdownTimeout
	config.Server.ProviderCacheSize = DefaultProviderCacheSize
	config.Server.PageCacheSize = DefaultPageCacheSize
	config.Server.ThumbnailCacheSize = DefaultThumbnailCacheSize
	config.Server.ThumbnailHeight = DefaultThumbnailHeight
	config.Logging.Level = DefaultLogLevel
	config.Logging.Format = DefaultLogFormat
}

// Helper methods for user interaction

func (w *ConfigWizard) askString(prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	input, err := w.reader.ReadString('\n')
	if err != nil && input == "" {
		return defaultValue
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}

	return input
}

func (w *ConfigWizard) askInt(prompt string, defaultValue, min, max int) (int, error) {
	for {
		fmt.Fprintf(w.out, "%s [%d]: ", prompt, defaultValue)

		input, err := w.reader.ReadString('\n')
		if err != nil && input == "" {
			return defaultValue, nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue, nil
		}

		value, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(w.out, "❌ Invalid number. Please enter a number between %d and %d.\n", min, max)
			continue
		}

		if value < min || value > max {
			fmt.Fprintf(w.out, "❌ Number out of range. Please enter a number between %d and %d.\n", min, max)
			continue
		}

		return value, nil
	}
}

func (w *ConfigWizard) askBool(prompt string, defaultValue bool) bool {
	defaultStr := "n"
	if defaultValue {
		defaultStr = "y"
	}

	fmt.Fprintf(w.out, "%s [%s]: ", prompt, defaultStr)

	input, err := w.reader.ReadString('\n')
	if err != nil && input == "" {
		return defaultValue
	}

	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultValue
	}

	return input == "y" || input == "yes" || input == "true"
}

func (w *ConfigWizard) askChoice(prompt string, choices []string, defaultValue string) string {
	for {
		fmt.Fprintf(w.out, "%s [%s] (options: %s): ", prompt, defaultValue, strings.Join(choices, ", "))

		input, err := w.reader.ReadString('\n')
		if err != nil && input == "" {
			return defaultValue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue
		}

		for _, choice := range choices {
			if strings.EqualFold(input, choice) {
				return choice
			}
		}

		fmt.Fprintf(w.out, "❌ Invalid choice. Please select from: %s\n", strings.Join(choices, ", "))
	}
}

// WriteConfigFile writes the configuration to a YAML file. An existing
// file is only replaced when overwrite is set.
func (w *ConfigWizard) WriteConfigFile(filename string, overwrite bool) error {
	if _, err := os.Stat(filename); err == nil && !overwrite {
		return fmt.Errorf("configuration file %s already exists", filename)
	}

	content, err := Marshal(w.config)
	if err != nil {
		return err
	}

	header := "# comicshare configuration file\n# Generated by comicshare init\n\n"
	if err := os.WriteFile(filename, append([]byte(header), content...), 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(w.out, "✅ Configuration saved to %s\n", filename)
	return nil
}

// Marshal renders config as YAML. Share passwords are written as-is; the
// file should not be world readable.
func Marshal(config *Config) ([]byte, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to render configuration: %w", err)
	}
	return data, nil
}

// Redacted returns a copy of config with share passwords masked.
func Redacted(config *Config) *Config {
	c := *config
	c.Shares = make([]ShareConfig, len(config.Shares))
	for i, s := range config.Shares {
		if s.Password != "" {
			s.Password = "********"
		}
		c.Shares[i] = s
	}
	return &c
}
