package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/conneroisu/comicshare/internal/version"
	"github.com/spf13/cobra"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the comicshare version, the commit it was built from and the
peer protocol revision it speaks.

Examples:
  comicshare version                # Show version
  comicshare version --short        # Show the version only
  comicshare version --format json  # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	switch versionFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]interface{}{
			"version":          version.GetVersion(),
			"git_commit":       version.GetGitCommit(),
			"protocol_version": version.ProtocolVersion,
			"go_version":       runtime.Version(),
			"platform":         runtime.GOOS + "/" + runtime.GOARCH,
		})
	case "text":
		if versionShort {
			fmt.Fprintln(out, version.GetShortVersion())
			return nil
		}
		fmt.Fprintf(out, "comicshare %s\n", version.GetShortVersion())
		fmt.Fprintf(out, "Protocol: %d\n", version.ProtocolVersion)
		fmt.Fprintf(out, "Go: %s\n", runtime.Version())
		fmt.Fprintf(out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
}
