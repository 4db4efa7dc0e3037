package cmd

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conneroisu/comicshare/internal/server"
	"github.com/conneroisu/comicshare/internal/version"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	infoInsecure bool
	infoTimeout  time.Duration
	infoFormat   string
)

var infoCmd = &cobra.Command{
	Use:   "info URL",
	Short: "Describe a share served by a peer",
	Long: `Fetch the description of a remote share.

URL is the share address as announced by its owner, for example
https://comics.example.net:7612/library. A bare host:port/share is
accepted and read over https.

Examples:
  comicshare info https://comics.example.net:7612/library
  comicshare info localhost:7612/library --insecure
  comicshare info localhost:7612/library --insecure --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List publicly announced servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		servers, err := server.PublicServers(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(servers) == 0 {
			fmt.Fprintln(out, "No public servers announced.")
			return nil
		}
		for _, s := range servers {
			fmt.Fprintln(out, s)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(serversCmd)

	infoCmd.Flags().BoolVarP(&infoInsecure, "insecure", "k", false, "Accept self-signed certificates")
	infoCmd.Flags().DurationVar(&infoTimeout, "timeout", 10*time.Second, "Request timeout")
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", "text", "Output format (text, json)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	if err := validateFormat(infoFormat, "text", "json"); err != nil {
		return err
	}

	endpoint, err := infoURL(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), infoTimeout)
	defer cancel()

	info, err := fetchInfo(ctx, newPeerClient(infoInsecure), endpoint)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if infoFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	}
	printInfo(out, info)
	return nil
}

// infoURL turns a share address into its Info endpoint.
func infoURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid share address %q: %w", raw, err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("shares are only served over https, got %s", u.Scheme)
	}
	name := strings.Trim(u.Path, "/")
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("share address %q must name exactly one share", raw)
	}
	u.Path = "/" + name + "/Info"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func newPeerClient(insecure bool) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: insecure, //nolint:gosec // opt-in for self-signed peers
			},
		},
	}
}

func fetchInfo(ctx context.Context, client *http.Client, endpoint string) (*server.Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting peer: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("peer refused the connection: only clients in its private network can connect")
	case http.StatusNotFound:
		return nil, fmt.Errorf("peer does not serve this share")
	default:
		return nil, fmt.Errorf("peer answered %s", resp.Status)
	}

	var info server.Info
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("reading share description: %w", err)
	}
	return &info, nil
}

func printInfo(out io.Writer, info *server.Info) {
	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.Faint)

	title.Fprintln(out, info.Name)
	if info.Description != "" {
		fmt.Fprintln(out, info.Description)
	}
	label.Fprint(out, "ID:       ")
	fmt.Fprintln(out, info.ID)
	label.Fprint(out, "Version:  ")
	fmt.Fprintln(out, info.Version)
	if len(info.Options) > 0 {
		label.Fprint(out, "Options:  ")
		fmt.Fprintln(out, strings.Join(info.Options, ", "))
	}
	label.Fprint(out, "Protocol: ")
	if info.ProtocolVersion == version.ProtocolVersion {
		color.New(color.FgGreen).Fprintf(out, "%d (compatible)\n", info.ProtocolVersion)
	} else {
		color.New(color.FgYellow).Fprintf(out, "%d (this client speaks %d)\n", info.ProtocolVersion, version.ProtocolVersion)
	}
}
