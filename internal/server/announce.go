package server

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/conneroisu/comicshare/internal/config"
)

// AnnouncementURI returns the address peers should use for the share
// named name. It is only built from the configured external address;
// without one the share is not announced and the result is "".
func AnnouncementURI(cfg config.ServerConfig, name string) string {
	address := strings.TrimSpace(cfg.ExternalAddress)
	if address == "" {
		return ""
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		host := strings.Trim(address, "[]")
		address = net.JoinHostPort(host, strconv.Itoa(cfg.Port))
	}

	u := url.URL{Scheme: "https", Host: address, Path: "/" + name}
	return u.String()
}

// PublicServers lists servers announced by other users. Discovery is not
// supported, so the list is always empty.
func PublicServers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []string{}, nil
}

func externalHost(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return strings.Trim(address, "[]")
}
