package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/comicshare/internal/config"
	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/conneroisu/comicshare/internal/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:              "127.0.0.1",
		Port:              0,
		MaxMessageSize:    config.DefaultMaxMessageSize,
		MaxConnections:    8,
		ShutdownTimeout:   2 * time.Second,
		ProviderCacheSize: 2,
		ThumbnailHeight:   20,
	}
}

func (f *fixture) host(t *testing.T, tune ...func(*HostOptions)) *Host {
	t.Helper()
	opts := HostOptions{
		Catalog:       f.catalog,
		PagePool:      imaging.NewMemoryPagePool(8),
		ThumbnailPool: imaging.NewMemoryThumbnailPool(8, nil),
		Open:          f.open,
	}
	for _, fn := range tune {
		fn(&opts)
	}
	h := NewHost(opts)
	t.Cleanup(func() { h.Stop(context.Background()) })
	return h
}

func tlsClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
		},
	}
}

func splitPort(addr string) (string, int, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	n, err := strconv.Atoi(port)
	return host, n, err
}

func isClosed(svc *Service) bool {
	select {
	case <-svc.done:
		return true
	default:
		return false
	}
}

func TestHostServesEveryShare(t *testing.T) {
	f := newFixture(t)
	h := f.host(t)

	a := shareConfig("alpha")
	b := shareConfig("beta")
	b.Password = "secret"

	services, err := h.Start(context.Background(), []config.ShareConfig{a, b}, testServerConfig())
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.True(t, h.Running())
	require.NotNil(t, h.Addr())

	svc, ok := h.Service("beta")
	require.True(t, ok)
	assert.Same(t, services[1], svc)
	assert.Len(t, h.Services(), 2)

	client := tlsClient()
	base := "https://" + h.Addr().String()

	for _, name := range []string{"alpha", "beta"} {
		resp, err := client.Get(base + "/" + name + "/Info")
		require.NoError(t, err)
		var info Info
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, name, info.Name)
		assert.NotEmpty(t, resp.Header.Get("Strict-Transport-Security"))
	}

	req, err := http.NewRequest(http.MethodGet, base+"/beta/Library/books/"+f.book.String()+"/pages/0", nil)
	require.NoError(t, err)
	req.SetBasicAuth("peer", "secret")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(base + "/gamma/Info")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, h.Stop(context.Background()))
	assert.False(t, h.Running())
	assert.Nil(t, h.Addr())
	assert.Empty(t, h.Services())
	assert.True(t, isClosed(services[0]))
	assert.True(t, isClosed(services[1]))

	for _, p := range f.openedProviders() {
		assert.True(t, p.closed.Load(), "stopping disposes every provider")
	}

	assert.NoError(t, h.Stop(context.Background()), "stop is idempotent")
}

func TestHostSkipsInvalidShares(t *testing.T) {
	f := newFixture(t)
	h := f.host(t)

	bad := shareConfig("not valid")
	quality := shareConfig("quality")
	quality.PageQuality = 120

	services, err := h.Start(context.Background(),
		[]config.ShareConfig{bad, shareConfig("library"), quality}, testServerConfig())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "library", services[0].Name())
}

func TestHostWithoutValidSharesDoesNotListen(t *testing.T) {
	f := newFixture(t)
	h := f.host(t)

	services, err := h.Start(context.Background(),
		[]config.ShareConfig{shareConfig("")}, testServerConfig())
	require.NoError(t, err)
	assert.Empty(t, services)
	assert.NotNil(t, services)
	assert.False(t, h.Running())
	assert.Nil(t, h.Addr())
}

func TestHostRejectsDuplicateNames(t *testing.T) {
	f := newFixture(t)
	var built int
	h := f.host(t, func(o *HostOptions) {
		o.NewService = func(opts ServiceOptions) (*Service, error) {
			built++
			return NewService(opts)
		}
	})

	_, err := h.Start(context.Background(),
		[]config.ShareConfig{shareConfig("library"), shareConfig("other"), shareConfig("library")},
		testServerConfig())
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Zero(t, built, "no service is built")
	assert.False(t, h.Running())
}

func TestHostStartTwice(t *testing.T) {
	f := newFixture(t)
	h := f.host(t)

	_, err := h.Start(context.Background(), []config.ShareConfig{shareConfig("library")}, testServerConfig())
	require.NoError(t, err)

	_, err = h.Start(context.Background(), []config.ShareConfig{shareConfig("library")}, testServerConfig())
	assert.True(t, errors.IsConfig(err))
	assert.True(t, h.Running())
}

func TestHostStartFailureDisposesServices(t *testing.T) {
	f := newFixture(t)
	var built []*Service
	h := f.host(t, func(o *HostOptions) {
		o.NewService = func(opts ServiceOptions) (*Service, error) {
			if len(built) == 1 {
				return nil, fmt.Errorf("boom")
			}
			svc, err := NewService(opts)
			if err == nil {
				built = append(built, svc)
			}
			return svc, err
		}
	})

	_, err := h.Start(context.Background(),
		[]config.ShareConfig{shareConfig("a"), shareConfig("b")}, testServerConfig())
	require.Error(t, err)
	require.Len(t, built, 1)
	assert.True(t, isClosed(built[0]))
	assert.False(t, h.Running())
}

func TestHostStartBindFailure(t *testing.T) {
	f := newFixture(t)
	first := f.host(t)
	_, err := first.Start(context.Background(), []config.ShareConfig{shareConfig("library")}, testServerConfig())
	require.NoError(t, err)

	cfg := testServerConfig()
	_, port, err := splitPort(first.Addr().String())
	require.NoError(t, err)
	cfg.Port = port

	second := f.host(t)
	_, err = second.Start(context.Background(), []config.ShareConfig{shareConfig("library")}, cfg)
	require.Error(t, err)
	assert.False(t, second.Running())
}

func TestHostStartWithMissingCertificate(t *testing.T) {
	f := newFixture(t)
	h := f.host(t)

	cfg := testServerConfig()
	cfg.CertFile = "/nonexistent/cert.pem"
	cfg.KeyFile = "/nonexistent/key.pem"

	_, err := h.Start(context.Background(), []config.ShareConfig{shareConfig("library")}, cfg)
	assert.True(t, errors.IsConfig(err))
	assert.False(t, h.Running())
}

func TestHostLiveStats(t *testing.T) {
	f := newFixture(t)
	h := f.host(t)

	cfg := shareConfig("library")
	cfg.Password = "secret"
	_, err := h.Start(context.Background(), []config.ShareConfig{cfg}, testServerConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Basic cGVlcjpzZWNyZXQ=") // peer:secret
	conn, _, err := websocket.Dial(ctx, "wss://"+h.Addr().String()+"/library/Library/stats/live",
		&websocket.DialOptions{
			HTTPClient: &http.Client{Transport: tlsClient().Transport},
			HTTPHeader: headers,
		})
	require.NoError(t, err)
	defer conn.CloseNow()

	_, message, err := conn.Read(ctx)
	require.NoError(t, err)

	var report statsReport
	require.NoError(t, json.Unmarshal(message, &report))
	assert.Equal(t, "library", report.Share)

	require.NoError(t, h.Stop(context.Background()))

	_, _, err = conn.Read(ctx)
	assert.Error(t, err, "stopping the host ends the feed")
}

func TestSelfSignedCertificate(t *testing.T) {
	now := time.Now()
	cert, err := selfSignedCertificate([]string{"localhost", "127.0.0.1", "comics.example.net"}, now)
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)

	assert.ElementsMatch(t, []string{"localhost", "comics.example.net"}, cert.Leaf.DNSNames)
	require.Len(t, cert.Leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.Leaf.IPAddresses[0].String())
	assert.True(t, cert.Leaf.NotBefore.Before(now))
	assert.True(t, cert.Leaf.NotAfter.After(now.Add(300*24*time.Hour)))
	assert.NoError(t, cert.Leaf.VerifyHostname("comics.example.net"))
}

func TestAnnouncementURI(t *testing.T) {
	tests := []struct {
		name     string
		external string
		port     int
		want     string
	}{
		{"not announced", "", 7612, ""},
		{"host only", "comics.example.net", 7612, "https://comics.example.net:7612/library"},
		{"host and port", "comics.example.net:9000", 7612, "https://comics.example.net:9000/library"},
		{"ipv6", "[2001:db8::1]", 7612, "https://[2001:db8::1]:7612/library"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.ServerConfig{ExternalAddress: tt.external, Port: tt.port}
			assert.Equal(t, tt.want, AnnouncementURI(cfg, "library"))
		})
	}
}

func TestPublicServers(t *testing.T) {
	servers, err := PublicServers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, servers)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = PublicServers(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
