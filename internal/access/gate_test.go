package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPrivateNetwork(t *testing.T) {
	tests := []struct {
		name        string
		privateOnly bool
		addr        string
		allowed     bool
	}{
		{"public denied", true, "8.8.8.8", false},
		{"rfc1918 allowed", true, "10.0.0.5", true},
		{"192.168 allowed", true, "192.168.1.20", true},
		{"172.16 allowed", true, "172.16.4.4", true},
		{"loopback allowed", true, "127.0.0.1", true},
		{"ipv6 ula allowed", true, "fd00::1", true},
		{"ipv6 link-local allowed", true, "fe80::1", true},
		{"ipv4-mapped private allowed", true, "::ffff:10.1.2.3", true},
		{"ipv6 public denied", true, "2001:4860:4860::8888", false},
		{"public allowed when not restricted", false, "8.8.8.8", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithClientAddr(context.Background(), netip.MustParseAddr(tt.addr))
			err := Gate{PrivateOnly: tt.privateOnly}.CheckPrivateNetwork(ctx)

			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsAuthorizationDenied(err))
		})
	}
}

func TestCheckPrivateNetworkWithoutAddress(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, Gate{}.CheckPrivateNetwork(ctx))

	err := Gate{PrivateOnly: true}.CheckPrivateNetwork(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsAuthorizationDenied(err))
}

func TestClientAddress(t *testing.T) {
	_, ok := ClientAddress(context.Background())
	assert.False(t, ok)

	ctx := WithClientAddr(context.Background(), netip.MustParseAddr("10.0.0.5"))
	addr, ok := ClientAddress(ctx)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", addr.String())
}

func TestAddrFromRequest(t *testing.T) {
	tests := []struct {
		remoteAddr string
		expected   string
		ok         bool
	}{
		{"10.0.0.5:5123", "10.0.0.5", true},
		{"[::1]:80", "::1", true},
		{"192.168.0.1", "192.168.0.1", true},
		{"not-an-ip:80", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			addr, ok := AddrFromRequest(req)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.expected, addr.String())
			}
		})
	}
}

func TestAddrFromRequestIgnoresForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "8.8.8.8:443"
	req.Header.Set("X-Forwarded-For", "10.0.0.5")

	addr, ok := AddrFromRequest(req)
	require.True(t, ok)
	assert.Equal(t, "8.8.8.8", addr.String())
}

func TestMiddleware(t *testing.T) {
	var seen netip.Addr
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClientAddress(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "10.0.0.5", seen.String())
}
