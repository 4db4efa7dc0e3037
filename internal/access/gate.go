// Package access implements the network-origin policy applied to every
// remote call before any catalog or content work happens.
package access

import (
	"context"
	"net"
	"net/http"
	"net/netip"

	"github.com/conneroisu/comicshare/internal/errors"
)

type clientAddrKey struct{}

// WithClientAddr records the originating address of the current call.
func WithClientAddr(ctx context.Context, addr netip.Addr) context.Context {
	return context.WithValue(ctx, clientAddrKey{}, addr.Unmap())
}

// ClientAddress returns the originating address of the call, or false
// when the transport did not provide one.
func ClientAddress(ctx context.Context) (netip.Addr, bool) {
	addr, ok := ctx.Value(clientAddrKey{}).(netip.Addr)
	if !ok || !addr.IsValid() {
		return netip.Addr{}, false
	}
	return addr, true
}

// AddrFromRequest parses the peer address of r. Forwarding headers are
// ignored: a peer could set them to anything.
func AddrFromRequest(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// Middleware stores the request's peer address on its context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if addr, ok := AddrFromRequest(r); ok {
			r = r.WithContext(WithClientAddr(r.Context(), addr))
		}
		next.ServeHTTP(w, r)
	})
}

// IsPrivate reports whether addr belongs to a private, loopback or
// link-local range.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}

// Gate enforces the private-network policy of one share.
type Gate struct {
	PrivateOnly bool
}

// CheckPrivateNetwork fails with an authorization error when the share
// is private-only and the caller is not on a private network. A call
// without a known origin is treated as public.
func (g Gate) CheckPrivateNetwork(ctx context.Context) error {
	if !g.PrivateOnly {
		return nil
	}
	addr, ok := ClientAddress(ctx)
	if ok && IsPrivate(addr) {
		return nil
	}
	client := "unknown"
	if ok {
		client = addr.String()
	}
	return errors.ErrPrivateNetworkOnly(client).WithComponent("access")
}
