package portal

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/spotfi/spotfi-cloud/internal/store"
)

// ErrRouterNotTrusted is returned when none of the identity resolution
// tiers find a matching router; the login is refused (spec.md §4.3).
var ErrRouterNotTrusted = errors.New("router could not be identified")

// ResolveRouter implements spec.md §4.3's three-tier router identity
// resolution: MAC (most reliable) → normalized name → last-known NAS IP
// (weakest). called is the router's MAC as reported by the UAM request
// (the "called" parameter), nasid its self-reported name, uamip its LAN
// IP (not its NAS IP, which is why IP match is last resort).
func ResolveRouter(ctx context.Context, st *store.Store, called, nasid, uamip string) (*store.Router, error) {
	if mac := store.NormalizeMAC(called); mac != "" {
		router, err := st.GetRouterByMAC(ctx, mac)
		if err == nil {
			return router, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	if name := store.NormalizeRouterName(nasid); name != "" {
		router, err := st.GetRouterByNormalizedName(ctx, name)
		if err == nil {
			return router, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	if uamip != "" {
		router, err := st.GetRouterByNASIP(ctx, uamip)
		if err == nil {
			return router, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return nil, ErrRouterNotTrusted
}

// parseIP parses s as an IPv4 or IPv6 address, returning nil rather than
// an error on failure since callers treat a malformed stored address as
// "omit the attribute" rather than a hard failure.
func parseIP(s string) net.IP {
	return net.ParseIP(strings.TrimSpace(s))
}

// isPrivateHostAddress reports whether ip is an RFC1918/link-local IPv4
// address or a unique-local/link-local IPv6 address, the set of addresses
// a router's hotspot LAN IP (uamip) is expected to use (spec.md §4.3's
// router-IP validation guard).
func isPrivateHostAddress(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLinkLocalUnicast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.IsPrivate()
	}
	return ip.IsPrivate()
}
