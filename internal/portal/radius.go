package portal

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/spotfi/spotfi-cloud/internal/store"
)

// RadiusConfig configures the Access-Request exchange against the
// configured RADIUS host. The cloud never speaks RADIUS to routers
// directly; this client only talks to the shared RADIUS service (spec.md
// §4.3, §6), authenticating a router's hotspot client on its behalf.
type RadiusConfig struct {
	// Addr is host:port of the RADIUS authentication endpoint.
	Addr string

	// Timeout bounds a single Access-Request/Access-Accept round trip.
	Timeout time.Duration
}

// DefaultRadiusConfig returns a 2s timeout, matching the load-test tooling's
// per-request budget for an authentication exchange.
func DefaultRadiusConfig(addr string) RadiusConfig {
	return RadiusConfig{Addr: addr, Timeout: 2 * time.Second}
}

// RadiusClient issues Access-Request exchanges on behalf of the captive
// portal. Grounded on the Access-Request construction shown in the BNG
// simulator and auth load-test tooling (radius.New, rfc2865 setters,
// radius.Exchange).
type RadiusClient struct {
	cfg RadiusConfig
}

// NewRadiusClient constructs a RadiusClient.
func NewRadiusClient(cfg RadiusConfig) *RadiusClient {
	return &RadiusClient{cfg: cfg}
}

// Authenticate performs an Access-Request using router's shared secret and
// returns true on Access-Accept, false on Access-Reject. Any other error
// (timeout, malformed response) is returned as err.
func (c *RadiusClient) Authenticate(ctx context.Context, router *store.Router, username, password string) (bool, error) {
	pkt := radius.New(radius.CodeAccessRequest, []byte(router.RadiusSecret))
	if err := rfc2865.UserName_SetString(pkt, username); err != nil {
		return false, fmt.Errorf("set username: %w", err)
	}
	if err := rfc2865.UserPassword_SetString(pkt, password); err != nil {
		return false, fmt.Errorf("set password: %w", err)
	}
	if router.NASIPAddress != "" {
		// NAS-IP-Address wants a net.IP; a malformed stored value shouldn't
		// block the auth attempt, it's advisory context for the RADIUS
		// service's accounting correlation.
		if ip := parseIP(router.NASIPAddress); ip != nil {
			if err := rfc2865.NASIPAddress_Set(pkt, ip); err != nil {
				return false, fmt.Errorf("set nas ip: %w", err)
			}
		}
	}
	if router.Name != "" {
		if err := rfc2865.NASIdentifier_SetString(pkt, router.Name); err != nil {
			return false, fmt.Errorf("set nas identifier: %w", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := radius.Exchange(reqCtx, pkt, c.cfg.Addr)
	if err != nil {
		return false, fmt.Errorf("radius exchange: %w", err)
	}
	switch resp.Code {
	case radius.CodeAccessAccept:
		return true, nil
	case radius.CodeAccessReject:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected radius response code %d", resp.Code)
	}
}

// ChallengeResponse computes the WISPr UAM CHAP response:
// MD5(CHAP-Identifier ‖ uamSecret ‖ challenge), returned as lowercase hex
// (spec.md §4.3, §8). identifier is conventionally 0x00 for the UAM
// handshake; challengeHex is the router-supplied nonce, itself hex-encoded.
func ChallengeResponse(identifier byte, uamSecret, challengeHex string) (string, error) {
	challenge, err := hex.DecodeString(challengeHex)
	if err != nil {
		return "", fmt.Errorf("decode challenge: %w", err)
	}
	h := md5.New()
	h.Write([]byte{identifier})
	h.Write([]byte(uamSecret))
	h.Write(challenge)
	return hex.EncodeToString(h.Sum(nil)), nil
}
