package portal

import (
	"fmt"
	"net"
	"net/url"
)

// Whitelist is the set of destinations an unauthenticated hotspot client
// must still reach: DNS resolution, NTP (for captive-portal TLS clock
// sanity), the portal itself, and the router's own UAM IP for the login
// redirect (spec.md §4.3). Edge firmware consumes this as an ipset so the
// rest of the client's traffic is blocked until login.
type Whitelist struct {
	Domains []string
	IPs     []string
}

// GenerateWhitelist derives the allow-list for a router's firewall from the
// portal's own origin, the configured DNS/NTP servers, and the router's LAN
// IP. Grounded on the teacher's NAT/allow-list generation idiom: a pure
// function producing data plus a separate command-emission step, rather
// than executing firewall changes directly from this package (the edge
// device applies the ipset, not the cloud).
func GenerateWhitelist(portalURL string, dnsServers, ntpServers []string, uamip string) (*Whitelist, error) {
	u, err := url.Parse(portalURL)
	if err != nil {
		return nil, fmt.Errorf("parse portal url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("portal url missing host")
	}

	w := &Whitelist{}
	w.Domains = append(w.Domains, u.Hostname())
	// Captive-portal detection probes issued by client OSes before a user
	// ever sees the login page.
	w.Domains = append(w.Domains,
		"connectivitycheck.gstatic.com", // Android
		"clients3.google.com",           // Android (legacy)
		"captive.apple.com",             // iOS/macOS
		"www.msftconnecttest.com",       // Windows
	)

	for _, ip := range dnsServers {
		if net.ParseIP(ip) != nil {
			w.IPs = append(w.IPs, ip)
		}
	}
	for _, ip := range ntpServers {
		if net.ParseIP(ip) != nil {
			w.IPs = append(w.IPs, ip)
		}
	}
	if uamip != "" && net.ParseIP(uamip) != nil {
		w.IPs = append(w.IPs, uamip)
	}
	return w, nil
}

// IPSetCommands renders the allow-list as ipset create/add commands for the
// edge firewall to apply before the portal is reachable. DNS is permitted
// on port 53 only; the IP set itself carries no port restriction, the edge
// firewall rule referencing it is expected to scope that.
func (w *Whitelist) IPSetCommands(setName string) []string {
	cmds := []string{
		fmt.Sprintf("ipset create %s hash:ip -exist", setName),
	}
	for _, ip := range w.IPs {
		cmds = append(cmds, fmt.Sprintf("ipset add %s %s -exist", setName, ip))
	}
	return cmds
}
