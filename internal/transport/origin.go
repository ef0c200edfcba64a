package transport

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// IsLoopbackAddr reports whether addr ("host:port") binds to a loopback-only
// interface. A bind to any other interface is reachable from other hosts on
// the network, so a browser anywhere on that network can be used to mount a
// DNS-rebinding attack against it unless the caller has explicitly
// configured which origins to trust (spec §4.2.2, §6). Exported so
// internal/config can reject a non-loopback bind with no allow-list at
// config-validation time, before a listener is ever constructed.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "" {
		return false // "" / "0.0.0.0" / "[::]" style binds listen on every interface
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// requireOriginPolicy rejects a listener configuration that has no way to
// satisfy spec §6's Origin allow-list requirement: binding to a non-loopback
// address without an explicit allow-list would otherwise accept every
// Origin by default.
func requireOriginPolicy(addr string, allowedOrigins []string) error {
	if len(allowedOrigins) == 0 && !IsLoopbackAddr(addr) {
		return fmt.Errorf("transport: addr %q is not loopback; allowed_origins must be configured (spec §6)", addr)
	}
	return nil
}

// originAllowed reports whether origin passes the configured allow-list
// (spec §4.2.2, §6 — DNS-rebinding protection). A request with no Origin
// header always passes: non-browser clients (CLI tools, server-to-server
// calls) never send one, and Origin is the only signal a browser can't
// forge. With an explicit allow-list, origin must appear in it verbatim.
// With no allow-list — only possible on a loopback bind, enforced by
// requireOriginPolicy at construction — origin itself must resolve to
// loopback, the remaining guard against a page in a LAN-accessible browser
// being used to reach a server that only meant to be reachable locally.
func originAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}
	if len(allowedOrigins) > 0 {
		for _, allowed := range allowedOrigins {
			if strings.EqualFold(allowed, origin) {
				return true
			}
		}
		return false
	}
	return isLoopbackOrigin(origin)
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
