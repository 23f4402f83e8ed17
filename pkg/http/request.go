package http

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClientIP is returned when a request carries no usable address.
// All such requests share one rate limit bucket.
const UnknownClientIP = "unknown"

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges allowed to set forwarding headers
}

// ExtractClientIP returns the address used to key per-client throttling.
//
// Order:
// 1. first valid X-Forwarded-For entry, when the peer is a trusted proxy
// 2. X-Real-IP, when the peer is a trusted proxy
// 3. the peer address from RemoteAddr
// 4. UnknownClientIP
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && isTrustedProxy(remoteIP, config.TrustedProxies) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
			return xri
		}
	}

	if remoteIP == "" {
		return UnknownClientIP
	}
	return remoteIP
}

// getRemoteAddr extracts the address from RemoteAddr, or "" when it holds no valid IP
func getRemoteAddr(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	if ip, _, err := net.SplitHostPort(addr); err == nil && isValidIP(ip) {
		return ip
	}
	if isValidIP(addr) {
		return addr
	}
	return ""
}

// isTrustedProxy checks if an IP address is within any of the trusted proxy CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // Skip invalid CIDR ranges
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

// isValidIP checks if a string is a valid IPv4 or IPv6 address
func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// WantsJSON reports whether the client asked for a JSON response instead of a redirect
func WantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
