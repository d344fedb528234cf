package livedata

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var privateRanges = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedHosts = []string{
	"localhost",
	"localhost.localdomain",
	"ip6-localhost",
	"ip6-loopback",
	"metadata.google.internal",
	"kubernetes.default",
	"kubernetes.default.svc",
}

var privateNets []*net.IPNet

func init() {
	for _, cidr := range privateRanges {
		if _, network, err := net.ParseCIDR(cidr); err == nil {
			privateNets = append(privateNets, network)
		}
	}
}

// IsPrivateIP reports whether ip is loopback, link-local or in a private range
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	for _, network := range privateNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, blocked := range blockedHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

// ValidatePublicURL rejects URLs that point at internal hosts or private
// addresses. Hostnames are not resolved.
func ValidatePublicURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http and https schemes are allowed")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if isBlockedHost(host) {
		return fmt.Errorf("access to internal hostname '%s' is not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivateIP(ip) {
		return fmt.Errorf("access to private IP address '%s' is not allowed", host)
	}
	return nil
}
