package session

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ValidateAddress performs basic syntactic validation of a network address.
// Accepted forms are a bare host ("127.0.0.1", "localhost", "::1") or a
// host:port pair. Nothing is resolved.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is empty", ErrInvalidAddress)
	}
	if strings.TrimSpace(address) != address || strings.ContainsAny(address, " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidAddress, address)
	}

	host := address
	if h, port, err := net.SplitHostPort(address); err == nil {
		p, err := strconv.Atoi(port)
		if err != nil || p < 1 || p > 65535 {
			return fmt.Errorf("%w: %q has an invalid port", ErrInvalidAddress, address)
		}
		host = h
	}

	if net.ParseIP(host) != nil {
		return nil
	}
	if !validHostname(host) {
		return fmt.Errorf("%w: %q is not a valid host", ErrInvalidAddress, address)
	}
	return nil
}

// validHostname checks RFC 1123 label syntax.
func validHostname(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
	}
	return true
}
