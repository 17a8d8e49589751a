package netutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Listen binds the preferred address, or with autoFallback the first free
// candidate. The listener is returned open so the address cannot be taken
// between selection and serving.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address unavailable: %s: %w", preferred, err)
		}
	}

	for _, addr := range candidates {
		if addr == "" || addr == preferred {
			continue
		}
		if ln, err := net.Listen("tcp", addr); err == nil {
			return ln, nil
		}
	}
	return nil, errors.New("no available bind addresses")
}

// Candidates turns a comma separated list of ports or host:port pairs into
// addresses on host.
func Candidates(host, csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, ":") {
			out = append(out, part)
			continue
		}
		out = append(out, net.JoinHostPort(host, part))
	}
	return out
}
