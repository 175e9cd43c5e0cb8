package tenant

import (
	"net"
	"net/url"
	"strings"
)

// HostParser extracts tenant subdomains from request hosts.
type HostParser struct {
	rootDomain string
	reserved   map[string]struct{}
}

// NewHostParser builds a parser for hosts under rootDomain. "www" is always
// reserved in addition to the given labels.
func NewHostParser(rootDomain string, reserved []string) *HostParser {
	p := &HostParser{
		rootDomain: strings.TrimSuffix(strings.ToLower(strings.TrimSpace(rootDomain)), "."),
		reserved:   map[string]struct{}{"www": {}},
	}
	for _, label := range reserved {
		p.reserved[strings.ToLower(strings.TrimSpace(label))] = struct{}{}
	}
	return p
}

// ExtractSubdomain returns the tenant label of host, if any. host may be a
// comma-separated X-Forwarded-Host value; only the first entry counts.
func (p *HostParser) ExtractSubdomain(host string) (string, bool) {
	if i := strings.IndexByte(host, ','); i >= 0 {
		host = host[:i]
	}
	host = strings.ToLower(stripPort(strings.TrimSpace(host)))
	host = strings.TrimSuffix(host, ".")
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return "", false
	}

	var label string
	switch {
	case p.rootDomain != "" && host == p.rootDomain:
		return "", false
	case p.rootDomain != "" && strings.HasSuffix(host, "."+p.rootDomain),
		strings.HasSuffix(host, ".localhost"):
		label, _, _ = strings.Cut(host, ".")
	default:
		labels := strings.Split(host, ".")
		if len(labels) < 3 {
			return "", false
		}
		label = labels[0]
	}

	if _, ok := p.reserved[label]; ok {
		return "", false
	}
	if !validLabel(label) {
		return "", false
	}
	return label, true
}

// ExtractSubdomainFromOrigin applies ExtractSubdomain to the host of an
// Origin header value.
func (p *HostParser) ExtractSubdomainFromOrigin(origin string) (string, bool) {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "null" {
		return "", false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return "", false
	}
	return p.ExtractSubdomain(u.Host)
}

func stripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end > 0 {
			return host[1:end]
		}
		return host
	}
	// A bare IPv6 literal has more than one colon and no port.
	if strings.Count(host, ":") == 1 {
		host, _, _ = strings.Cut(host, ":")
	}
	return host
}

func validLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}
