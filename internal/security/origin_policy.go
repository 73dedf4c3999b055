package security

import (
	"net"
	"net/url"
	"strings"
)

// Tiers reported in an OriginDecision.
const (
	OriginTierAbsent   = "absent"
	OriginTierExplicit = "explicit"
	OriginTierBuiltin  = "builtin"
)

var (
	builtinOriginHosts    = []string{"localhost", "127.0.0.1"}
	builtinOriginSuffixes = []string{"netlify.app", "vercel.app", "github.io"}
)

// OriginDecision is the outcome of evaluating a request's Origin header.
type OriginDecision struct {
	Allowed bool
	Tier    string
	// Origin is the value to echo in Access-Control-Allow-Origin. Empty when
	// the origin was absent or rejected.
	Origin string
}

// OriginPolicy decides which cross-origin callers may see a response.
//
// With an explicit allowlist, an origin is allowed when it equals an entry or
// shares its hostname. Without one, the built-in hostnames and suffixes apply.
type OriginPolicy struct {
	exact    map[string]struct{}
	hosts    map[string]struct{}
	suffixes []string
}

func NewOriginPolicy(allowlist []string) *OriginPolicy {
	p := &OriginPolicy{
		exact: make(map[string]struct{}),
		hosts: make(map[string]struct{}),
	}
	for _, entry := range allowlist {
		entry = strings.TrimSpace(entry)
		// Wildcards cannot be echoed for credentialed requests.
		if entry == "" || entry == "*" {
			continue
		}
		p.exact[entry] = struct{}{}
		if host := originHostOnly(entry); host != "" {
			p.hosts[host] = struct{}{}
		}
	}
	if len(p.exact) == 0 {
		for _, h := range builtinOriginHosts {
			p.hosts[h] = struct{}{}
		}
		p.suffixes = builtinOriginSuffixes
	}
	return p
}

// ParseOriginList splits a comma-separated allowlist.
func ParseOriginList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Explicit reports whether a configured allowlist is in force.
func (p *OriginPolicy) Explicit() bool { return len(p.exact) > 0 }

func (p *OriginPolicy) Evaluate(origin string) OriginDecision {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return OriginDecision{Allowed: true, Tier: OriginTierAbsent}
	}
	tier := OriginTierBuiltin
	if p.Explicit() {
		tier = OriginTierExplicit
		if _, ok := p.exact[origin]; ok {
			return OriginDecision{Allowed: true, Tier: tier, Origin: origin}
		}
	}
	host := originHostOnly(origin)
	if host == "" {
		return OriginDecision{Tier: tier}
	}
	if _, ok := p.hosts[host]; ok {
		return OriginDecision{Allowed: true, Tier: tier, Origin: origin}
	}
	for _, suffix := range p.suffixes {
		if strings.HasSuffix(host, "."+suffix) {
			return OriginDecision{Allowed: true, Tier: tier, Origin: origin}
		}
	}
	return OriginDecision{Tier: tier}
}

// originHostOnly extracts a lower-cased hostname from a URL or a bare host[:port].
func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		return strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	if strings.ContainsAny(s, "/?#@ ") {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(s, "."))
}
