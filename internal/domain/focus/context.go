// Package focus defines the observed user context and the policy that
// classifies it as inside or outside the allowed focus envelope.
package focus

import "strings"

// Context is a snapshot of the user's foreground activity. ActiveHost is
// empty when the foreground application is not a browser or the host could
// not be determined.
type Context struct {
	AppName    string
	ActiveHost string
}

// Mode selects how the policy interprets its lists.
type Mode string

const (
	// ModeBlocklist blocks contexts that match the blocked lists.
	ModeBlocklist Mode = "blocklist"

	// ModeAllowlist blocks everything except contexts that match the
	// allowed lists. A missing host with a non-matching app is blocked
	// (fail-closed).
	ModeAllowlist Mode = "allowlist"
)

// Policy is an immutable classification snapshot. Engines take a fresh
// snapshot at evaluation time; list edits never mutate a Policy in place.
type Policy struct {
	Mode           Mode
	BlockedApps    []string
	BlockedDomains []string
	AllowedApps    []string
	AllowedDomains []string

	// SelfAppName is the monitoring application itself, always exempt.
	SelfAppName string
}

// Blocked classifies a context against the policy.
func (p Policy) Blocked(ctx Context) bool {
	if p.SelfAppName != "" && strings.EqualFold(ctx.AppName, p.SelfAppName) {
		return false
	}

	switch p.Mode {
	case ModeAllowlist:
		if containsFold(p.AllowedApps, ctx.AppName) {
			return false
		}
		if ctx.ActiveHost != "" && hostMatchesAny(ctx.ActiveHost, p.AllowedDomains) {
			return false
		}
		return true

	default: // blocklist
		if containsFold(p.BlockedApps, ctx.AppName) {
			return true
		}
		if ctx.ActiveHost != "" && hostMatchesAny(ctx.ActiveHost, p.BlockedDomains) {
			return true
		}
		return false
	}
}

// HostMatchesDomain reports whether host equals the domain or is one of its
// subdomains. Matching is case-insensitive.
func HostMatchesDomain(host, domain string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	domain = strings.ToLower(strings.TrimSpace(domain))
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func hostMatchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if HostMatchesDomain(host, d) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
