package x11

import (
	"net/url"
	"strings"
)

// browserClasses maps WM_CLASS values of known browsers. Only browser
// windows get host extraction; other applications have no active host.
var browserClasses = map[string]bool{
	"firefox":          true,
	"firefox-esr":      true,
	"chromium":         true,
	"chromium-browser": true,
	"google-chrome":    true,
	"brave-browser":    true,
	"vivaldi-stable":   true,
	"opera":            true,
	"microsoft-edge":   true,
	"librewolf":        true,
}

// browserTitleSuffixes are the application names browsers append to window
// titles, stripped before host extraction.
var browserTitleSuffixes = []string{
	"Mozilla Firefox",
	"Google Chrome",
	"Chromium",
	"Brave",
	"Vivaldi",
	"Opera",
	"Microsoft Edge",
	"LibreWolf",
}

// IsKnownBrowser reports whether the WM_CLASS belongs to a known browser.
func IsKnownBrowser(appName string) bool {
	return browserClasses[strings.ToLower(appName)]
}

// HostFromTitle extracts the active host from a browser window title, best
// effort. Browsers differ in title formats; extensions commonly surface the
// URL or host in the title, and some pages title themselves with their
// domain. An empty result is a legal outcome: absence of a host simply
// means no domain rules apply.
func HostFromTitle(appName, title string) string {
	if !IsKnownBrowser(appName) {
		return ""
	}

	for _, suffix := range browserTitleSuffixes {
		title = strings.TrimSuffix(title, " - "+suffix)
		title = strings.TrimSuffix(title, " — "+suffix)
	}

	// Prefer an explicit URL anywhere in the title.
	for _, field := range strings.Fields(title) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			if u, err := url.Parse(field); err == nil && u.Hostname() != "" {
				return strings.ToLower(u.Hostname())
			}
		}
	}

	// Otherwise look for a bare hostname among the title segments.
	for _, segment := range splitTitle(title) {
		for _, field := range strings.Fields(segment) {
			field = strings.Trim(field, "()[]{}<>,;:\"'")
			if looksLikeHost(field) {
				return strings.ToLower(field)
			}
		}
	}
	return ""
}

func splitTitle(title string) []string {
	title = strings.ReplaceAll(title, " — ", " - ")
	return strings.Split(title, " - ")
}

// looksLikeHost applies a loose hostname shape check: dotted labels of
// letters, digits, and hyphens, with an alphabetic top-level label.
func looksLikeHost(s string) bool {
	if len(s) < 4 || !strings.Contains(s, ".") {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if !isHostRune(r) {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}

func isHostRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-':
		return true
	}
	return false
}
