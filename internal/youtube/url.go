// Package youtube recognises YouTube video URLs.
package youtube

import (
	"net/url"
	"strings"
)

// allowedHosts are the hostnames accepted by IsYouTubeURL, lower-case.
var allowedHosts = map[string]struct{}{
	"youtube.com":     {},
	"www.youtube.com": {},
	"m.youtube.com":   {},
	"youtu.be":        {},
	"www.youtu.be":    {},
}

// IsYouTubeURL reports whether raw is an http or https URL whose host is one
// of the allowed YouTube hostnames. Parse failures count as not a YouTube URL.
func IsYouTubeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}

	// Hostname strips the port and IPv6 brackets.
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	_, ok := allowedHosts[host]
	return ok
}
