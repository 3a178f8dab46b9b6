package utils

import (
	"net/url"
	"path"
	"strings"
)

// IsValidURL reports whether rawURL is an absolute http(s) URL that points at
// a page rather than a static asset.
func IsValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	// Must have scheme and host
	if u.Scheme == "" || u.Host == "" {
		return false
	}

	// Only allow HTTP and HTTPS
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	switch strings.ToLower(path.Ext(u.Path)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
		".pdf", ".zip", ".exe", ".dmg":
		return false
	}

	return true
}

// NormalizeBaseURL drops the fragment and any trailing slash so page
// suffixes can be appended with a single separator.
func NormalizeBaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.TrimRight(rawURL, "/")
	}

	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String()
}
