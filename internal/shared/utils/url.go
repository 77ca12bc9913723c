package utils

import (
	"net/url"
	"path"
	"strings"
)

// CompletePath resolves target against base. Absolute URLs, protocol
// relative URLs and data/blob URIs are returned unchanged.
func CompletePath(target, base string) string {
	if target == "" || isSelfContained(target) {
		return target
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme == "" {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	return baseURL.ResolveReference(ref).String()
}

func isSelfContained(target string) bool {
	lower := strings.ToLower(target)
	for _, prefix := range []string{"http://", "https://", "//", "data:", "blob:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// EffectivePath returns the directory URL of rawURL with a trailing slash.
// A last path segment containing a dot is treated as a file and dropped.
func EffectivePath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	pathname := u.Path
	if pathname == "" {
		pathname = "/"
	}
	if strings.Contains(path.Base(pathname), ".") && !strings.HasSuffix(pathname, "/") {
		pathname = pathname[:strings.LastIndex(pathname, "/")+1]
	}
	result := u.Scheme + "://" + u.Host + pathname
	if !strings.HasSuffix(result, "/") {
		result += "/"
	}
	for strings.HasSuffix(result, "//") {
		result = result[:len(result)-1]
	}
	return result
}

// Origin returns scheme://host of rawURL, or "" when it has no host.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
