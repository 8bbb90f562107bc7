package access

import (
	"path"
	"strings"
)

// APIPrefix is the prefix of every backend proxy and session route
const APIPrefix = "/api"

var (
	staticPrefixes = []string{"/_next", "/static", "/assets"}
	staticFiles    = []string{"/favicon.ico", "/robots.txt", "/sitemap.xml", "/manifest.json"}

	staticExtensions = map[string]bool{
		".css": true, ".js": true, ".map": true,
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".ico": true, ".webp": true,
		".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	}
)

// IsAPI reports whether p is served by an API route handler. Those routes do
// their own token checks, so the page gate lets them through.
func IsAPI(p string) bool {
	return HasPathPrefix(Clean(p), APIPrefix)
}

// IsStatic reports whether p is a build artefact or a static asset
func IsStatic(p string) bool {
	p = Clean(p)
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	for _, file := range staticFiles {
		if p == file {
			return true
		}
	}
	return staticExtensions[strings.ToLower(path.Ext(p))]
}
