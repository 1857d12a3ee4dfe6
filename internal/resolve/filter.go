package resolve

import (
	"net/url"
	"path"
	"strings"
)

// Filter drops search results that point at sources the fetcher cannot
// use, such as login-walled social sites.
//
// A pattern starting with "/" is a path glob; "/login/*" also matches
// deeper paths like "/login/a/b". Any other pattern is a host suffix, so
// "facebook.com" covers "m.facebook.com".
type Filter struct {
	hosts []string
	paths []string
}

// NewFilter creates a Filter. An empty pattern list excludes nothing.
func NewFilter(patterns []string) *Filter {
	f := &Filter{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case strings.HasPrefix(p, "/"):
			f.paths = append(f.paths, p)
		default:
			f.hosts = append(f.hosts, strings.TrimPrefix(p, "."))
		}
	}
	return f
}

// Excluded reports whether the URL matches any pattern. Unparseable URLs
// are excluded.
func (f *Filter) Excluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	if f == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range f.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range f.paths {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	return false
}

// matchSegmented is path.Match plus directory-prefix matching for patterns
// ending in "/*".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
	}
	return false
}
