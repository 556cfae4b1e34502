package preview

import "strings"

// CDNPolicy maps bare package specifiers to URLs on an ES module CDN.
type CDNPolicy struct {
	BaseURL string
	// Versions pins package names to a version or range.
	Versions map[string]string
}

// DefaultCDN serves packages from esm.sh with React pinned to 19.
func DefaultCDN() CDNPolicy {
	return CDNPolicy{
		BaseURL:  "https://esm.sh/",
		Versions: map[string]string{"react": "19", "react-dom": "19"},
	}
}

// URL returns the CDN URL for spec. A pinned version is inserted after the
// package name, before any subpath.
func (p CDNPolicy) URL(spec string) string {
	name, sub := SplitPackage(spec)
	if v := p.Versions[name]; v != "" {
		name += "@" + v
	}
	return strings.TrimSuffix(p.BaseURL, "/") + "/" + name + sub
}

// SplitPackage splits a bare specifier into its package name and subpath.
// Scoped names keep their scope: "@acme/ui/button" is ("@acme/ui", "/button").
func SplitPackage(spec string) (name, subpath string) {
	n := 1
	if strings.HasPrefix(spec, "@") {
		n = 2
	}
	parts := strings.SplitN(spec, "/", n+1)
	if len(parts) <= n {
		return spec, ""
	}
	name = strings.Join(parts[:n], "/")
	return name, spec[len(name):]
}
