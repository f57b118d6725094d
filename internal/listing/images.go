package listing

import (
	"net/url"
	"strings"
)

// ResolveImages turns image references into listing URLs, keeping at most
// max of them. Relative references are joined to baseURL when one is set;
// absolute URLs and anything that cannot be joined pass through unchanged.
func ResolveImages(refs []string, baseURL string, max int) []string {
	var base *url.URL
	if baseURL != "" {
		if u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/"); err == nil && u.IsAbs() {
			base = u
		}
	}

	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if max > 0 && len(out) == max {
			break
		}
		out = append(out, resolveOne(base, ref))
	}
	return out
}

func resolveOne(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() || base == nil {
		return ref
	}
	return base.ResolveReference(&url.URL{Path: strings.TrimLeft(u.Path, "/"), RawQuery: u.RawQuery}).String()
}
