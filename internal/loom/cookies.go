package loom

import (
	"fmt"
	"strings"
)

// Cookie is one browser cookie as exported by the setup extension.
// Field names follow the Chrome extension cookie export shape.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expirationDate,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// FilterCookies keeps cookies that belong to the platform domain
// (exact or any subdomain, with or without a leading dot).
func FilterCookies(cookies []Cookie) []Cookie {
	var out []Cookie
	for _, c := range cookies {
		d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Domain)), ".")
		if d == Domain || strings.HasSuffix(d, "."+Domain) {
			out = append(out, c)
		}
	}
	return out
}

// CookieHeader renders cookies as a single Cookie request header value.
func CookieHeader(cookies []Cookie) string {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", c.Name, c.Value))
	}
	return strings.Join(pairs, "; ")
}

// MergeCookies overlays replacements onto base by cookie name, appending
// names not present before. Navigation and probe responses may rotate
// individual tokens without reissuing the whole jar.
func MergeCookies(base, replacements []Cookie) []Cookie {
	if len(replacements) == 0 {
		return base
	}
	merged := append([]Cookie(nil), base...)
	index := make(map[string]int, len(merged))
	for i, c := range merged {
		index[c.Name] = i
	}
	for _, r := range replacements {
		if r.Name == "" {
			continue
		}
		if i, ok := index[r.Name]; ok {
			merged[i] = r
		} else {
			index[r.Name] = len(merged)
			merged = append(merged, r)
		}
	}
	return merged
}
