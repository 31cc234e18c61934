package signalr

import (
	"net/url"
	"strings"
)

// negotiateURL computes the negotiate endpoint for base, per spec.md §4.F:
// append "/negotiate" (ensuring a single "/"), preserve the existing query,
// add negotiateVersion=1, and add useStatefulReconnect=true when requested.
//
// Structured url.Values manipulation is used here rather than the regex
// scheme substitution the teacher uses elsewhere, per the spec's steer
// toward structured URL components (spec.md §9).
func negotiateURL(base *url.URL, useStatefulReconnect bool) *url.URL {
	u := *base
	u.Path = joinPath(u.Path, "negotiate")
	q := u.Query()
	q.Set("negotiateVersion", "1")
	if useStatefulReconnect {
		q.Set("useStatefulReconnect", "true")
	}
	u.RawQuery = q.Encode()
	return &u
}

// connectURL appends "id=<connectionToken>" to base's query, preserving any
// existing query parameters, per spec.md §6.
func connectURL(base *url.URL, connectionToken string) *url.URL {
	u := *base
	q := u.Query()
	q.Set("id", connectionToken)
	u.RawQuery = q.Encode()
	return &u
}

// joinPath appends segment to base ensuring exactly one separating "/".
func joinPath(base, segment string) string {
	if base == "" {
		return "/" + segment
	}
	if strings.HasSuffix(base, "/") {
		return base + segment
	}
	return base + "/" + segment
}

// promoteWebSocketScheme turns http->ws and https->wss, case-insensitively,
// per spec.md §6.
func promoteWebSocketScheme(u *url.URL) *url.URL {
	out := *u
	switch {
	case strings.EqualFold(out.Scheme, "https"):
		out.Scheme = "wss"
	case strings.EqualFold(out.Scheme, "http"):
		out.Scheme = "ws"
	}
	return &out
}
