package log

import "net/url"

// SanitizeURL strips the query string and fragment from a URL before
// it is written to a debug log line, since Microsoft's manifest payload
// URLs can carry SAS-style signed query strings. Malformed input is
// returned as-is.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
