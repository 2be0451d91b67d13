package config

import (
	"net/url"
	"regexp"
	"strings"
)

var passwordParam = regexp.MustCompile(`(?i)password=[^\s&]+`)

// RedactURL strips the password from a connection URL so it can be
// logged. Unparseable input is replaced entirely.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	if u.User != nil {
		name := u.User.Username()
		if name == "" {
			name = "redacted"
		}
		u.User = url.User(name)
	}
	return u.String()
}

// Scrub renders err with any of the given connection URLs redacted. Drivers
// echo the DSN back in some connection errors.
func Scrub(err error, urls ...string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, raw := range urls {
		if raw == "" {
			continue
		}
		replacement := RedactURL(raw)
		if replacement == "" {
			replacement = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, raw, replacement)
	}
	return passwordParam.ReplaceAllString(msg, "password=redacted")
}
