package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue is the placeholder substituted for credential material in logs.
const RedactedValue = "[REDACTED]"

// SanitizeEndpoint strips credential material from an RPC endpoint URL before
// it is logged. Hosted RPC providers commonly embed API keys in the query
// string or path; userinfo and query values are masked, the host is kept.
func SanitizeEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return RedactedValue
	}
	if parsed.User != nil {
		parsed.User = url.User(RedactedValue)
	}
	if parsed.RawQuery != "" {
		values := parsed.Query()
		for key := range values {
			values.Set(key, RedactedValue)
		}
		parsed.RawQuery = values.Encode()
	}
	return parsed.String()
}

// EndpointAttr returns a slog attribute carrying a sanitized endpoint URL.
func EndpointAttr(key, endpoint string) slog.Attr {
	return slog.String(key, SanitizeEndpoint(endpoint))
}
