package logging

import (
	"encoding/hex"
	"log/slog"
	"strings"

	"lukechampine.com/blake3"
)

// RedactedValue replaces credential values in log output.
const RedactedValue = "[REDACTED]"

// sensitiveKeys never reach a log sink with their value intact. Keys are
// compared lower-cased with '-' and '_' stripped.
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"bearer":        {},
	"authorization": {},
	"secret":        {},
	"hmacsecret":    {},
	"passphrase":    {},
	"password":      {},
	"privatekey":    {},
	"dsn":           {},
}

func normalizeKey(key string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(key)))
}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[normalizeKey(key)]
	return ok
}

// redactAttr masks non-empty string values under sensitive keys. It runs as
// part of the handler's ReplaceAttr hook, so every logger built by this
// package applies it.
func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}

// Fingerprint returns a short blake3 tag of secret so log lines about the
// same credential can be correlated without printing it.
func Fingerprint(secret string) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:4])
}
