package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "stakepoold", Options{Env: "test", Level: "debug"})
	logger.Debug("deposit accepted", slog.String("op", "deposite"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "deposit accepted", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "stakepoold", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "deposite", line["op"])
	require.Contains(t, line, "timestamp")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "stakepoold", Options{Level: "warn"})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestSensitiveAttributesAreMasked(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "stakepoold", Options{Level: "info"})
	logger.Info("receipts opened",
		slog.String("dsn", "postgres://pool:hunter2@db/receipts"),
		slog.String("HMAC_Secret", "s3cret"),
		slog.String("token", ""),
		slog.String("caller", "stk1qqqq"),
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, RedactedValue, line["dsn"])
	require.Equal(t, RedactedValue, line["HMAC_Secret"])
	require.Equal(t, "", line["token"])
	require.Equal(t, "stk1qqqq", line["caller"])
	require.NotContains(t, buf.String(), "hunter2")
}

func TestFingerprint(t *testing.T) {
	require.Empty(t, Fingerprint(" "))
	fp := Fingerprint("eyJhbGciOi.payload.sig")
	require.Len(t, fp, 8)
	require.Equal(t, fp, Fingerprint("eyJhbGciOi.payload.sig"))
	require.NotEqual(t, fp, Fingerprint("other"))
}
