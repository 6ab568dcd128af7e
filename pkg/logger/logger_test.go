package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLast(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log := New("not-a-level")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestWithContext_CarriesRequestAndActor(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("debug", &buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithActorID(ctx, 42)
	log.WithContext(ctx).Info("hello")

	entry := decodeLast(t, &buf)
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, float64(42), entry["actor_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestAudit_FailureLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("info", &buf)

	log.Audit(context.Background(), 7, "cancel_appointment", "APT00001", false, map[string]interface{}{"reason": "terminal"})

	entry := decodeLast(t, &buf)
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, true, entry["audit"])
	assert.Equal(t, "cancel_appointment", entry["action"])
	assert.Equal(t, false, entry["success"])
}

func TestHTTPRequest_LevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("info", &buf)

	log.HTTPRequest(context.Background(), "POST", "/api/v1/bookings", "test", "127.0.0.1", 409, 3, nil)
	assert.Equal(t, "warning", decodeLast(t, &buf)["level"])

	log.HTTPRequest(context.Background(), "POST", "/api/v1/bookings", "test", "127.0.0.1", 503, 3, nil)
	assert.Equal(t, "error", decodeLast(t, &buf)["level"])
}
