package audit

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEvent(t *testing.T) {
	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	event := NewEvent("trust.established", "org-1", at, map[string]any{"to": "org-2"})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "trust.established", event.Action)
	assert.Equal(t, "org-1", event.Subject)
	assert.Equal(t, at, event.Timestamp)
	assert.Equal(t, "org-2", event.Details["to"])

	other := NewEvent("trust.established", "org-1", at, nil)
	assert.NotEqual(t, event.ID, other.ID)
}

func TestLogSinkRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Record(NewEvent("score.calculated", "org-1", time.Now(), nil))

	assert.Contains(t, buf.String(), "score.calculated")
	assert.Contains(t, buf.String(), "org-1")
}
