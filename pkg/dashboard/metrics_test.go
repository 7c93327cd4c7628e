package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluxorio/todochaos/pkg/logstore"
)

func entry(level logstore.Level, data any) logstore.LogEntry {
	return logstore.LogEntry{Level: level, Message: "m", AppVersion: logstore.AppVersion, Data: data}
}

func TestDerive_Empty(t *testing.T) {
	m := Derive(nil)
	assert.Equal(t, Metrics{ErrorRate: "0.00", SystemHealth: Healthy}, m)
}

func TestDerive_Counts(t *testing.T) {
	snap := []logstore.LogEntry{
		entry(logstore.LevelError, nil),
		entry(logstore.LevelWarn, nil),
		entry(logstore.LevelInfo, map[string]any{"uid": "a"}),
	}
	m := Derive(snap)

	assert.Equal(t, 3, m.TotalEvents)
	assert.Equal(t, 1, m.ErrorCount)
	assert.Equal(t, 1, m.WarnCount)
	assert.Equal(t, "33.33", m.ErrorRate)
	assert.Equal(t, 33.33, m.ErrorRateValue)
	assert.Equal(t, Degraded, m.SystemHealth)
	assert.Equal(t, 1, m.ActiveUsers)
}

func TestDerive_HealthyWithWarnings(t *testing.T) {
	m := Derive([]logstore.LogEntry{entry(logstore.LevelWarn, nil), entry(logstore.LevelInfo, nil)})
	assert.Equal(t, Healthy, m.SystemHealth)
	assert.Equal(t, "0.00", m.ErrorRate)
}

func TestDerive_AllErrors(t *testing.T) {
	m := Derive([]logstore.LogEntry{entry(logstore.LevelError, nil), entry(logstore.LevelError, nil)})
	assert.Equal(t, "100.00", m.ErrorRate)
}

func TestDerive_ActiveUsers(t *testing.T) {
	snap := []logstore.LogEntry{
		entry(logstore.LevelInfo, map[string]any{"uid": "a", "taskId": "1"}),
		entry(logstore.LevelInfo, map[string]any{"uid": "a", "taskId": "2"}),
		entry(logstore.LevelInfo, map[string]string{"uid": "b"}),
		entry(logstore.LevelInfo, map[string]any{"uid": 42}),
		entry(logstore.LevelInfo, "plain"),
	}
	assert.Equal(t, 2, Derive(snap).ActiveUsers)
}

func TestDerive_Pure(t *testing.T) {
	snap := []logstore.LogEntry{entry(logstore.LevelError, nil), entry(logstore.LevelInfo, nil)}
	assert.Equal(t, Derive(snap), Derive(snap))
}
