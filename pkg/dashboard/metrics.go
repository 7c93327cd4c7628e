// Package dashboard is the SRE observability view over the log store:
// derived health metrics, the recent-entries panel and a live feed.
package dashboard

import (
	"fmt"
	"math"

	"github.com/fluxorio/todochaos/pkg/logstore"
)

// Health is the derived system health
type Health string

const (
	Healthy  Health = "Healthy"
	Degraded Health = "Degraded"
)

// Metrics are computed from a log snapshot
type Metrics struct {
	TotalEvents    int     `json:"totalEvents"`
	ErrorCount     int     `json:"errorCount"`
	WarnCount      int     `json:"warnCount"`
	ErrorRate      string  `json:"errorRate"`
	ErrorRateValue float64 `json:"errorRateValue"`
	SystemHealth   Health  `json:"systemHealth"`
	ActiveUsers    int     `json:"activeUsers"`
}

// Derive computes metrics over snapshot
func Derive(snapshot []logstore.LogEntry) Metrics {
	m := Metrics{TotalEvents: len(snapshot)}
	users := make(map[string]struct{})
	for _, e := range snapshot {
		switch e.Level {
		case logstore.LevelError:
			m.ErrorCount++
		case logstore.LevelWarn:
			m.WarnCount++
		}
		if uid := uidOf(e.Data); uid != "" {
			users[uid] = struct{}{}
		}
	}
	m.ActiveUsers = len(users)

	rate := 0.0
	if m.TotalEvents > 0 {
		rate = float64(m.ErrorCount) / float64(m.TotalEvents) * 100
	}
	m.ErrorRate = fmt.Sprintf("%.2f", rate)
	m.ErrorRateValue = math.Round(rate*100) / 100

	m.SystemHealth = Healthy
	if m.ErrorCount > 0 {
		m.SystemHealth = Degraded
	}
	return m
}

func uidOf(data any) string {
	switch d := data.(type) {
	case map[string]any:
		uid, _ := d["uid"].(string)
		return uid
	case map[string]string:
		return d["uid"]
	}
	return ""
}
