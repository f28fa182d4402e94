package calendar

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// nopLogger はテスト用の出力破棄ロガーを返す。
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingMetrics はメトリクス呼び出しを記録するテスト用コレクタ。
type recordingMetrics struct {
	mu              sync.Mutex
	refreshResults  []bool
	fetchKinds      []string
	fetchSuccesses  []bool
	aggregations    []string
}

func (m *recordingMetrics) RecordSourceFetch(kind string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchKinds = append(m.fetchKinds, kind)
	m.fetchSuccesses = append(m.fetchSuccesses, success)
}

func (m *recordingMetrics) RecordFetchLatency(kind string, duration time.Duration) {}

func (m *recordingMetrics) RecordTokenRefresh(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshResults = append(m.refreshResults, success)
}

func (m *recordingMetrics) RecordAggregation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregations = append(m.aggregations, outcome)
}

func (m *recordingMetrics) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refreshResults)
}

func (m *recordingMetrics) lastAggregation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.aggregations) == 0 {
		return ""
	}
	return m.aggregations[len(m.aggregations)-1]
}
