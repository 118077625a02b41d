package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	jobCount      map[string]int64
	jobDurationMs map[string]int64
	emailsSent    int64
	emailsFailed  int64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Requests      map[string]int64 `json:"requests"`
	Errors        map[string]int64 `json:"errors"`
	Jobs          map[string]int64 `json:"jobs"`
	JobDurationMs map[string]int64 `json:"job_duration_ms"`
	EmailsSent    int64            `json:"emails_sent"`
	EmailsFailed  int64            `json:"emails_failed"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		jobCount:      make(map[string]int64),
		jobDurationMs: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordJob counts a finished job by type and terminal status.
func (m *Metrics) RecordJob(jobType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	key := jobType + "|" + status
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobCount[key]++
	m.jobDurationMs[key] += duration.Milliseconds()
}

// RecordEmail counts a dispatch attempt.
func (m *Metrics) RecordEmail(sent bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sent {
		m.emailsSent++
	} else {
		m.emailsFailed++
	}
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:      copyCounts(m.requestCount),
		Errors:        copyCounts(m.errorCount),
		Jobs:          copyCounts(m.jobCount),
		JobDurationMs: copyCounts(m.jobDurationMs),
		EmailsSent:    m.emailsSent,
		EmailsFailed:  m.emailsFailed,
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
