package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	counters     map[string]int64
}

// Counter names recorded by the pipelines.
const (
	CounterTicketsIngested  = "tickets_ingested"
	CounterMessagesSkipped  = "messages_skipped"
	CounterIngestionErrors  = "ingestion_errors"
	CounterIngestionRuns    = "ingestion_runs"
	CounterDegradedAnalyses = "degraded_analyses"
	CounterDispatchSent     = "dispatch_sent"
	CounterDispatchFailed   = "dispatch_failed"
	CounterSchedulerSkipped = "scheduler_ticks_skipped"
	CounterEventsDropped    = "events_dropped"
)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		counters:     make(map[string]int64),
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

// Add increments a named pipeline counter by delta.
func (m *Metrics) Add(name string, delta int64) {
	if m == nil || delta == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += delta
}

// Inc increments a named pipeline counter by one.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[string]int64 `json:"counters"`
	Requests map[string]int64 `json:"requests"`
	Errors   map[string]int64 `json:"errors"`
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Counters: map[string]int64{},
		Requests: map[string]int64{},
		Errors:   map[string]int64{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copyInto(snap.Counters, m.counters)
	copyInto(snap.Requests, m.requestCount)
	copyInto(snap.Errors, m.errorCount)
	return snap
}

// Counter returns the value of a named pipeline counter.
func (m *Metrics) Counter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// CounterNames returns the pipeline counters recorded so far, sorted.
func (m *Metrics) CounterNames() []string {
	snap := m.Snapshot()
	names := make([]string, 0, len(snap.Counters))
	for name := range snap.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyInto(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] = v
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
