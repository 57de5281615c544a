package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64

	relayBatches            int64
	relayEvents             int64
	relayFailures           int64
	relayConsecutiveFailure int64
	relayLastSuccess        time.Time
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
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

// RecordRelaySuccess counts a committed relay batch and resets the failure streak.
func (m *Metrics) RecordRelaySuccess(events int, at time.Time) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayBatches++
	m.relayEvents += int64(events)
	m.relayConsecutiveFailure = 0
	m.relayLastSuccess = at
}

// RecordRelayFailure counts a rolled back relay batch and returns the current
// failure streak.
func (m *Metrics) RecordRelayFailure() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayFailures++
	m.relayConsecutiveFailure++
	return m.relayConsecutiveFailure
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests                 map[string]int64 `json:"requests"`
	Errors                   map[string]int64 `json:"errors"`
	RelayBatches             int64            `json:"relay_batches"`
	RelayEvents              int64            `json:"relay_events"`
	RelayFailures            int64            `json:"relay_failures"`
	RelayConsecutiveFailures int64            `json:"relay_consecutive_failures"`
	RelayLastSuccess         time.Time        `json:"relay_last_success"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Requests:                 make(map[string]int64, len(m.requestCount)),
		Errors:                   make(map[string]int64, len(m.errorCount)),
		RelayBatches:             m.relayBatches,
		RelayEvents:              m.relayEvents,
		RelayFailures:            m.relayFailures,
		RelayConsecutiveFailures: m.relayConsecutiveFailure,
		RelayLastSuccess:         m.relayLastSuccess,
	}
	for k, v := range m.requestCount {
		s.Requests[k] = v
	}
	for k, v := range m.errorCount {
		s.Errors[k] = v
	}
	return s
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
