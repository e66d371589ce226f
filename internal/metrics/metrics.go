package metrics

import (
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Parse error kinds tracked separately, matching ingest.Kind
var errorKinds = []string{
	"missing_header",
	"header_shape",
	"quote_format",
	"row_shape",
	"field_conversion",
	"type_invariant",
	"io",
}

// Metrics holds process-wide counters for Prometheus export
type Metrics struct {
	startTime time.Time

	// HTTP request metrics
	httpRequestsTotal   atomic.Int64
	httpRequestsSuccess atomic.Int64
	httpRequestsError   atomic.Int64
	httpLatencySum      atomic.Int64 // microseconds
	httpLatencyCount    atomic.Int64

	// Parsing
	logsOpened     atomic.Int64
	eventsParsed   atomic.Int64
	eventsExported atomic.Int64
	bytesRead      atomic.Int64
	parseErrors    map[string]*atomic.Int64

	// Storage
	storageWritesTotal     atomic.Int64
	storageWriteBytesTotal atomic.Int64
	storageErrorsTotal     atomic.Int64

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{
		startTime:   time.Now(),
		parseErrors: make(map[string]*atomic.Int64, len(errorKinds)),
		logger:      zerolog.Nop(),
	}
	for _, kind := range errorKinds {
		m.parseErrors[kind] = new(atomic.Int64)
	}
	return m
}

// Init initializes the metrics with a logger
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	m.logger.Debug().Msg("Metrics collector initialized")
	return m
}

// HTTP Metrics
func (m *Metrics) IncHTTPRequests() { m.httpRequestsTotal.Add(1) }
func (m *Metrics) IncHTTPSuccess()  { m.httpRequestsSuccess.Add(1) }
func (m *Metrics) IncHTTPError()    { m.httpRequestsError.Add(1) }

// RecordHTTPLatency records HTTP request latency in microseconds
func (m *Metrics) RecordHTTPLatency(durationMicros int64) {
	m.httpLatencySum.Add(durationMicros)
	m.httpLatencyCount.Add(1)
}

// Parse metrics
func (m *Metrics) IncLogsOpened()                { m.logsOpened.Add(1) }
func (m *Metrics) IncEventsParsed(count int64)   { m.eventsParsed.Add(count) }
func (m *Metrics) IncEventsExported(count int64) { m.eventsExported.Add(count) }
func (m *Metrics) IncBytesRead(bytes int64)      { m.bytesRead.Add(bytes) }

// IncParseError counts a parse failure by kind. Unknown kinds count as "io".
func (m *Metrics) IncParseError(kind string) {
	counter, ok := m.parseErrors[kind]
	if !ok {
		counter = m.parseErrors["io"]
	}
	counter.Add(1)
}

// ParseErrors returns the error count for one kind
func (m *Metrics) ParseErrors(kind string) int64 {
	if counter, ok := m.parseErrors[kind]; ok {
		return counter.Load()
	}
	return 0
}

// Storage metrics
func (m *Metrics) IncStorageWrites()                { m.storageWritesTotal.Add(1) }
func (m *Metrics) IncStorageWriteBytes(bytes int64) { m.storageWriteBytesTotal.Add(bytes) }
func (m *Metrics) IncStorageErrors()                { m.storageErrorsTotal.Add(1) }

// Snapshot returns all metrics as a map for JSON output
func (m *Metrics) Snapshot() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snapshot := map[string]interface{}{
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"goroutines":     runtime.NumGoroutine(),

		"memory_alloc_bytes":      memStats.Alloc,
		"memory_heap_alloc_bytes": memStats.HeapAlloc,
		"gc_cycles":               memStats.NumGC,

		"http_requests_total":   m.httpRequestsTotal.Load(),
		"http_requests_success": m.httpRequestsSuccess.Load(),
		"http_requests_error":   m.httpRequestsError.Load(),
		"http_latency_sum_us":   m.httpLatencySum.Load(),
		"http_latency_count":    m.httpLatencyCount.Load(),

		"logs_opened_total":     m.logsOpened.Load(),
		"events_parsed_total":   m.eventsParsed.Load(),
		"events_exported_total": m.eventsExported.Load(),
		"bytes_read_total":      m.bytesRead.Load(),

		"storage_writes_total":      m.storageWritesTotal.Load(),
		"storage_write_bytes_total": m.storageWriteBytesTotal.Load(),
		"storage_errors_total":      m.storageErrorsTotal.Load(),
	}
	for kind, counter := range m.parseErrors {
		snapshot["parse_errors_"+kind] = counter.Load()
	}
	return snapshot
}

// PrometheusFormat returns metrics in Prometheus text exposition format
func (m *Metrics) PrometheusFormat() string {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var b []byte
	b = appendFamily(b, "fmilog_uptime_seconds", "Time since the process started", "gauge")
	b = appendMetric(b, "fmilog_uptime_seconds", time.Since(m.startTime).Seconds())

	b = appendFamily(b, "fmilog_goroutines", "Number of goroutines", "gauge")
	b = appendMetric(b, "fmilog_goroutines", float64(runtime.NumGoroutine()))

	b = appendFamily(b, "fmilog_memory_heap_alloc_bytes", "Heap memory allocated", "gauge")
	b = appendMetric(b, "fmilog_memory_heap_alloc_bytes", float64(memStats.HeapAlloc))

	b = appendFamily(b, "fmilog_http_requests_total", "Total HTTP requests", "counter")
	b = appendMetric(b, "fmilog_http_requests_total", float64(m.httpRequestsTotal.Load()))

	b = appendFamily(b, "fmilog_http_requests_error_total", "Failed HTTP requests", "counter")
	b = appendMetric(b, "fmilog_http_requests_error_total", float64(m.httpRequestsError.Load()))

	b = appendFamily(b, "fmilog_logs_opened_total", "Event logs whose header was parsed", "counter")
	b = appendMetric(b, "fmilog_logs_opened_total", float64(m.logsOpened.Load()))

	b = appendFamily(b, "fmilog_events_parsed_total", "Events decoded from data rows", "counter")
	b = appendMetric(b, "fmilog_events_parsed_total", float64(m.eventsParsed.Load()))

	b = appendFamily(b, "fmilog_events_exported_total", "Events written by exporters", "counter")
	b = appendMetric(b, "fmilog_events_exported_total", float64(m.eventsExported.Load()))

	b = appendFamily(b, "fmilog_bytes_read_total", "Bytes of event log input received", "counter")
	b = appendMetric(b, "fmilog_bytes_read_total", float64(m.bytesRead.Load()))

	b = appendFamily(b, "fmilog_parse_errors_total", "Parse failures by kind", "counter")
	kinds := make([]string, 0, len(m.parseErrors))
	for kind := range m.parseErrors {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		b = appendMetric(b, `fmilog_parse_errors_total{kind="`+kind+`"}`, float64(m.parseErrors[kind].Load()))
	}

	b = appendFamily(b, "fmilog_storage_writes_total", "Files written to storage", "counter")
	b = appendMetric(b, "fmilog_storage_writes_total", float64(m.storageWritesTotal.Load()))

	return string(b)
}

func appendFamily(b []byte, name, help, typ string) []byte {
	b = append(b, "# HELP "+name+" "+help+"\n"...)
	return append(b, "# TYPE "+name+" "+typ+"\n"...)
}

func appendMetric(b []byte, name string, value float64) []byte {
	b = append(b, name...)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, value, 'g', -1, 64)
	return append(b, '\n')
}
