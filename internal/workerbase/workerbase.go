// Package workerbase provides the shared connection-worker state
// machine: lifecycle state, bounded message/error ring buffers, and
// EMA-smoothed metrics. Every protocol worker (easy_serial, mbox,
// mbox_counter, modbus_rtu, modbus_tcp) embeds a *Base.
package workerbase

import (
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of a connection worker.
type State string

const (
	StateCreated  State = "created"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

const (
	messageBufferCap = 200
	errorBufferCap   = 50
	emaAlpha         = 0.2
)

// timestampLayout matches the original service's log/error entry
// format (day-month-year, 24h clock).
const timestampLayout = "02-01-2006 15:04:05"

// Base holds the fields common to every connection worker.
type Base struct {
	stateMu sync.Mutex
	state   State

	logMu           sync.Mutex
	recentMessages  []string
	recentErrors    []string
	lastError       string

	metricsMu    sync.Mutex
	metrics      map[string]any
	extraMetrics map[string]any
}

// NewBase creates a Base in the Created state with zeroed metrics.
func NewBase() *Base {
	return &Base{
		state: StateCreated,
		metrics: map[string]any{
			"runs_total":                0,
			"started_at":                nil,
			"stopped_at":                nil,
			"errors_total":              0,
			"consecutive_errors":        0,
			"last_error_at":             nil,
			"messages_total":            0,
			"last_message_at":           nil,
			"db_writes_total":           0,
			"db_write_fail_total":       0,
			"last_db_write_at":          nil,
			"last_db_error_at":          nil,
			"db_write_latency_ms_last":  nil,
			"db_write_latency_ms_avg":   nil,
		},
		extraMetrics: map[string]any{},
	}
}

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

// SetState transitions the worker to a new lifecycle state.
func (b *Base) SetState(s State) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.state = s
}

// LastError returns the most recently recorded error message, if any.
func (b *Base) LastError() string {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	return b.lastError
}

// RecentMessages returns a copy of the bounded message ring buffer.
func (b *Base) RecentMessages() []string {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	out := make([]string, len(b.recentMessages))
	copy(out, b.recentMessages)
	return out
}

// RecentErrors returns a copy of the bounded error ring buffer.
func (b *Base) RecentErrors() []string {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	out := make([]string, len(b.recentErrors))
	copy(out, b.recentErrors)
	return out
}

// LogMessage records an informational message and resets the
// consecutive-error counter.
func (b *Base) LogMessage(msg string) {
	entry := fmt.Sprintf("%s — %s", time.Now().Format(timestampLayout), msg)

	b.logMu.Lock()
	b.recentMessages = appendBounded(b.recentMessages, entry, messageBufferCap)
	b.logMu.Unlock()

	b.metricsMu.Lock()
	incr(b.metrics, "messages_total", 1)
	b.metrics["last_message_at"] = time.Now()
	b.metrics["consecutive_errors"] = 0
	b.metricsMu.Unlock()
}

// SetError records an error message. It does not itself transition
// the lifecycle state — callers decide whether an error is fatal.
func (b *Base) SetError(msg string) {
	entry := fmt.Sprintf("%s — %s", time.Now().Format(timestampLayout), msg)

	b.logMu.Lock()
	b.recentErrors = appendBounded(b.recentErrors, entry, errorBufferCap)
	b.lastError = entry
	b.logMu.Unlock()

	b.metricsMu.Lock()
	incr(b.metrics, "errors_total", 1)
	incr(b.metrics, "consecutive_errors", 1)
	b.metrics["last_error_at"] = time.Now()
	b.metricsMu.Unlock()
}

func appendBounded(buf []string, entry string, cap int) []string {
	buf = append(buf, entry)
	if len(buf) > cap {
		buf = buf[len(buf)-cap:]
	}
	return buf
}

func incr(m map[string]any, key string, delta int) {
	cur, _ := m[key].(int)
	m[key] = cur + delta
}

// MetricInc increments a named metric counter by value (default 1).
func (b *Base) MetricInc(name string, value int, extra bool) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	target := b.metrics
	if extra {
		target = b.extraMetrics
	}
	incr(target, name, value)
}

// MetricSet sets a named metric to an arbitrary value.
func (b *Base) MetricSet(name string, value any, extra bool) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	target := b.metrics
	if extra {
		target = b.extraMetrics
	}
	target[name] = value
}

// InitExtraMetrics sets defaults for extra metric keys without
// overwriting ones already present.
func (b *Base) InitExtraMetrics(defaults map[string]any) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	for k, v := range defaults {
		if _, ok := b.extraMetrics[k]; !ok {
			b.extraMetrics[k] = v
		}
	}
}

// GetMetrics returns copies of both metric maps.
func (b *Base) GetMetrics() (metrics map[string]any, extra map[string]any) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()

	metrics = make(map[string]any, len(b.metrics))
	for k, v := range b.metrics {
		metrics[k] = v
	}
	extra = make(map[string]any, len(b.extraMetrics))
	for k, v := range b.extraMetrics {
		extra[k] = v
	}
	return metrics, extra
}

// MetricEMAUpdate records the latest value and updates an
// exponentially-smoothed average (alpha=0.2, rounded to 3 decimals).
func (b *Base) MetricEMAUpdate(lastKey, avgKey string, value float64, extra bool) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()

	target := b.metrics
	if extra {
		target = b.extraMetrics
	}

	target[lastKey] = round3(value)
	if prev, ok := target[avgKey].(float64); ok {
		target[avgKey] = round3(emaAlpha*value + (1-emaAlpha)*prev)
	} else {
		target[avgKey] = round3(value)
	}
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

// MetricTimeBlock times fn and records the elapsed milliseconds via
// MetricEMAUpdate, even if fn returns an error — mirroring the
// original's finally-block EMA update around a potentially-raising
// call.
func (b *Base) MetricTimeBlock(lastKey, avgKey string, extra bool, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)
	b.MetricEMAUpdate(lastKey, avgKey, elapsedMs, extra)
	return err
}
