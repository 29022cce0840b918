package mbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tomochka91/ULogger/common"
	"github.com/Tomochka91/ULogger/internal/dbwriter"
	"github.com/Tomochka91/ULogger/internal/queryx"
	"github.com/Tomochka91/ULogger/internal/serialport"
	"github.com/Tomochka91/ULogger/internal/workerbase"
)

// CounterTotalProvider resolves the current total count for a device
// on a mbox-counter connection, or false if not yet available. This
// is how a mbox worker learns about package events without coupling
// directly to the mbox-counter worker implementation.
type CounterTotalProvider func(counterConnID, deviceID int) (int, bool)

// startCommand is the fixed command frame that tells the scale to
// start labeling, written verbatim on SendStartCommand.
var startCommand = []byte("\x02CHG#LABEL01.LTG\x03")

// Worker polls a single scale/label serial device, reconciles its
// output against an optional external piece counter, and writes
// resulting records to a database. Ported from loggers/mbox/worker.go.
type Worker struct {
	*workerbase.Base

	config               Config
	logger               common.LoggerInterface
	dbWriter             dbwriter.Writer
	counterTotalProvider CounterTotalProvider

	port serialport.Port

	transformer *Transformer

	counterLastTotal *int
	pendingPackTS    *time.Time
	missDeadlineTS   *time.Time
	pendingMiss      int
	lastGoodVars     map[string]any

	stateMu sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  atomic.Bool
}

// New creates a mbox worker.
func New(config Config, dbWriter dbwriter.Writer, counterTotalProvider CounterTotalProvider, logger common.LoggerInterface) *Worker {
	w := &Worker{
		Base:                 workerbase.NewBase(),
		config:               config,
		logger:               logger,
		dbWriter:             dbWriter,
		counterTotalProvider: counterTotalProvider,
		transformer:          NewTransformer(config),
	}
	w.InitExtraMetrics(map[string]any{
		"frames_total":            0,
		"parse_ok_total":          0,
		"parse_fail_total":        0,
		"serial_open_fail_total":  0,
		"serial_reconnects_total": 0,
		"packs_total":             0,
		"packs_clean_total":       0,
		"packs_miss_total":        0,
		"counter_increments_total": 0,
		"counter_confirm_total":   0,
	})
	return w
}

// Start begins the polling loop. Idempotent.
func (w *Worker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return nil
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.SetState(workerbase.StateRunning)
	w.MetricSet("runs_total", 1, false)
	w.MetricSet("started_at", time.Now(), false)
	go w.runLoop()
	return nil
}

// Stop requests the loop to exit. Idempotent.
func (w *Worker) Stop(ctx context.Context) error {
	if !w.running.Load() {
		return nil
	}
	w.SetState(workerbase.StateStopping)
	w.stopOnce.Do(func() { close(w.stopCh) })
	return nil
}

// Join waits for the loop to exit.
func (w *Worker) Join(timeout time.Duration) bool {
	if w.doneCh == nil {
		return true
	}
	select {
	case <-w.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsRunning reports whether the loop is active.
func (w *Worker) IsRunning() bool { return w.running.Load() }

// Close releases the serial port and the database writer.
func (w *Worker) Close() {
	w.stateMu.Lock()
	port := w.port
	w.port = nil
	w.stateMu.Unlock()
	if port != nil {
		_ = port.Close()
	}
	if w.dbWriter != nil {
		w.dbWriter.Close()
	}
}

// SendStartCommand writes the fixed label-start command to the open
// serial port. It fails if the worker (and thus the port) is not
// running.
func (w *Worker) SendStartCommand() error {
	w.stateMu.Lock()
	port := w.port
	w.stateMu.Unlock()

	if port == nil {
		return fmt.Errorf("serial port is not open (worker must be running)")
	}
	if _, err := port.Write(startCommand); err != nil {
		w.SetError("send start command failed: " + err.Error())
		return err
	}
	w.LogMessage("sent start command")
	return nil
}

func (w *Worker) interruptibleSleep(d time.Duration) bool {
	select {
	case <-w.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func (w *Worker) runLoop() {
	defer func() {
		w.running.Store(false)
		w.SetState(workerbase.StateStopped)
		w.MetricSet("stopped_at", time.Now(), false)
		close(w.doneCh)
	}()

	framer := &Framer{}

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		now := time.Now()
		w.tickCounterLogic(now)
		w.tickMissInsert(now)

		w.stateMu.Lock()
		port := w.port
		w.stateMu.Unlock()

		if port == nil {
			p, err := serialport.Open(serialport.Settings{
				Port:        w.config.Port.Port,
				BaudRate:    w.config.Port.BaudRate,
				DataBits:    w.config.Port.DataBits,
				Parity:      w.config.Port.Parity,
				StopBits:    w.config.Port.StopBits,
				FlowControl: w.config.Port.FlowControl,
				Timeout:     w.config.Port.Timeout,
			})
			if err != nil {
				w.MetricInc("serial_open_fail_total", 1, true)
				w.SetError("serial open failed: " + err.Error())
				if !w.config.Port.AutoConnect {
					return
				}
				if !w.interruptibleSleep(2 * time.Second) {
					return
				}
				continue
			}
			w.stateMu.Lock()
			w.port = p
			w.stateMu.Unlock()
			w.MetricInc("serial_reconnects_total", 1, true)
			continue
		}

		_ = port.SetReadTimeout(50 * time.Millisecond)
		buf := make([]byte, 256)
		n, readErr := port.Read(buf)
		if n == 0 {
			if readErr != nil {
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}

		for _, payload := range framer.Feed(buf[:n]) {
			w.MetricInc("frames_total", 1, true)
			rec, err := ParseLabelFrame(payload, w.config.Encoding)
			if err != nil {
				w.MetricInc("parse_fail_total", 1, true)
				w.SetError("parse failed: " + err.Error())
				continue
			}

			w.MetricInc("parse_ok_total", 1, true)
			result := w.transformer.Transform(w.config.MboxID, rec)

			ts := time.Now().Add(w.config.CounterCleanTimeout)
			w.stateMu.Lock()
			w.pendingPackTS = &ts
			w.stateMu.Unlock()

			w.handleResult(result)
		}
	}
}

// tickCounterLogic reconciles the externally-tracked piece counter
// against the pending-pack-confirmation state.
//
// Note: pendingPackTS has no expiry check anywhere in this loop — it
// is only cleared by a subsequent counter increment below. This is
// preserved verbatim from the original (see DESIGN.md Open Question
// #1), not a bug this port fixes.
func (w *Worker) tickCounterLogic(now time.Time) {
	total, ok := w.readCounterTotal()
	if !ok {
		return
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	if w.counterLastTotal == nil {
		v := total
		w.counterLastTotal = &v
		return
	}

	delta := total - *w.counterLastTotal
	if delta <= 0 {
		return
	}

	w.MetricInc("counter_increments_total", delta, true)
	*w.counterLastTotal = total

	if w.pendingPackTS != nil {
		w.pendingPackTS = nil
		w.MetricInc("counter_confirm_total", 1, true)
		return
	}

	w.pendingMiss += delta
	deadline := now.Add(w.config.CounterMissTimeout)
	w.missDeadlineTS = &deadline
}

func (w *Worker) readCounterTotal() (int, bool) {
	if !w.config.ExtCounter || w.counterTotalProvider == nil {
		return 0, false
	}
	if w.config.CounterConnectionID == nil || w.config.CounterDeviceID == nil {
		return 0, false
	}
	return w.counterTotalProvider(*w.config.CounterConnectionID, *w.config.CounterDeviceID)
}

func (w *Worker) tickMissInsert(now time.Time) {
	w.stateMu.Lock()
	deadline := w.missDeadlineTS
	if deadline == nil || now.Before(*deadline) {
		w.stateMu.Unlock()
		return
	}
	w.missDeadlineTS = nil
	pending := w.pendingMiss
	w.stateMu.Unlock()

	if pending <= 0 {
		return
	}

	limit := w.config.MissInsertLimit
	if limit < 1 {
		limit = 1
	}
	n := pending
	if n > limit {
		n = limit
	}

	w.stateMu.Lock()
	w.pendingMiss -= n
	w.stateMu.Unlock()

	for i := 0; i < n; i++ {
		w.insertMissPack()
	}
}

// insertMissPack writes a synthetic record for a counter increment
// that produced no corresponding label frame.
//
// "lot" here is overridden to config.Lot, and "created_at" uses a
// different timestamp layout than both the worker's own log entries
// and handleResult's created_at (which carries the parsed frame's
// timestamp) — both discrepancies are preserved verbatim from the
// original (see DESIGN.md).
func (w *Worker) insertMissPack() {
	if !isConnectionEnabled(w.config) || w.dbWriter == nil {
		return
	}

	w.stateMu.Lock()
	var base map[string]any
	if w.config.MissStrategy == "last" && w.lastGoodVars != nil {
		base = cloneVars(w.lastGoodVars)
	}
	w.stateMu.Unlock()

	if base == nil {
		base = cloneVars(w.config.MissDefault)
	}

	base["mbox_id"] = w.config.MboxID
	base["tare"] = w.config.Tare
	base["lot"] = w.config.Lot
	base["on_error"] = true
	base["error_info"] = w.config.MissErrorLabel
	base["created_at"] = time.Now().Format("2006-01-02 15:04:05")

	err := w.MetricTimeBlock("db_write_latency_ms_last", "db_write_latency_ms_avg", false, func() error {
		sql, params, buildErr := queryx.Build(w.config.QueryTemplate, base)
		if buildErr != nil {
			return buildErr
		}
		return w.dbWriter.Write(context.Background(), sql, params)
	})

	if err != nil {
		w.MetricInc("db_write_fail_total", 1, false)
		w.MetricSet("last_db_error_at", time.Now(), false)
		w.SetError("miss pack db write failed: " + err.Error())
		return
	}

	w.MetricInc("db_writes_total", 1, false)
	w.MetricInc("packs_total", 1, true)
	w.MetricInc("packs_miss_total", 1, true)
	w.MetricSet("last_db_write_at", time.Now(), false)
}

func (w *Worker) handleResult(result TransformResult) {
	if !isConnectionEnabled(w.config) || w.config.QueryTemplate == "" || w.dbWriter == nil {
		return
	}

	err := w.MetricTimeBlock("db_write_latency_ms_last", "db_write_latency_ms_avg", false, func() error {
		sql, params, buildErr := queryx.Build(w.config.QueryTemplate, result.Variables)
		if buildErr != nil {
			return buildErr
		}
		return w.dbWriter.Write(context.Background(), sql, params)
	})

	if err != nil {
		w.MetricInc("db_write_fail_total", 1, false)
		w.MetricSet("last_db_error_at", time.Now(), false)
		w.SetError("db write failed: " + err.Error())
		return
	}

	w.stateMu.Lock()
	w.lastGoodVars = cloneVars(result.Variables)
	w.stateMu.Unlock()

	w.MetricInc("db_writes_total", 1, false)
	w.MetricInc("packs_total", 1, true)
	w.MetricInc("packs_clean_total", 1, true)
	w.MetricSet("last_db_write_at", time.Now(), false)
}

func cloneVars(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// isConnectionEnabled reports whether this protocol-specific Config
// carries a non-empty QueryTemplate. The enabled flag on the outer
// ConnectionConfig is not visible here; the runtime manager passes this
// Config through unchanged.
func isConnectionEnabled(cfg Config) bool {
	return cfg.QueryTemplate != ""
}
