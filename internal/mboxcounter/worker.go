package mboxcounter

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tomochka91/ULogger/common"
	"github.com/Tomochka91/ULogger/internal/serialport"
	"github.com/Tomochka91/ULogger/internal/workerbase"
)

// Worker polls a set of mbox-counter devices over one shared serial
// port and exposes their latest total counts to other workers via
// GetTotal. It never writes to a database — it is purely a
// shared-state service for mbox workers wired with ext_counter=true.
// Ported from loggers/mbox_counter/worker.py.
type Worker struct {
	*workerbase.Base

	config Config
	logger common.LoggerInterface

	port serialport.Port

	totalsMu sync.RWMutex
	totals   map[int]uint32

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  atomic.Bool
}

// New creates a mbox-counter worker for the given configuration.
func New(config Config, logger common.LoggerInterface) *Worker {
	w := &Worker{
		Base:   workerbase.NewBase(),
		config: config,
		logger: logger,
		totals: make(map[int]uint32),
	}
	w.InitExtraMetrics(map[string]any{
		"requests_total":          0,
		"responses_total":         0,
		"timeouts_total":          0,
		"crc_fail_total":          0,
		"parse_fail_total":        0,
		"serial_open_fail_total":  0,
		"serial_reconnects_total": 0,
		"poll_latency_ms_last":    nil,
		"poll_latency_ms_avg":     nil,
	})
	return w
}

// GetTotal returns the most recently polled total count for a device,
// or false if it has never been successfully polled.
func (w *Worker) GetTotal(deviceID int) (uint32, bool) {
	w.totalsMu.RLock()
	defer w.totalsMu.RUnlock()
	v, ok := w.totals[deviceID]
	return v, ok
}

// Start begins the polling loop in a new goroutine. Idempotent.
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

// Stop requests the polling loop to exit. Idempotent.
func (w *Worker) Stop(ctx context.Context) error {
	if !w.running.Load() {
		return nil
	}
	w.SetState(workerbase.StateStopping)
	w.stopOnce.Do(func() { close(w.stopCh) })
	return nil
}

// Join blocks until the worker loop has exited or the timeout elapses.
// A worker that was never started returns true immediately.
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

// IsRunning reports whether the polling loop is active.
func (w *Worker) IsRunning() bool { return w.running.Load() }

// Close releases the serial port. Must be called after Join returns,
// matching the runtime manager's stop/join/close shutdown sequence —
// the polling goroutine owns w.port without its own lock and only
// stops touching it once doneCh has been observed closed.
func (w *Worker) Close() {
	if w.port != nil {
		_ = w.port.Close()
		w.port = nil
	}
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

	pollInterval := w.config.PollInterval
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		if w.port == nil {
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
					w.SetState(workerbase.StateStopped)
					return
				}
				if !w.interruptibleSleep(2 * time.Second) {
					return
				}
				continue
			}
			w.port = p
			w.MetricInc("serial_reconnects_total", 1, true)
		}

		err := w.MetricTimeBlock("poll_latency_ms_last", "poll_latency_ms_avg", true, w.pollOnce)
		if err != nil {
			w.MetricInc("parse_fail_total", 1, true)
			w.SetError("poll failed: " + err.Error())
		}

		if !w.interruptibleSleep(pollInterval) {
			return
		}
	}
}

// pollOnce flushes any stale frames left over from the previous
// iteration, then polls every enabled device in turn.
func (w *Worker) pollOnce() error {
	framer := &Framer{}
	flushStale(w.port, framer)

	for _, dev := range w.config.Devices {
		if !dev.Enabled {
			continue
		}
		if err := w.pollDevice(dev); err != nil {
			w.MetricInc("parse_fail_total", 1, true)
			w.SetError("device poll failed: " + err.Error())
		}
	}
	return nil
}

// flushStale reads and discards any bytes (and frames) currently
// sitting in the port's input buffer, to avoid mixing stale frames
// from a previous iteration with the next device's response.
func flushStale(port serialport.Port, framer *Framer) {
	_ = port.SetReadTimeout(10 * time.Millisecond)
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			framer.Feed(buf[:n])
		}
		if err != nil || n == 0 {
			return
		}
	}
}

func (w *Worker) pollDevice(dev DeviceConfig) error {
	req, err := BuildReadRequest(dev.Serial)
	if err != nil {
		return err
	}
	w.MetricInc("requests_total", 1, true)

	if _, err := w.port.Write(req); err != nil {
		return err
	}

	timeout := w.config.Port.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	deadline := time.Now().Add(timeout)

	framer := &Framer{}
	buf := make([]byte, 256)

	for time.Now().Before(deadline) {
		select {
		case <-w.stopCh:
			return nil
		default:
		}

		_ = w.port.SetReadTimeout(10 * time.Millisecond)
		n, readErr := w.port.Read(buf)
		if n == 0 {
			if readErr != nil {
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}

		for _, frame := range framer.Feed(buf[:n]) {
			parsed, parseErr := ParseResponseFrame(frame)
			if parseErr != nil {
				if strings.Contains(strings.ToLower(parseErr.Error()), "crc") {
					w.MetricInc("crc_fail_total", 1, true)
				} else {
					w.MetricInc("parse_fail_total", 1, true)
				}
				continue
			}
			if parsed.Serial != dev.Serial {
				continue
			}

			w.MetricInc("responses_total", 1, true)
			w.totalsMu.Lock()
			w.totals[dev.DeviceID] = parsed.TotalCount
			w.totalsMu.Unlock()
			w.LogMessage("counter total updated for device " + dev.Name)
			return nil
		}
	}

	w.MetricInc("timeouts_total", 1, true)
	return errTimeout{}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "no response frame before timeout" }
