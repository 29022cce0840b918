package modbustcp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tomochka91/ULogger/client"
	"github.com/Tomochka91/ULogger/common"
	"github.com/Tomochka91/ULogger/internal/dbwriter"
	"github.com/Tomochka91/ULogger/internal/modbusdecode"
	"github.com/Tomochka91/ULogger/internal/queryx"
	"github.com/Tomochka91/ULogger/internal/workerbase"
	"github.com/Tomochka91/ULogger/transport"
)

const reconnectInterval = 2 * time.Second

// Worker polls the holding registers of one or more Modbus TCP slaves
// (unit IDs) over a single TCP connection and writes the decoded
// variables to a database. Ported from loggers/modbus_tcp/worker.py;
// reuses transport.TCPTransport and client.BaseClient unmodified, one
// BaseClient per unit ID sharing one transport.
type Worker struct {
	*workerbase.Base

	config   Config
	logger   common.LoggerInterface
	dbWriter dbwriter.Writer

	clientMu  sync.Mutex
	tr        common.Transport
	bySlaveID map[byte]common.Client

	valuesMu sync.Mutex
	values   map[string]any

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  atomic.Bool
}

// New creates a Modbus TCP worker.
func New(config Config, dbWriter dbwriter.Writer, logger common.LoggerInterface) *Worker {
	w := &Worker{
		Base:     workerbase.NewBase(),
		config:   config,
		logger:   logger,
		dbWriter: dbWriter,
		values:   map[string]any{},
	}
	w.InitExtraMetrics(map[string]any{
		"connect_fail_total":      0,
		"reconnects_total":        0,
		"polls_total":             0,
		"poll_latency_ms_last":    nil,
		"poll_latency_ms_avg":     nil,
		"requests_total":          0,
		"request_latency_ms_last": nil,
		"request_latency_ms_avg":  nil,
		"responses_error_total":   0,
		"registers_read_total":    0,
		"variables_ok_total":      0,
		"variables_fail_total":    0,
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
	w.MetricInc("runs_total", 1, false)
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

// Close releases the TCP transport and the database writer.
func (w *Worker) Close() {
	w.closeClient()
	if w.dbWriter != nil {
		w.dbWriter.Close()
	}
}

func (w *Worker) closeClient() {
	w.clientMu.Lock()
	tr := w.tr
	w.tr = nil
	w.bySlaveID = nil
	w.clientMu.Unlock()
	if tr != nil {
		_ = tr.Disconnect(context.Background())
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

func (w *Worker) openClient() bool {
	tr := transport.NewTCPTransport(
		w.config.Host.Address,
		transport.WithPort(w.config.Host.Port),
		transport.WithTimeoutOption(w.config.Host.Timeout),
		transport.WithTransportLogger(w.logger),
	)

	ctx, cancel := context.WithTimeout(context.Background(), w.config.Host.Timeout+2*time.Second)
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		w.SetError("failed to connect Modbus TCP client: " + err.Error())
		return false
	}

	byID := make(map[byte]common.Client, len(w.config.Slaves))
	for _, slave := range w.config.Slaves {
		byID[slave.SlaveID] = client.NewBaseClient(tr,
			client.WithLogger(w.logger),
			client.WithUnitID(common.UnitID(slave.SlaveID)))
	}

	w.clientMu.Lock()
	w.tr = tr
	w.bySlaveID = byID
	w.clientMu.Unlock()

	w.LogMessage(fmt.Sprintf("Modbus TCP connected to %s:%d", w.config.Host.Address, w.config.Host.Port))
	return true
}

// runLoop is the main worker loop: connect, poll all slaves, write
// aggregated variables to the database.
func (w *Worker) runLoop() {
	defer func() {
		w.running.Store(false)
		w.closeClient()
		w.MetricSet("stopped_at", time.Now(), false)
		if w.State() != workerbase.StateError {
			w.SetState(workerbase.StateStopped)
		}
		close(w.doneCh)
	}()

	pollInterval := w.config.PollInterval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	autoConnect := w.config.Host.AutoConnect

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.clientMu.Lock()
		hasClient := w.tr != nil
		w.clientMu.Unlock()

		if !hasClient {
			opened := w.openClient()
			if !opened {
				w.MetricInc("connect_fail_total", 1, true)
				if !autoConnect {
					w.SetError("failed to open Modbus TCP client")
					return
				}
				w.SetError("failed to open Modbus TCP client, will retry...")
				if !w.interruptibleSleep(reconnectInterval) {
					return
				}
				continue
			}
			w.MetricInc("reconnects_total", 1, true)
		}

		w.MetricInc("polls_total", 1, true)
		_ = w.MetricTimeBlock("poll_latency_ms_last", "poll_latency_ms_avg", true, func() error {
			w.pollOnce()
			return nil
		})

		if !w.interruptibleSleep(pollInterval) {
			return
		}
	}
}

func (w *Worker) pollOnce() {
	w.clientMu.Lock()
	byID := w.bySlaveID
	w.clientMu.Unlock()
	if byID == nil {
		w.LogMessage("Modbus TCP client is not set; skipping poll")
		return
	}

	payload := map[string]any{}
	for _, slave := range w.config.Slaves {
		c, ok := byID[slave.SlaveID]
		if !ok {
			continue
		}
		w.pollSlave(c, slave, payload)
	}

	w.handlePolledValues(payload)
}

func (w *Worker) pollSlave(c common.Client, slave SlaveConfig, payload map[string]any) {
	for _, v := range slave.Variables {
		value, err := w.readVariable(c, v)
		if err != nil {
			w.MetricInc("variables_fail_total", 1, true)
			w.SetError(fmt.Sprintf("modbus tcp read error (slave=%d, name=%s, var=%s): %s",
				slave.SlaveID, slave.SlaveName, v.Name, err.Error()))
			continue
		}
		w.updateValue(v.Name, value)
	}

	for _, v := range slave.Variables {
		payload[v.Name] = w.currentValue(v)
	}
}

func (w *Worker) readVariable(c common.Client, v VariableConfig) (float64, error) {
	count := modbusdecode.RegisterCount(v.Encoding)

	w.MetricInc("requests_total", 1, true)

	var registers []common.RegisterValue
	err := w.MetricTimeBlock("request_latency_ms_last", "request_latency_ms_avg", true, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var readErr error
		registers, readErr = c.ReadHoldingRegisters(ctx, common.Address(v.Address), common.Quantity(count))
		return readErr
	})
	if err != nil {
		w.MetricInc("responses_error_total", 1, true)
		return 0, err
	}
	if len(registers) < count {
		w.MetricInc("responses_error_total", 1, true)
		return 0, fmt.Errorf("not enough registers: need %d, got %d", count, len(registers))
	}

	w.MetricInc("registers_read_total", count, true)

	value, err := modbusdecode.Decode(v.Encoding, registers, v.K, v.B)
	if err != nil {
		return 0, err
	}

	w.MetricInc("variables_ok_total", 1, true)
	return value, nil
}

func (w *Worker) updateValue(name string, value float64) {
	w.valuesMu.Lock()
	w.values[name] = value
	w.valuesMu.Unlock()
}

func (w *Worker) currentValue(v VariableConfig) any {
	w.valuesMu.Lock()
	defer w.valuesMu.Unlock()
	if val, ok := w.values[v.Name]; ok {
		return val
	}
	return v.Default
}

func (w *Worker) handlePolledValues(payload map[string]any) {
	if !w.config.Enabled {
		return
	}
	if w.config.QueryTemplate == "" || w.dbWriter == nil {
		return
	}

	sql, params, err := queryx.Build(w.config.QueryTemplate, payload)
	if err != nil {
		w.MetricInc("db_write_fail_total", 1, false)
		w.SetError("db write error: " + err.Error())
		return
	}

	writeErr := w.MetricTimeBlock("db_write_latency_ms_last", "db_write_latency_ms_avg", false, func() error {
		return w.dbWriter.Write(context.Background(), sql, params)
	})

	if writeErr != nil {
		w.MetricSet("last_db_error_at", time.Now(), false)
		w.MetricInc("db_write_fail_total", 1, false)
		w.SetError("db write error: " + writeErr.Error())
		return
	}

	w.MetricSet("last_db_write_at", time.Now(), false)
	w.MetricInc("db_writes_total", 1, false)
}
