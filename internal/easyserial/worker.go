package easyserial

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/Tomochka91/ULogger/common"
	"github.com/Tomochka91/ULogger/internal/dbwriter"
	"github.com/Tomochka91/ULogger/internal/queryx"
	"github.com/Tomochka91/ULogger/internal/serialport"
	"github.com/Tomochka91/ULogger/internal/workerbase"
)

const (
	readChunkSize     = 1024
	reconnectInterval = 2 * time.Second
)

// Worker polls a single easy-serial connection: opens the COM port,
// frames and parses incoming bytes, and writes resulting records to a
// database. Ported from loggers/easy_serial/worker.go.
type Worker struct {
	*workerbase.Base

	config   Config
	logger   common.LoggerInterface
	dbWriter dbwriter.Writer
	framer   *Framer

	portMu sync.Mutex
	port   serialport.Port

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  atomic.Bool
}

// New creates an easy-serial worker.
func New(config Config, dbWriter dbwriter.Writer, logger common.LoggerInterface) (*Worker, error) {
	framer, err := NewFramer(config.Parser.Preamble, config.Parser.HasPreamble, config.Parser.Terminator)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		Base:     workerbase.NewBase(),
		config:   config,
		logger:   logger,
		dbWriter: dbWriter,
		framer:   framer,
	}
	w.InitExtraMetrics(map[string]any{
		"bytes_read_total":        0,
		"frames_total":            0,
		"parse_ok_total":          0,
		"parse_fail_total":        0,
		"parse_latency_ms_last":   nil,
		"parse_latency_ms_avg":    nil,
		"serial_open_fail_total":  0,
		"serial_reconnects_total": 0,
	})
	return w, nil
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

// Join waits for the loop to exit. A worker that was never started
// has no loop to wait for, so it returns true immediately instead of
// blocking for the full timeout.
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
	w.closeSerial()
	if w.dbWriter != nil {
		w.dbWriter.Close()
	}
}

func (w *Worker) closeSerial() {
	w.portMu.Lock()
	p := w.port
	w.port = nil
	w.portMu.Unlock()
	if p != nil {
		_ = p.Close()
	}
}

// interruptibleSleep blocks for d or until stop is requested, whichever
// comes first, returning false if interrupted. Unlike the original's
// plain time.Sleep during reconnect backoff, this lets Stop take effect
// immediately instead of waiting out the full reconnect interval.
func (w *Worker) interruptibleSleep(d time.Duration) bool {
	select {
	case <-w.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func (w *Worker) openSerial() bool {
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
		w.SetError("open error: " + err.Error())
		return false
	}

	w.portMu.Lock()
	w.port = p
	w.portMu.Unlock()

	w.LogMessage("opened serial port " + w.config.Port.Port)
	return true
}

func (w *Worker) readFromSerial() []byte {
	w.portMu.Lock()
	p := w.port
	w.portMu.Unlock()
	if p == nil {
		return nil
	}

	_ = p.SetReadTimeout(w.config.Port.Timeout)
	buf := make([]byte, readChunkSize)
	n, err := p.Read(buf)
	if err != nil {
		w.SetError("read error: " + err.Error())
		w.closeSerial()
		return nil
	}
	if n > 0 {
		w.MetricInc("bytes_read_total", n, true)
	}
	return buf[:n]
}

// runLoop is the main worker loop: connect, read, parse, write to DB.
//
// Two behaviors differ from the original here by design: the
// reconnect backoff sleep is interruptible (see interruptibleSleep),
// and failing to open the port with autoconnect disabled is not a
// worker fault — it stops the worker normally instead of forcing it
// into the error state, since the operator configured autoconnect off
// deliberately.
func (w *Worker) runLoop() {
	defer func() {
		w.running.Store(false)
		w.closeSerial()
		w.MetricSet("stopped_at", time.Now(), false)
		if w.State() != workerbase.StateError {
			w.SetState(workerbase.StateStopped)
		}
		close(w.doneCh)
	}()

	autoConnect := w.config.Port.AutoConnect
	encoding := w.config.Parser.Encoding

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.portMu.Lock()
		open := w.port != nil
		w.portMu.Unlock()

		if !open {
			opened := w.openSerial()
			if !opened {
				w.MetricInc("serial_open_fail_total", 1, true)
				if !autoConnect {
					w.SetError("failed to open port")
					return
				}
				w.SetError("failed to open port, will retry...")
				if !w.interruptibleSleep(reconnectInterval) {
					return
				}
				continue
			}
			w.MetricInc("serial_reconnects_total", 1, true)
			continue
		}

		data := w.readFromSerial()
		if len(data) == 0 {
			select {
			case <-w.stopCh:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		frames := w.framer.Feed(data)
		w.MetricInc("frames_total", len(frames), true)
		for _, payload := range frames {
			text := decodeText(payload, encoding)
			w.LogMessage(text)

			var parsed map[string]any
			parseErr := w.MetricTimeBlock("parse_latency_ms_last", "parse_latency_ms_avg", true, func() error {
				var err error
				parsed, err = ParsePayloadText(text, w.config.Parser)
				return err
			})

			if parseErr != nil {
				w.SetError("parse error: " + parseErr.Error())
				w.MetricInc("parse_fail_total", 1, true)
				continue
			}

			w.MetricInc("parse_ok_total", 1, true)
			w.handleParsedMessage(parsed)
		}
	}
}

// decodeText decodes payload using the named encoding, substituting the
// Unicode replacement character for any byte sequence the encoding
// can't decode, mirroring payload.decode(encoding, errors="replace").
func decodeText(payload []byte, encName string) string {
	name := strings.TrimSpace(encName)
	if name == "" || isUTF8Name(name) {
		return strings.ToValidUTF8(string(payload), "\uFFFD")
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return strings.ToValidUTF8(string(payload), "\uFFFD")
	}

	decoded, _, err := transform.Bytes(encoding.ReplaceUnsupported(enc.NewDecoder()), payload)
	if err != nil {
		return strings.ToValidUTF8(string(payload), "\uFFFD")
	}
	return string(decoded)
}

func isUTF8Name(name string) bool {
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return true
	default:
		return false
	}
}

func (w *Worker) handleParsedMessage(parsed map[string]any) {
	if !w.config.Enabled {
		return
	}
	if w.config.QueryTemplate == "" || w.dbWriter == nil {
		return
	}

	sql, params, err := queryx.Build(w.config.QueryTemplate, parsed)
	if err != nil {
		w.SetError("db write error: " + err.Error())
		w.MetricInc("db_write_fail_total", 1, false)
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
