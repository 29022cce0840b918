package modbustcp_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Tomochka91/ULogger/internal/modbusdecode"
	"github.com/Tomochka91/ULogger/internal/modbustcp"
	"github.com/Tomochka91/ULogger/internal/modbustestserver"
	"github.com/Tomochka91/ULogger/logging"
)

// capturingWriter records every Write call instead of touching a real
// database, so the test can assert on the built SQL/params without a
// Postgres instance.
type capturingWriter struct {
	mu     sync.Mutex
	writes []capturedWrite
}

type capturedWrite struct {
	sql    string
	params map[string]any
}

func (w *capturingWriter) Write(ctx context.Context, sql string, params map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, capturedWrite{sql: sql, params: params})
	return nil
}

func (w *capturingWriter) Close() {}

func (w *capturingWriter) snapshot() []capturedWrite {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]capturedWrite, len(w.writes))
	copy(out, w.writes)
	return out
}

// TestWorkerPollsAgainstSimulatedSlave stands up a real in-process
// Modbus TCP slave, preloads a holding register, and verifies that a
// Worker polling over an actual socket decodes the value and writes it
// through the configured query template.
func TestWorkerPollsAgainstSimulatedSlave(t *testing.T) {
	store := modbustestserver.NewMemoryStore()
	store.SetHoldingRegister(100, 1234)

	sim := modbustestserver.NewSlaveSimulator("127.0.0.1",
		modbustestserver.WithSimulatorPort(15502),
		modbustestserver.WithSimulatorDataStore(store),
		modbustestserver.WithSimulatorLogger(logging.NewNoopLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sim.Start(ctx); err != nil {
		t.Fatalf("starting simulated slave: %v", err)
	}
	defer sim.Stop(ctx)

	writer := &capturingWriter{}
	cfg := modbustcp.Config{
		Host: modbustcp.HostSettings{
			Address:     "127.0.0.1",
			Port:        15502,
			AutoConnect: false,
			Timeout:     2 * time.Second,
		},
		PollInterval: 20 * time.Millisecond,
		Enabled:      true,
		QueryTemplate: "INSERT INTO readings (level) VALUES ({level})",
		Slaves: []modbustcp.SlaveConfig{
			{
				SlaveID:   1,
				SlaveName: "tank1",
				Variables: []modbustcp.VariableConfig{
					{Name: "level", Address: 100, Encoding: modbusdecode.U16},
				},
			},
		},
	}

	worker := modbustcp.New(cfg, writer, logging.NewNoopLogger())
	if err := worker.Start(ctx); err != nil {
		t.Fatalf("starting worker: %v", err)
	}
	defer func() {
		worker.Stop(ctx)
		worker.Join(2 * time.Second)
		worker.Close()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(writer.snapshot()) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	writes := writer.snapshot()
	if len(writes) == 0 {
		t.Fatal("expected at least one write from the polling worker")
	}

	last := writes[len(writes)-1]
	level, ok := last.params["level"]
	if !ok {
		t.Fatalf("expected a %q param in %v", "level", last.params)
	}
	if level.(float64) != 1234 {
		t.Fatalf("expected decoded level 1234, got %v", level)
	}
}
