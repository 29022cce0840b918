package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/Tomochka91/ULogger/internal/dbwriter"
	"github.com/Tomochka91/ULogger/internal/mboxcounter"
	"github.com/Tomochka91/ULogger/internal/settings"
	"github.com/Tomochka91/ULogger/logging"
)

func intPtr(v int) *int { return &v }

func noWriterFactory(ctx context.Context, base settings.DbSettings, config settings.ConnectionConfig) (dbwriter.Writer, error) {
	return nil, nil
}

func TestRegisterConnectionIsIdempotent(t *testing.T) {
	m := NewManager(settings.DefaultDbSettings(), noWriterFactory)
	logger := logging.NewNoopLogger()

	config := settings.ConnectionConfig{
		ID:   intPtr(1),
		Name: "counter-1",
		Type: settings.ConnectionMboxCounter,
		MboxCounter: &mboxcounter.Config{
			Port: mboxcounter.PortSettings{Port: "/dev/null", AutoConnect: false},
		},
	}

	first, err := m.RegisterConnection(context.Background(), config, logger)
	if err != nil {
		t.Fatalf("RegisterConnection returned error: %v", err)
	}

	second, err := m.RegisterConnection(context.Background(), config, logger)
	if err != nil {
		t.Fatalf("second RegisterConnection returned error: %v", err)
	}

	if first != second {
		t.Error("expected RegisterConnection to return the same worker instance on re-registration")
	}
}

func TestRegisterConnectionRequiresID(t *testing.T) {
	m := NewManager(settings.DefaultDbSettings(), noWriterFactory)
	_, err := m.RegisterConnection(context.Background(), settings.ConnectionConfig{Type: settings.ConnectionMboxCounter}, logging.NewNoopLogger())
	if err == nil {
		t.Fatal("expected an error registering a connection without an id")
	}
}

func TestRegisterConnectionRequiresMatchingSubConfig(t *testing.T) {
	m := NewManager(settings.DefaultDbSettings(), noWriterFactory)
	_, err := m.RegisterConnection(context.Background(), settings.ConnectionConfig{
		ID:   intPtr(1),
		Type: settings.ConnectionMboxCounter,
	}, logging.NewNoopLogger())
	if err == nil {
		t.Fatal("expected an error registering a mbox_counter connection with no MboxCounter config")
	}
}

func TestStartStopJoinUnknownConnection(t *testing.T) {
	m := NewManager(settings.DefaultDbSettings(), noWriterFactory)

	if err := m.StartConnection(context.Background(), 99); err == nil {
		t.Error("expected an error starting an unregistered connection")
	}
	if err := m.StopConnection(context.Background(), 99); err != nil {
		t.Errorf("StopConnection on an unregistered connection should be a no-op, got error: %v", err)
	}
	m.JoinConnection(99, 10*time.Millisecond) // must not panic or block
}

func TestShutdownAllClearsRegistry(t *testing.T) {
	m := NewManager(settings.DefaultDbSettings(), noWriterFactory)
	logger := logging.NewNoopLogger()

	config := settings.ConnectionConfig{
		ID:   intPtr(1),
		Type: settings.ConnectionMboxCounter,
		MboxCounter: &mboxcounter.Config{
			Port: mboxcounter.PortSettings{Port: "/dev/null", AutoConnect: false},
		},
	}
	if _, err := m.RegisterConnection(context.Background(), config, logger); err != nil {
		t.Fatalf("RegisterConnection returned error: %v", err)
	}
	if err := m.StartConnection(context.Background(), 1); err != nil {
		t.Fatalf("StartConnection returned error: %v", err)
	}

	m.ShutdownAll(time.Second)

	if _, ok := m.GetWorker(1); ok {
		t.Error("expected GetWorker to report not-found after ShutdownAll")
	}
}

func TestMboxCounterTotalMissingWorkerReturnsFalse(t *testing.T) {
	m := NewManager(settings.DefaultDbSettings(), noWriterFactory)
	_, found := m.mboxCounterTotal(7, 1)
	if found {
		t.Error("expected no total for an unregistered counter connection")
	}
}

func TestMboxCounterTotalBeforeAnyPollReturnsFalse(t *testing.T) {
	m := NewManager(settings.DefaultDbSettings(), noWriterFactory)
	logger := logging.NewNoopLogger()

	config := settings.ConnectionConfig{
		ID:   intPtr(2),
		Type: settings.ConnectionMboxCounter,
		MboxCounter: &mboxcounter.Config{
			Port: mboxcounter.PortSettings{Port: "/dev/null", AutoConnect: false},
		},
	}
	if _, err := m.RegisterConnection(context.Background(), config, logger); err != nil {
		t.Fatalf("RegisterConnection returned error: %v", err)
	}

	// Never polled, so no device total is available yet.
	_, found := m.mboxCounterTotal(2, 1)
	if found {
		t.Error("expected no total before the counter worker has polled any device")
	}
}
