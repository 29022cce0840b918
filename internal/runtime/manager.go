// Package runtime registers, starts, stops, and inspects connection
// workers, mirroring loggers/manager.py's ConnectionRuntimeManager.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tomochka91/ULogger/common"
	"github.com/Tomochka91/ULogger/internal/dbwriter"
	"github.com/Tomochka91/ULogger/internal/easyserial"
	"github.com/Tomochka91/ULogger/internal/mbox"
	"github.com/Tomochka91/ULogger/internal/mboxcounter"
	"github.com/Tomochka91/ULogger/internal/modbusrtu"
	"github.com/Tomochka91/ULogger/internal/modbustcp"
	"github.com/Tomochka91/ULogger/internal/settings"
	"github.com/Tomochka91/ULogger/internal/workerbase"
)

// ConnectionWorker is the uniform surface the manager drives every
// protocol worker through, matching BaseConnectionWorker's contract.
type ConnectionWorker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Join(timeout time.Duration) bool
	IsRunning() bool
	Close()

	State() workerbase.State
	LastError() string
	RecentMessages() []string
	RecentErrors() []string
	GetMetrics() (metrics map[string]any, extra map[string]any)
}

// counterTotalGetter is satisfied by *mboxcounter.Worker. The manager
// only depends on this narrow surface, mirroring the original's
// getattr(w, "get_total", None) duck typing with a real interface.
type counterTotalGetter interface {
	GetTotal(deviceID int) (uint32, bool)
}

// DBWriterFactory builds a Writer for a connection config, or returns
// nil (with no error) when the connection is disabled or missing the
// fields required to write.
type DBWriterFactory func(ctx context.Context, base settings.DbSettings, config settings.ConnectionConfig) (dbwriter.Writer, error)

// Manager registers and drives connection workers, mirroring
// ConnectionRuntimeManager.
type Manager struct {
	baseDBSettings settings.DbSettings
	writerFactory  DBWriterFactory

	mu      sync.Mutex
	workers map[int]ConnectionWorker
}

// NewManager creates a Manager. A nil factory uses DefaultDBWriterFactory.
func NewManager(baseDBSettings settings.DbSettings, factory DBWriterFactory) *Manager {
	if factory == nil {
		factory = DefaultDBWriterFactory
	}
	return &Manager{
		baseDBSettings: baseDBSettings,
		writerFactory:  factory,
		workers:        make(map[int]ConnectionWorker),
	}
}

// DefaultDBWriterFactory opens a PgxWriter when the connection is
// enabled and carries every field writing requires, mirroring
// _default_db_writer_factory.
func DefaultDBWriterFactory(ctx context.Context, base settings.DbSettings, config settings.ConnectionConfig) (dbwriter.Writer, error) {
	if !config.Enabled {
		return nil, nil
	}
	if config.DBUser == nil || config.DBPassword == nil || config.TableName == nil || config.QueryTemplate == nil {
		return nil, nil
	}

	dbSettings := dbwriter.Settings{
		Host:     base.Host,
		Port:     base.Port,
		Database: base.Database,
		User:     base.User,
		Password: base.Password,
		SSLMode:  base.SSLMode,
	}
	return dbwriter.NewPgxWriter(ctx, dbSettings, *config.DBUser, *config.DBPassword)
}

func (m *Manager) createWorkerForConfig(ctx context.Context, config settings.ConnectionConfig, logger common.LoggerInterface) (ConnectionWorker, error) {
	switch config.Type {
	case settings.ConnectionEasySerial:
		if config.EasySerial == nil {
			return nil, fmt.Errorf("easy serial config is required for type %q", config.Type)
		}
		writer, err := m.writerFactory(ctx, m.baseDBSettings, config)
		if err != nil {
			return nil, err
		}
		return easyserial.New(*config.EasySerial, writer, logger)

	case settings.ConnectionMbox:
		if config.Mbox == nil {
			return nil, fmt.Errorf("mbox config is required for type %q", config.Type)
		}
		writer, err := m.writerFactory(ctx, m.baseDBSettings, config)
		if err != nil {
			return nil, err
		}
		return mbox.New(*config.Mbox, writer, m.mboxCounterTotal, logger), nil

	case settings.ConnectionMboxCounter:
		if config.MboxCounter == nil {
			return nil, fmt.Errorf("mbox counter config is required for type %q", config.Type)
		}
		return mboxcounter.New(*config.MboxCounter, logger), nil

	case settings.ConnectionModbusRTU:
		if config.ModbusRTU == nil {
			return nil, fmt.Errorf("modbus rtu config is required for type %q", config.Type)
		}
		writer, err := m.writerFactory(ctx, m.baseDBSettings, config)
		if err != nil {
			return nil, err
		}
		return modbusrtu.New(*config.ModbusRTU, writer, logger), nil

	case settings.ConnectionModbusTCP:
		if config.ModbusTCP == nil {
			return nil, fmt.Errorf("modbus tcp config is required for type %q", config.Type)
		}
		writer, err := m.writerFactory(ctx, m.baseDBSettings, config)
		if err != nil {
			return nil, err
		}
		return modbustcp.New(*config.ModbusTCP, writer, logger), nil
	}

	return nil, fmt.Errorf("unsupported connection type: %s", config.Type)
}

// RegisterConnection creates (if not already registered) and returns
// the worker for config, mirroring register_connection.
func (m *Manager) RegisterConnection(ctx context.Context, config settings.ConnectionConfig, logger common.LoggerInterface) (ConnectionWorker, error) {
	if config.ID == nil {
		return nil, fmt.Errorf("connection config must have an id to register")
	}

	m.mu.Lock()
	if w, ok := m.workers[*config.ID]; ok {
		m.mu.Unlock()
		return w, nil
	}
	m.mu.Unlock()

	w, err := m.createWorkerForConfig(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.workers[*config.ID]; ok {
		m.mu.Unlock()
		w.Close()
		return existing, nil
	}
	m.workers[*config.ID] = w
	m.mu.Unlock()

	return w, nil
}

// StartConnection starts a registered worker.
func (m *Manager) StartConnection(ctx context.Context, connID int) error {
	w, ok := m.getWorkerOK(connID)
	if !ok {
		return fmt.Errorf("connection id %d is not registered", connID)
	}
	return w.Start(ctx)
}

// StopConnection stops a registered worker, a no-op if unregistered.
func (m *Manager) StopConnection(ctx context.Context, connID int) error {
	w, ok := m.getWorkerOK(connID)
	if !ok {
		return nil
	}
	return w.Stop(ctx)
}

// JoinConnection waits for a registered worker to finish stopping.
func (m *Manager) JoinConnection(connID int, timeout time.Duration) {
	w, ok := m.getWorkerOK(connID)
	if !ok {
		return
	}
	w.Join(timeout)
}

// UnregisterConnection removes a worker from the manager without
// stopping or closing it — the caller must already have done so,
// mirroring unregister_connection.
func (m *Manager) UnregisterConnection(connID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, connID)
}

// GetWorker returns the registered worker, if any.
func (m *Manager) GetWorker(connID int) (ConnectionWorker, bool) {
	return m.getWorkerOK(connID)
}

func (m *Manager) getWorkerOK(connID int) (ConnectionWorker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[connID]
	return w, ok
}

// GetState returns the worker's lifecycle state, if registered.
func (m *Manager) GetState(connID int) (workerbase.State, bool) {
	w, ok := m.getWorkerOK(connID)
	if !ok {
		return "", false
	}
	return w.State(), true
}

// ShutdownAll stops every registered worker, waits for each to finish,
// closes their resources, and clears the registry, mirroring
// shutdown_all.
func (m *Manager) ShutdownAll(timeout time.Duration) {
	m.mu.Lock()
	workers := make([]ConnectionWorker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	ctx := context.Background()
	for _, w := range workers {
		_ = w.Stop(ctx)
	}
	for _, w := range workers {
		w.Join(timeout)
	}
	for _, w := range workers {
		w.Close()
	}

	m.mu.Lock()
	m.workers = make(map[int]ConnectionWorker)
	m.mu.Unlock()
}

// mboxCounterTotal implements mbox.CounterTotalProvider by looking up
// a registered mbox-counter worker and calling its GetTotal method,
// mirroring _get_mbox_counter_total's duck typing.
func (m *Manager) mboxCounterTotal(counterConnID, deviceID int) (int, bool) {
	w, ok := m.getWorkerOK(counterConnID)
	if !ok {
		return 0, false
	}
	getter, ok := w.(counterTotalGetter)
	if !ok {
		return 0, false
	}
	total, found := getter.GetTotal(deviceID)
	if !found {
		return 0, false
	}
	return int(total), true
}
