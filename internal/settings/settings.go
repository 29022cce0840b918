// Package settings persists application-wide configuration (database
// connection parameters and the list of configured logger connections)
// to a single JSON file, ported from core/settings_manager.py.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrConnectionNameExists is returned by UpsertConnection when another
// connection already uses the requested name, mirroring
// ConnectionNameAlreadyExistsError.
type ErrConnectionNameExists struct {
	Name string
}

func (e *ErrConnectionNameExists) Error() string {
	return fmt.Sprintf("a connection named %q already exists", e.Name)
}

// Store loads and rewrites the whole AppSettings document as JSON,
// mirroring SettingsManager's file-backed, whole-document persistence
// model (no partial updates, no migrations).
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a Store backed by the file at path. The file and
// its parent directory are created lazily on first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) ensureParentDir() error {
	dir := filepath.Dir(s.path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings document from disk. A missing or empty file
// yields DefaultAppSettings(), matching load_app_settings's fallback.
func (s *Store) Load() (AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (AppSettings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultAppSettings(), nil
		}
		return AppSettings{}, fmt.Errorf("settings: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return DefaultAppSettings(), nil
	}

	settings := DefaultAppSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return AppSettings{}, fmt.Errorf("settings: parse %s: %w", s.path, err)
	}
	return settings, nil
}

// Save writes the complete settings document to disk, overwriting
// whatever was there before, matching save_app_settings.
func (s *Store) Save(settings AppSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(settings)
}

func (s *Store) saveLocked(settings AppSettings) error {
	if err := s.ensureParentDir(); err != nil {
		return fmt.Errorf("settings: create directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// GetDbSettings returns the currently persisted database settings.
func (s *Store) GetDbSettings() (DbSettings, error) {
	settings, err := s.Load()
	if err != nil {
		return DbSettings{}, err
	}
	return settings.DB, nil
}

// SaveDbSettings replaces the persisted database settings, leaving
// connections untouched.
func (s *Store) SaveDbSettings(db DbSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.loadLocked()
	if err != nil {
		return err
	}
	settings.DB = db
	return s.saveLocked(settings)
}

// GetConnections returns every configured connection.
func (s *Store) GetConnections() ([]ConnectionConfig, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	return settings.Connections, nil
}

// GetConnection returns the connection with the given id, or false if
// none matches.
func (s *Store) GetConnection(id int) (ConnectionConfig, bool, error) {
	connections, err := s.GetConnections()
	if err != nil {
		return ConnectionConfig{}, false, err
	}
	for _, c := range connections {
		if c.ID != nil && *c.ID == id {
			return c, true, nil
		}
	}
	return ConnectionConfig{}, false, nil
}

// UpsertConnection inserts a new connection (when connection.ID is
// nil, assigning the next free id) or replaces an existing one by id,
// rejecting a name collision with any other connection, mirroring
// upsert_connection.
func (s *Store) UpsertConnection(connection ConnectionConfig) (ConnectionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.loadLocked()
	if err != nil {
		return ConnectionConfig{}, err
	}

	connection.normalize()

	for _, existing := range settings.Connections {
		if existing.Name != connection.Name {
			continue
		}
		if connection.ID != nil && existing.ID != nil && *existing.ID == *connection.ID {
			continue
		}
		return ConnectionConfig{}, &ErrConnectionNameExists{Name: connection.Name}
	}

	if connection.ID == nil {
		connection.ID = intPtr(nextConnectionID(settings.Connections))
		settings.Connections = append(settings.Connections, connection)
	} else {
		replaced := false
		for i, existing := range settings.Connections {
			if existing.ID != nil && *existing.ID == *connection.ID {
				settings.Connections[i] = connection
				replaced = true
				break
			}
		}
		if !replaced {
			settings.Connections = append(settings.Connections, connection)
		}
	}

	if err := s.saveLocked(settings); err != nil {
		return ConnectionConfig{}, err
	}
	return connection, nil
}

// DeleteConnection removes the connection with the given id, if any,
// reporting whether a matching connection was actually found and
// removed, mirroring delete_connection's boolean return.
func (s *Store) DeleteConnection(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.loadLocked()
	if err != nil {
		return false, err
	}

	deleted := false
	kept := make([]ConnectionConfig, 0, len(settings.Connections))
	for _, c := range settings.Connections {
		if c.ID != nil && *c.ID == id {
			deleted = true
			continue
		}
		kept = append(kept, c)
	}
	settings.Connections = kept

	if !deleted {
		return false, nil
	}
	return true, s.saveLocked(settings)
}

// SaveConnections overwrites the entire connection list verbatim.
func (s *Store) SaveConnections(connections []ConnectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.loadLocked()
	if err != nil {
		return err
	}
	settings.Connections = connections
	return s.saveLocked(settings)
}

func nextConnectionID(connections []ConnectionConfig) int {
	max := 0
	for _, c := range connections {
		if c.ID != nil && *c.ID > max {
			max = *c.ID
		}
	}
	return max + 1
}

func intPtr(v int) *int { return &v }
