// Package dbwriter defines the storage-write contract used by every
// connection worker and its Postgres-backed implementation, mirroring
// backend/app/core/db_writer.py and db_client.py.
package dbwriter

import "context"

// Writer persists one built query. Implementations translate the
// named-parameter style produced by internal/queryx into whatever
// their underlying driver expects.
type Writer interface {
	Write(ctx context.Context, sql string, params map[string]any) error
	Close()
}

// Settings mirrors DbSettings: the base Postgres connection
// parameters, merged per-connection with user/password overrides by
// the runtime manager's writer factory.
type Settings struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// TestResult mirrors DbConnectionTestResult.
type TestResult struct {
	Success bool
	Error   string
}
