package dbwriter

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxWriter writes built queries to Postgres using a pgx connection
// pool. It plays the same role as SQLAlchemyDBWriter in the original
// service, but pgx has no native named-parameter support, so
// ":name"-style placeholders produced by internal/queryx are
// translated to pgx's positional "$1, $2, ..." form here, invisible
// to callers.
type PgxWriter struct {
	pool *pgxpool.Pool
}

// NewPgxWriter merges base settings with per-connection user/password
// overrides (mirroring SQLAlchemyDBWriter.__init__), builds a DSN, and
// opens a connection pool. It issues a ping to fail fast, matching the
// intent of the original's pool_pre_ping=True.
func NewPgxWriter(ctx context.Context, base Settings, user, password string) (*PgxWriter, error) {
	merged := base
	if user != "" {
		merged.User = user
	}
	if password != "" {
		merged.Password = password
	}

	dsn := BuildPostgresDSN(merged)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PgxWriter{pool: pool}, nil
}

// Write executes sql (with :name placeholders) against params.
func (w *PgxWriter) Write(ctx context.Context, sql string, params map[string]any) error {
	positional, args := toPositional(sql, params)
	_, err := w.pool.Exec(ctx, positional, args...)
	return err
}

// Close disposes the underlying pool.
func (w *PgxWriter) Close() {
	w.pool.Close()
}

// BuildPostgresDSN builds a libpq-style connection string.
func BuildPostgresDSN(s Settings) string {
	sslmode := s.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Database, sslmode)
}

// TestConnection opens a throwaway pool, runs SELECT 1, and reports
// the outcome, always disposing the pool — mirroring
// core/db_client.py test_connection.
func TestConnection(ctx context.Context, s Settings) TestResult {
	cfg, err := pgxpool.ParseConfig(BuildPostgresDSN(s))
	if err != nil {
		return TestResult{Success: false, Error: err.Error()}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return TestResult{Success: false, Error: err.Error()}
	}
	defer pool.Close()

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return TestResult{Success: false, Error: err.Error()}
	}
	return TestResult{Success: true}
}

// toPositional rewrites ":name" placeholders into "$1, $2, ..." in
// first-appearance order and returns the matching positional
// argument slice. Occurrences of the same name reuse the same index.
func toPositional(sql string, params map[string]any) (string, []any) {
	var sb strings.Builder
	var args []any
	index := map[string]int{}

	runes := []rune(sql)
	n := len(runes)
	i := 0
	for i < n {
		ch := runes[i]
		if ch == ':' && i+1 < n && isIdentStart(runes[i+1]) {
			j := i + 1
			for j < n && isIdentCont(runes[j]) {
				j++
			}
			name := string(runes[i+1 : j])
			pos, ok := index[name]
			if !ok {
				args = append(args, params[name])
				pos = len(args)
				index[name] = pos
			}
			sb.WriteString(fmt.Sprintf("$%d", pos))
			i = j
			continue
		}
		sb.WriteRune(ch)
		i++
	}
	return sb.String(), args
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
