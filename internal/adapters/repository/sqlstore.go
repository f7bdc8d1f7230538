package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/types"
	"github.com/fres-sudo/neuravia/pkg/logger"
	"github.com/fres-sudo/neuravia/pkg/metrics"
	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver
)

// Dialect selects the SQL flavour spoken by SQLStore.
type Dialect string

// Supported dialects, named after their database/sql drivers.
const (
	DialectSQLite   Dialect = DriverSQLite
	DialectPostgres Dialect = DriverPostgres
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS boost_ledger (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	patient_id     TEXT NOT NULL,
	activity_type  TEXT NOT NULL,
	previous_score REAL NOT NULL,
	activity_value REAL NOT NULL,
	weight         REAL NOT NULL,
	new_score      REAL NOT NULL,
	metadata       TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS boost_ledger (
	seq            BIGSERIAL PRIMARY KEY,
	id             TEXT NOT NULL UNIQUE,
	patient_id     TEXT NOT NULL,
	activity_type  TEXT NOT NULL,
	previous_score DOUBLE PRECISION NOT NULL,
	activity_value DOUBLE PRECISION NOT NULL,
	weight         DOUBLE PRECISION NOT NULL,
	new_score      DOUBLE PRECISION NOT NULL,
	metadata       TEXT NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL
)`

const indexSchema = `CREATE INDEX IF NOT EXISTS idx_boost_ledger_patient ON boost_ledger (patient_id, seq)`

const entryColumns = `id, patient_id, activity_type, previous_score, activity_value, weight, new_score, metadata, created_at`

const (
	insertEntryQuery = `INSERT INTO boost_ledger (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	latestQuery      = `SELECT ` + entryColumns + ` FROM boost_ledger WHERE patient_id = ? ORDER BY seq DESC LIMIT 1`
	historyQuery     = `SELECT ` + entryColumns + ` FROM boost_ledger WHERE patient_id = ?`
	countQuery       = `SELECT COUNT(*) FROM boost_ledger`
)

// OpenDB opens and pings a database handle for driver.
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open %s ledger: empty dsn", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer keeps SQLite from returning SQLITE_BUSY under load.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s ledger: %w", driver, err)
	}
	return db, nil
}

// SQLStore is a Ledger backed by database/sql. It speaks SQLite
// (modernc.org/sqlite) and PostgreSQL (pgx stdlib).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	opts    options
	log     logger.Logger

	closeOnce sync.Once
	wg        sync.WaitGroup
	stopChan  chan struct{}
}

// NewSQLStore wraps db. Call Migrate before first use on a fresh database.
func NewSQLStore(db *sql.DB, dialect Dialect, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:       db,
		dialect:  dialect,
		opts:     defaultOptions(),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.log = s.opts.log.Named("ledger")
	return s
}

// Migrate creates the ledger table and index if missing, then starts the
// background metrics updater.
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range []string{schema, indexSchema} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	s.log.Info(ctx, "ledger schema ready", logger.String("dialect", string(s.dialect)))
	metrics.UpdateRepositoryRecordsTotal(s.Count(ctx))
	startMetricsUpdater(ctx, &s.wg, s.stopChan, s.opts.metricsUpdateInterval, s.Count)
	return nil
}

// Append implements Ledger.Append.
func (s *SQLStore) Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := validate(entry); err != nil {
		metrics.RecordErrorByComponent("repository", "invalid_entry")
		return model.LedgerEntry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.opts.now().UTC()
	}

	meta, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return model.LedgerEntry{}, err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(insertEntryQuery),
		entry.ID, entry.PatientID, string(entry.ActivityType),
		entry.PreviousScore, entry.ActivityValue, entry.Weight, entry.NewScore,
		meta, entry.Timestamp)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "append")
		return model.LedgerEntry{}, fmt.Errorf("append ledger entry: %w", err)
	}

	metrics.RecordLedgerAppend(string(entry.ActivityType), entry.ActivityValue)
	return entry, nil
}

// Latest implements Ledger.Latest.
func (s *SQLStore) Latest(ctx context.Context, patientID string) (model.LedgerEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	e, err := scanEntry(s.db.QueryRowContext(ctx, s.rebind(latestQuery), patientID))
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.LedgerEntry{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "query")
		return model.LedgerEntry{}, fmt.Errorf("latest ledger entry: %w", err)
	}
	return e, nil
}

// History implements Ledger.History.
func (s *SQLStore) History(ctx context.Context, patientID string, filter types.HistoryFilter) ([]model.LedgerEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	query, args := historyStatement(patientID, filter)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "query")
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	defer rows.Close()

	out := make([]model.LedgerEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	return out, nil
}

// Count implements Ledger.Count. Query failures are logged and count as zero.
func (s *SQLStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&n); err != nil {
		s.log.Warn(ctx, "count ledger entries", logger.Error(err))
		return 0
	}
	return n
}

// Close stops the metrics updater and closes the database handle.
func (s *SQLStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func historyStatement(patientID string, filter types.HistoryFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(historyQuery)
	args := []any{patientID}
	if filter.ActivityType != "" {
		b.WriteString(" AND activity_type = ?")
		args = append(args, string(filter.ActivityType))
	}
	b.WriteString(" ORDER BY seq DESC")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}
	return b.String(), args
}

// rebind rewrites ? placeholders as $1..$n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (model.LedgerEntry, error) {
	var (
		e        model.LedgerEntry
		activity string
		meta     string
	)
	err := row.Scan(&e.ID, &e.PatientID, &activity, &e.PreviousScore, &e.ActivityValue,
		&e.Weight, &e.NewScore, &meta, &e.Timestamp)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	e.ActivityType = model.ActivityType(activity)
	e.Timestamp = e.Timestamp.UTC()
	if e.Metadata, err = decodeMetadata(meta); err != nil {
		return model.LedgerEntry{}, err
	}
	return e, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode ledger metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode ledger metadata: %w", err)
	}
	return m, nil
}
