// Package repository persists the append-only Boost score ledger.
package repository

import (
	"context"

	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/types"
)

// Ledger provides append and read access to Boost score entries.
// Entries are immutable once appended.
type Ledger interface {
	// Append stores entry and returns it with ID and Timestamp filled in
	// when they were empty.
	Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error)

	// Latest returns the most recently appended entry for a patient.
	// Returns ErrNotFound if the patient has no entries.
	Latest(ctx context.Context, patientID string) (model.LedgerEntry, error)

	// History returns a patient's entries, newest first.
	History(ctx context.Context, patientID string, filter types.HistoryFilter) ([]model.LedgerEntry, error)

	// Count returns the number of entries across all patients.
	Count(ctx context.Context) int

	Close() error
}

// Supported ledger backends.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Open builds the ledger for driver. SQL backends are migrated before
// they are returned.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Ledger, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(ctx, opts...), nil
	case DriverSQLite, DriverPostgres:
		db, err := OpenDB(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		s := NewSQLStore(db, Dialect(driver), opts...)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, ErrUnknownDriver
	}
}

func validate(entry model.LedgerEntry) error {
	if entry.PatientID == "" {
		return ErrMissingPatient
	}
	if !entry.ActivityType.Valid() {
		return ErrInvalidActivity
	}
	return nil
}
