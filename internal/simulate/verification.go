package simulate

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"
)

// valueTolerance absorbs float formatting on the wire.
const valueTolerance = 1e-9

type historyResponse struct {
	PatientID string        `json:"patient_id"`
	Entries   []LedgerEntry `json:"entries"`
}

// expectation is what one patient's game history should contain.
type expectation struct {
	games map[string]float64 // session id -> expected value; NaN when unknown
}

// verifyLedger polls every patient's game history until each reported and
// hosted session shows up exactly once, or SettleTimeout passes.
func verifyLedger(ctx context.Context, config *Config, games []GameSubmission, sessions []HostedSession, stats *Stats) error {
	log.Println("🔍 Verifying ledger entries...")

	want := make(map[string]*expectation)
	get := func(patientID string) *expectation {
		e, ok := want[patientID]
		if !ok {
			e = &expectation{games: make(map[string]float64)}
			want[patientID] = e
		}
		return e
	}
	for _, g := range games {
		get(g.PatientID).games[g.SessionID] = g.Expected
	}
	for _, s := range sessions {
		if s.State != "completed" {
			continue
		}
		get(s.PatientID).games[s.SessionID] = math.NaN()
	}

	client := newHTTPClient(config.BaseURL, config.Timeout)
	deadline := time.Now().Add(config.SettleTimeout)

	for patientID, exp := range want {
		var last patientCheck
		for {
			entries, err := fetchGameHistory(ctx, client, patientID)
			if err != nil {
				return fmt.Errorf("history for %s: %w", patientID, err)
			}
			last = checkPatient(exp, entries)
			if last.missing == 0 || time.Now().After(deadline) {
				break
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("verification interrupted: %w", ctx.Err())
			case <-time.After(PollInterval):
			}
		}

		stats.PatientsVerified++
		stats.EntriesVerified += last.matched
		stats.EntriesMissing += last.missing
		stats.EntriesMismatch += last.mismatched + last.duplicated
		if config.Verbose && (last.missing > 0 || last.mismatched > 0 || last.duplicated > 0) {
			log.Printf("⚠️  Patient %s: matched %d, missing %d, mismatched %d, duplicated %d",
				patientID, last.matched, last.missing, last.mismatched, last.duplicated)
		}
	}

	if stats.EntriesMissing > 0 || stats.EntriesMismatch > 0 {
		return fmt.Errorf("ledger mismatch: %d missing, %d inconsistent of %d expected",
			stats.EntriesMissing, stats.EntriesMismatch, stats.EntriesVerified+stats.EntriesMissing)
	}
	log.Printf("✅ Ledger verified: %d entries across %d patients", stats.EntriesVerified, stats.PatientsVerified)
	return nil
}

// patientCheck tallies one patient's history against its expectation.
type patientCheck struct {
	matched    int
	missing    int
	mismatched int
	duplicated int
}

func checkPatient(exp *expectation, entries []LedgerEntry) patientCheck {
	seen := make(map[string]int, len(entries))
	var c patientCheck
	for _, e := range entries {
		id, _ := e.Metadata["session_id"].(string)
		if id == "" {
			id = e.ID
		}
		want, ok := exp.games[id]
		if !ok {
			continue
		}
		seen[id]++
		if seen[id] > 1 {
			c.duplicated++
			continue
		}
		if !math.IsNaN(want) && math.Abs(want-e.ActivityValue) > valueTolerance {
			c.mismatched++
			continue
		}
		c.matched++
	}
	for id := range exp.games {
		if seen[id] == 0 {
			c.missing++
		}
	}
	return c
}

func fetchGameHistory(ctx context.Context, client *HTTPClient, patientID string) ([]LedgerEntry, error) {
	resp, err := client.Get(ctx, patientPath(patientID, fmt.Sprintf("/history?type=game_played&limit=%d", historyLimit)))
	if err != nil {
		return nil, err
	}
	var h historyResponse
	if err := decodeResponse(resp, &h); err != nil {
		return nil, err
	}
	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return h.Entries, nil
}
