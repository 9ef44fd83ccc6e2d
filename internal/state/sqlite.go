package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Compile-time interface guard.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store backed by SQLite via modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS mac_observations (
	mac             TEXT PRIMARY KEY,
	switch_name     TEXT,
	port_name       TEXT,
	vlan            INTEGER,
	seen_at         TEXT,
	stability_count INTEGER NOT NULL DEFAULT 0,
	last_status     TEXT,
	last_action_at  TEXT,
	cable_created   INTEGER NOT NULL DEFAULT 0,
	cable_id        INTEGER
);

CREATE TABLE IF NOT EXISTS run_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT,
	run_at        TEXT,
	total_macs    INTEGER,
	cnt_created   INTEGER,
	cnt_exists    INTEGER,
	cnt_skipped   INTEGER,
	cnt_ambiguous INTEGER,
	cnt_not_found INTEGER,
	cnt_errors    INTEGER
);
`

// Open opens (or creates) the state database at the given path, creating
// the parent directory on demand, and ensures the schema exists.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection. WAL enables concurrent readers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires SQL statements for pragmas, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Tx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

const selectStateSQL = `
	SELECT mac, switch_name, port_name, vlan, seen_at,
	       stability_count, last_status, last_action_at, cable_created, cable_id
	FROM mac_observations WHERE mac = ?`

func (s *SQLiteStore) GetState(ctx context.Context, mac string) (*MACState, error) {
	st, err := scanState(s.db.QueryRowContext(ctx, selectStateSQL, mac))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", mac, err)
	}
	return st, nil
}

func (s *SQLiteStore) UpdateObservation(ctx context.Context, mac, switchName, portName string, vlan, threshold int) (int, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	var count int
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		prev, err := scanState(tx.QueryRowContext(ctx, selectStateSQL, mac))
		if err == sql.ErrNoRows {
			count = 1
			_, err := tx.ExecContext(ctx, `
				INSERT INTO mac_observations (mac, switch_name, port_name, vlan, seen_at, stability_count)
				VALUES (?, ?, ?, ?, ?, 1)`,
				mac, switchName, portName, nullVLAN(vlan), now)
			if err != nil {
				return fmt.Errorf("insert observation %s: %w", mac, err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("get state %s: %w", mac, err)
		}

		count = 1
		if prev.LastSwitch == switchName && prev.LastPort == portName {
			count = prev.StabilityCount + 1
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE mac_observations
			SET switch_name = ?, port_name = ?, vlan = ?, seen_at = ?, stability_count = ?
			WHERE mac = ?`,
			switchName, portName, nullVLAN(vlan), now, count, mac)
		if err != nil {
			return fmt.Errorf("update observation %s: %w", mac, err)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	return count, count >= threshold, nil
}

func (s *SQLiteStore) MarkNotFound(ctx context.Context, mac string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	return s.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE mac_observations
			SET stability_count = 0, last_status = ?, last_action_at = ?
			WHERE mac = ?`,
			string(StatusNotFound), now, mac)
		if err != nil {
			return fmt.Errorf("mark not found %s: %w", mac, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark not found %s: %w", mac, err)
		}
		if n == 0 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO mac_observations (mac, stability_count, last_status, last_action_at)
				VALUES (?, 0, ?, ?)`,
				mac, string(StatusNotFound), now)
			if err != nil {
				return fmt.Errorf("insert not found %s: %w", mac, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, mac string, status Status, cableID int) error {
	now := time.Now().UTC().Format(time.RFC3339)

	return s.Tx(ctx, func(tx *sql.Tx) error {
		var (
			res sql.Result
			err error
		)
		if status == StatusCreated {
			res, err = tx.ExecContext(ctx, `
				UPDATE mac_observations
				SET last_status = ?, last_action_at = ?, cable_created = 1, cable_id = ?
				WHERE mac = ?`,
				string(status), now, cableID, mac)
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE mac_observations
				SET last_status = ?, last_action_at = ?
				WHERE mac = ?`,
				string(status), now, mac)
		}
		if err != nil {
			return fmt.Errorf("update status %s: %w", mac, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update status %s: %w", mac, err)
		}
		if n == 0 {
			// A decision can precede the first observation (a MAC skipped
			// before it ever qualified); keep the outcome anyway.
			_, err = tx.ExecContext(ctx, `
				INSERT INTO mac_observations (mac, stability_count, last_status, last_action_at, cable_created, cable_id)
				VALUES (?, 0, ?, ?, ?, ?)`,
				mac, string(status), now, boolInt(status == StatusCreated), nullCableID(status, cableID))
			if err != nil {
				return fmt.Errorf("insert status %s: %w", mac, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) RecordRun(ctx context.Context, rec RunRecord) error {
	runAt := rec.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history
		(run_id, run_at, total_macs, cnt_created, cnt_exists, cnt_skipped, cnt_ambiguous, cnt_not_found, cnt_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, runAt.UTC().Format(time.RFC3339),
		rec.TotalMACs, rec.Created, rec.Exists, rec.Skipped,
		rec.Ambiguous, rec.NotFound, rec.Errors)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCabled(ctx context.Context) ([]MACState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mac, switch_name, port_name, vlan, seen_at,
		       stability_count, last_status, last_action_at, cable_created, cable_id
		FROM mac_observations WHERE cable_created = 1 ORDER BY mac`)
	if err != nil {
		return nil, fmt.Errorf("list cabled: %w", err)
	}
	defer rows.Close()

	var out []MACState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("list cabled: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (*MACState, error) {
	var (
		st                             MACState
		switchName, portName           sql.NullString
		vlan, cableID                  sql.NullInt64
		seenAt, lastStatus, lastAction sql.NullString
		cableCreated                   int
	)

	err := row.Scan(&st.MAC, &switchName, &portName, &vlan, &seenAt,
		&st.StabilityCount, &lastStatus, &lastAction, &cableCreated, &cableID)
	if err != nil {
		return nil, err
	}

	st.LastSwitch = switchName.String
	st.LastPort = portName.String
	st.LastVLAN = int(vlan.Int64)
	st.LastStatus = Status(lastStatus.String)
	st.CableCreated = cableCreated != 0
	st.CableID = int(cableID.Int64)
	if seenAt.Valid {
		st.LastSeen, _ = time.Parse(time.RFC3339, seenAt.String)
	}
	if lastAction.Valid {
		st.LastActionAt, _ = time.Parse(time.RFC3339, lastAction.String)
	}
	return &st, nil
}

func nullVLAN(vlan int) any {
	if vlan == 0 {
		return nil
	}
	return vlan
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullCableID(status Status, cableID int) any {
	if status != StatusCreated {
		return nil
	}
	return cableID
}
