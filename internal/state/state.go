// Package state persists per-MAC observation history and run summaries.
// The store is the single owner of the on-disk observations; every
// other component reads and writes through its operations.
package state

import (
	"context"
	"time"
)

// Status is the closed set of per-MAC processing outcomes.
type Status string

const (
	StatusCreated       Status = "created"         // cable was created
	StatusExists        Status = "exists"          // cable already exists
	StatusSkipNonAccess Status = "skip_non_access" // port is not access
	StatusAmbiguous     Status = "ambiguous"       // multiple endpoints found
	StatusNotFound      Status = "not_found"       // MAC not seen in any FDB
	StatusError         Status = "error"           // processing error
	StatusPending       Status = "pending"         // waiting for stability
	StatusMismatch      Status = "mismatch"        // MAC on cabled port differs from expected
)

// MACState is the full persisted state of one MAC address.
// VLAN 0 means no VLAN was recorded.
type MACState struct {
	MAC            string
	LastSwitch     string
	LastPort       string
	LastVLAN       int
	LastSeen       time.Time
	StabilityCount int
	LastStatus     Status
	LastActionAt   time.Time
	CableCreated   bool
	CableID        int
}

// RunRecord is one appended row of run history.
type RunRecord struct {
	RunID     string
	RunAt     time.Time
	TotalMACs int
	Created   int
	Exists    int
	Skipped   int
	Ambiguous int
	NotFound  int
	Errors    int
}

// Store is the observation-state boundary. Implementations must make
// each operation an atomic commit. GetState returns (nil, nil) when
// the MAC has never been seen.
type Store interface {
	GetState(ctx context.Context, mac string) (*MACState, error)

	// UpdateObservation applies the stability rule: first sighting
	// inserts with count 1; a repeat of the identical (switch, port)
	// increments; any deviation resets to 1. seen_at always advances.
	// Returns the new count and whether count >= threshold.
	UpdateObservation(ctx context.Context, mac, switchName, portName string, vlan, threshold int) (int, bool, error)

	// MarkNotFound zeroes the stability count so the MAC must
	// re-qualify from scratch, creating the row if absent.
	MarkNotFound(ctx context.Context, mac string) error

	// UpdateStatus records the decision outcome, creating the row if
	// the MAC was never observed. cableID is only meaningful with
	// StatusCreated, which also sets cable_created.
	UpdateStatus(ctx context.Context, mac string, status Status, cableID int) error

	RecordRun(ctx context.Context, rec RunRecord) error

	// ListCabled returns every MAC for which a cable was created.
	ListCabled(ctx context.Context) ([]MACState, error)

	Close() error
}
