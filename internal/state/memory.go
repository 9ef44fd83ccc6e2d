package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time interface guard.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is a map-backed Store with the same operation contracts
// as SQLiteStore. Used by tests and as a correlator substitute.
type MemoryStore struct {
	mu   sync.Mutex
	macs map[string]*MACState
	runs []RunRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{macs: make(map[string]*MACState)}
}

func (m *MemoryStore) GetState(_ context.Context, mac string) (*MACState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.macs[mac]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *MemoryStore) UpdateObservation(_ context.Context, mac, switchName, portName string, vlan, threshold int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	st, ok := m.macs[mac]
	if !ok {
		m.macs[mac] = &MACState{
			MAC:            mac,
			LastSwitch:     switchName,
			LastPort:       portName,
			LastVLAN:       vlan,
			LastSeen:       now,
			StabilityCount: 1,
		}
		return 1, 1 >= threshold, nil
	}

	count := 1
	if st.LastSwitch == switchName && st.LastPort == portName {
		count = st.StabilityCount + 1
	}
	st.LastSwitch = switchName
	st.LastPort = portName
	st.LastVLAN = vlan
	st.LastSeen = now
	st.StabilityCount = count

	return count, count >= threshold, nil
}

func (m *MemoryStore) MarkNotFound(_ context.Context, mac string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	st, ok := m.macs[mac]
	if !ok {
		m.macs[mac] = &MACState{
			MAC:          mac,
			LastStatus:   StatusNotFound,
			LastActionAt: now,
		}
		return nil
	}
	st.StabilityCount = 0
	st.LastStatus = StatusNotFound
	st.LastActionAt = now
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, mac string, status Status, cableID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.macs[mac]
	if !ok {
		st = &MACState{MAC: mac}
		m.macs[mac] = st
	}
	st.LastStatus = status
	st.LastActionAt = time.Now().UTC()
	if status == StatusCreated {
		st.CableCreated = true
		st.CableID = cableID
	}
	return nil
}

func (m *MemoryStore) RecordRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.RunAt.IsZero() {
		rec.RunAt = time.Now().UTC()
	}
	m.runs = append(m.runs, rec)
	return nil
}

func (m *MemoryStore) ListCabled(_ context.Context) ([]MACState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []MACState
	for _, st := range m.macs {
		if st.CableCreated {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out, nil
}

// Runs returns recorded run history for test assertions.
func (m *MemoryStore) Runs() []RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunRecord(nil), m.runs...)
}

func (m *MemoryStore) Close() error { return nil }
