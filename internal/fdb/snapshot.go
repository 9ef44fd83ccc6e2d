package fdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rackwise/autocable/internal/macaddr"
)

// Snapshot serves FDB entries from a JSON file instead of SNMP, for
// offline runs and tests. File format:
//
//	{"sw1": [{"mac": "aa:bb:cc:dd:ee:ff", "port": "Ethernet1", "vlan": 100}]}
type Snapshot struct {
	entries map[string][]Entry
}

type snapshotEntry struct {
	MAC       string `json:"mac"`
	Port      string `json:"port"`
	PortIndex int    `json:"port_index"`
	VLAN      int    `json:"vlan"`
}

// LoadSnapshot reads an FDB snapshot keyed by switch name.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", path, err)
	}

	var raw map[string][]snapshotEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse snapshot %q: %w", path, err)
	}

	at := time.Now().UTC()
	entries := make(map[string][]Entry, len(raw))
	for switchName, rows := range raw {
		for _, row := range rows {
			mac, err := macaddr.Normalize(row.MAC)
			if err != nil {
				return nil, fmt.Errorf("snapshot %q, switch %s: %w", path, switchName, err)
			}
			port := row.Port
			if port == "" {
				port = "unknown"
			}
			entries[switchName] = append(entries[switchName], Entry{
				MAC:        mac,
				SwitchName: switchName,
				PortName:   port,
				PortIndex:  row.PortIndex,
				VLAN:       row.VLAN,
				SeenAt:     at,
			})
		}
	}
	return &Snapshot{entries: entries}, nil
}

// Collect returns the snapshot's entries for the named switch.
func (s *Snapshot) Collect(_ context.Context, switchName, _ string) ([]Entry, error) {
	return s.entries[switchName], nil
}
