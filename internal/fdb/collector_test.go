package fdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gosnmp/gosnmp"
	"go.uber.org/zap"
)

// fakeWalker maps root OIDs to canned PDU responses.
type fakeWalker struct {
	responses map[string][]gosnmp.SnmpPDU
	errs      map[string]error
}

func (f *fakeWalker) BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error) {
	if err, ok := f.errs[rootOid]; ok {
		return nil, err
	}
	return f.responses[rootOid], nil
}

func ifNamePDUs() []gosnmp.SnmpPDU {
	return []gosnmp.SnmpPDU{
		{Name: "." + OIDIfName + ".5", Value: []byte("Ethernet5")},
		{Name: "." + OIDIfName + ".6", Value: []byte("Ethernet6")},
	}
}

var ignoreSeenAt = cmpopts.IgnoreFields(Entry{}, "SeenAt")

func TestCollectHuawei(t *testing.T) {
	c := NewCollector(Config{}, zap.NewNop())

	// aa:bb:cc:dd:ee:01 on vlan 10, ifIndex 5.
	w := &fakeWalker{responses: map[string][]gosnmp.SnmpPDU{
		OIDIfName: ifNamePDUs(),
		OIDHuaweiMacFwdPort: {
			{Name: "." + OIDHuaweiMacFwdPort + ".170.187.204.221.238.1.10.0", Value: 5},
		},
	}}

	got, err := c.collect(w, "sw1", "10.0.0.1")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	want := []Entry{{
		MAC:        "aa:bb:cc:dd:ee:01",
		SwitchName: "sw1",
		SwitchIP:   "10.0.0.1",
		PortName:   "Ethernet5",
		PortIndex:  5,
		VLAN:       10,
	}}
	if diff := cmp.Diff(want, got, ignoreSeenAt); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectQBridgeFallback(t *testing.T) {
	c := NewCollector(Config{}, zap.NewNop())

	// Huawei MIB yields nothing; Q-Bridge has vlan 20, MAC, port 6.
	w := &fakeWalker{responses: map[string][]gosnmp.SnmpPDU{
		OIDIfName: ifNamePDUs(),
		OIDDot1qTpFdbPort: {
			{Name: "." + OIDDot1qTpFdbPort + ".20.170.187.204.221.238.2", Value: 6},
		},
	}}

	got, err := c.collect(w, "sw1", "10.0.0.1")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	want := []Entry{{
		MAC:        "aa:bb:cc:dd:ee:02",
		SwitchName: "sw1",
		SwitchIP:   "10.0.0.1",
		PortName:   "Ethernet6",
		PortIndex:  6,
		VLAN:       20,
	}}
	if diff := cmp.Diff(want, got, ignoreSeenAt); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectBridgeFallback(t *testing.T) {
	c := NewCollector(Config{}, zap.NewNop())

	// Only the plain Bridge MIB answers; duplicate MAC rows collapse
	// to one entry with the last port winning.
	w := &fakeWalker{
		responses: map[string][]gosnmp.SnmpPDU{
			OIDIfName: ifNamePDUs(),
			OIDDot1dTpFdbPort: {
				{Name: "." + OIDDot1dTpFdbPort + ".170.187.204.221.238.3", Value: 5},
				{Name: "." + OIDDot1dTpFdbPort + ".170.187.204.221.238.3", Value: 6},
			},
		},
		errs: map[string]error{
			OIDHuaweiMacFwdPort: errors.New("no such object"),
		},
	}

	got, err := c.collect(w, "sw1", "10.0.0.1")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	e := got[0]
	if e.MAC != "aa:bb:cc:dd:ee:03" || e.PortName != "Ethernet6" || e.VLAN != 0 {
		t.Errorf("entry = %+v", e)
	}
}

func TestCollectPortNameFallback(t *testing.T) {
	c := NewCollector(Config{}, zap.NewNop())

	// ifIndex 42 has no name; placeholder port42 is used.
	w := &fakeWalker{responses: map[string][]gosnmp.SnmpPDU{
		OIDIfName: ifNamePDUs(),
		OIDHuaweiMacFwdPort: {
			{Name: "." + OIDHuaweiMacFwdPort + ".170.187.204.221.238.4.30.0", Value: 42},
		},
	}}

	got, err := c.collect(w, "sw1", "10.0.0.1")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 1 || got[0].PortName != "port42" {
		t.Errorf("entries = %+v, want port42 placeholder", got)
	}
}

func TestCollectIfNameWalkError(t *testing.T) {
	c := NewCollector(Config{}, zap.NewNop())
	w := &fakeWalker{errs: map[string]error{OIDIfName: errors.New("timeout")}}

	if _, err := c.collect(w, "sw1", "10.0.0.1"); err == nil {
		t.Error("expected error when ifName walk fails")
	}
}

func TestCollectNoManagementIP(t *testing.T) {
	c := NewCollector(Config{}, zap.NewNop())
	if _, err := c.Collect(context.Background(), "sw2", ""); err == nil {
		t.Error("expected error for switch without management IP")
	}
}

func TestMalformedOIDRowsSkipped(t *testing.T) {
	c := NewCollector(Config{Timeout: time.Second}, zap.NewNop())

	w := &fakeWalker{responses: map[string][]gosnmp.SnmpPDU{
		OIDIfName: ifNamePDUs(),
		OIDHuaweiMacFwdPort: {
			{Name: "." + OIDHuaweiMacFwdPort + ".1.2.3", Value: 5},      // too short
			{Name: ".1.3.6.1.4.1.9999.1", Value: 5},                    // wrong subtree
			{Name: "." + OIDHuaweiMacFwdPort + ".256.0.0.0.0.0.10.0", Value: 5}, // octet out of range
		},
	}}

	got, err := c.collect(w, "sw1", "10.0.0.1")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("entries = %+v, want none", got)
	}
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fdb.json")
	data := `{"sw1": [{"mac": "AA:BB:CC:DD:EE:01", "port": "Ethernet5", "vlan": 10}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	entries, err := snap.Collect(context.Background(), "sw1", "")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(entries) != 1 || entries[0].MAC != "aa:bb:cc:dd:ee:01" || entries[0].VLAN != 10 {
		t.Errorf("entries = %+v", entries)
	}

	none, err := snap.Collect(context.Background(), "other", "")
	if err != nil || len(none) != 0 {
		t.Errorf("unknown switch: entries = %+v err = %v", none, err)
	}
}
