package classify

import (
	"strings"
	"testing"
)

func mustNew(t *testing.T, ports, patterns []string) *Classifier {
	t.Helper()
	c, err := New(ports, patterns)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClassifyDefaults(t *testing.T) {
	c := mustNew(t, nil, nil)

	tests := []struct {
		name     string
		portName string
		descr    string
		wantType PortType
		allowed  bool
	}{
		{name: "plain ethernet", portName: "Ethernet5", wantType: PortAccess, allowed: true},
		{name: "gigabit access", portName: "Gi0/1", wantType: PortAccess, allowed: true},
		{name: "port channel po", portName: "Po1", wantType: PortUplink},
		{name: "port channel long", portName: "Port-Channel10", wantType: PortUplink},
		{name: "uplink in name", portName: "uplink1", wantType: PortUplink},
		{name: "spine link", portName: "Eth48", descr: "to-spine-01", wantType: PortUplink},
		{name: "trunk descr", portName: "Eth10", descr: "TRUNK to core", wantType: PortUplink},
		{name: "mlag peer link", portName: "Eth49", descr: "mlag peer", wantType: PortUplink},
		{name: "case insensitive", portName: "UPLINK-2", wantType: PortUplink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.portName, tt.descr, false, false)
			if got.Type != tt.wantType {
				t.Errorf("Classify(%q, %q).Type = %s, want %s (reason %q)",
					tt.portName, tt.descr, got.Type, tt.wantType, got.Reason)
			}
			if got.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", got.Allowed, tt.allowed)
			}
			if got.Reason == "" {
				t.Error("Reason must not be empty")
			}
		})
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	c := mustNew(t, []string{"Ethernet48"}, nil)

	// Explicit uplink list wins before pattern matching.
	got := c.Classify("Ethernet48", "", false, false)
	if got.Type != PortUplink || !strings.Contains(got.Reason, "uplink list") {
		t.Errorf("explicit list: got %s / %q", got.Type, got.Reason)
	}

	// Description check runs before port-name check.
	got = c.Classify("trunk1", "link to-spine-2", false, false)
	if !strings.Contains(got.Reason, "description") {
		t.Errorf("description should win over port name, reason = %q", got.Reason)
	}

	// LAG member only when no name/description indicator fires.
	got = c.Classify("Ethernet7", "", true, false)
	if got.Type != PortLAGMember || got.Allowed {
		t.Errorf("lag member: got %s allowed=%v", got.Type, got.Allowed)
	}

	// LLDP hint is the last rejection rule.
	got = c.Classify("Ethernet7", "", false, true)
	if got.Type != PortUplink || got.Reason != "LLDP neighbor is a switch" {
		t.Errorf("lldp hint: got %s / %q", got.Type, got.Reason)
	}
}

func TestClassifyCustomPatterns(t *testing.T) {
	c := mustNew(t, nil, []string{`^core-`})

	if got := c.Classify("core-1", "", false, false); got.Allowed {
		t.Error("core-1 should be rejected by custom pattern")
	}
	// Default patterns no longer apply when overridden.
	if got := c.Classify("Po1", "", false, false); !got.Allowed {
		t.Errorf("Po1 should be allowed with custom patterns, reason %q", got.Reason)
	}
}

func TestNewInvalidPattern(t *testing.T) {
	if _, err := New(nil, []string{`(`}); err == nil {
		t.Error("New with invalid pattern should fail")
	}
}

func TestIsAccess(t *testing.T) {
	c := mustNew(t, nil, nil)
	if !c.IsAccess("Ethernet5", "", false, false) {
		t.Error("Ethernet5 should be access")
	}
	if c.IsAccess("Po1", "", false, false) {
		t.Error("Po1 should not be access")
	}
}
