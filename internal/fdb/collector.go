// Package fdb collects MAC forwarding tables from switches over SNMP.
// Three MIB families are tried in order (Huawei, Q-Bridge, Bridge);
// the first that yields entries wins, because mixed-vendor fleets
// present only one of the three reliably.
package fdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/zap"

	"github.com/rackwise/autocable/internal/macaddr"
)

// Entry is a single learned (MAC, port) sighting on one switch.
// VLAN 0 means the MIB carried no VLAN.
type Entry struct {
	MAC        string
	SwitchName string
	SwitchIP   string
	PortName   string
	PortIndex  int
	VLAN       int
	SeenAt     time.Time
}

// Config holds SNMP transport parameters.
type Config struct {
	Community string
	Version   string // "1" or "2c"
	Timeout   time.Duration
	Retries   int
}

// Collector walks switch FDBs via SNMP.
type Collector struct {
	cfg    Config
	logger *zap.Logger
}

// NewCollector creates an FDB collector with the given SNMP parameters.
func NewCollector(cfg Config, logger *zap.Logger) *Collector {
	if cfg.Community == "" {
		cfg.Community = "public"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Collector{cfg: cfg, logger: logger}
}

// walker is the slice of gosnmp the collector depends on.
type walker interface {
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
}

// Collect walks the switch's FDB and returns its entries. An error
// means the switch yielded nothing this run; the caller logs it and
// moves on.
func (c *Collector) Collect(ctx context.Context, switchName, switchIP string) ([]Entry, error) {
	if switchIP == "" {
		return nil, fmt.Errorf("switch %s has no management IP", switchName)
	}

	g := c.newSNMP(ctx, switchIP)
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s (%s): %w", switchName, switchIP, err)
	}
	defer func() { _ = g.Conn.Close() }()

	return c.collect(g, switchName, switchIP)
}

func (c *Collector) collect(g walker, switchName, switchIP string) ([]Entry, error) {
	ifNames, err := walkIfNames(g)
	if err != nil {
		return nil, fmt.Errorf("walk ifName on %s: %w", switchName, err)
	}

	at := time.Now().UTC()

	walks := []struct {
		mib   string
		oid   string
		parse func([]gosnmp.SnmpPDU, map[int]string, string, string, time.Time) []Entry
	}{
		{"huawei", OIDHuaweiMacFwdPort, parseHuaweiPDUs},
		{"q-bridge", OIDDot1qTpFdbPort, parseQBridgePDUs},
		{"bridge", OIDDot1dTpFdbPort, parseBridgePDUs},
	}

	for _, w := range walks {
		pdus, err := g.BulkWalkAll(w.oid)
		if err != nil {
			c.logger.Debug("FDB walk failed",
				zap.String("switch", switchName),
				zap.String("mib", w.mib),
				zap.Error(err))
			continue
		}
		entries := w.parse(pdus, ifNames, switchName, switchIP, at)
		if len(entries) > 0 {
			c.logger.Info("collected FDB entries",
				zap.String("switch", switchName),
				zap.String("mib", w.mib),
				zap.Int("count", len(entries)))
			return entries, nil
		}
	}

	c.logger.Info("no FDB entries from any MIB", zap.String("switch", switchName))
	return nil, nil
}

func (c *Collector) newSNMP(ctx context.Context, target string) *gosnmp.GoSNMP {
	version := gosnmp.Version2c
	switch c.cfg.Version {
	case "1":
		version = gosnmp.Version1
	case "", "2", "2c":
	default:
		c.logger.Warn("unsupported SNMP version, using 2c",
			zap.String("version", c.cfg.Version))
	}

	return &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    target,
		Port:      161,
		Community: c.cfg.Community,
		Version:   version,
		Timeout:   c.cfg.Timeout,
		Retries:   c.cfg.Retries,
	}
}

// walkIfNames builds the ifIndex -> port-name map used to humanize
// FDB entries.
func walkIfNames(g walker) (map[int]string, error) {
	pdus, err := g.BulkWalkAll(OIDIfName)
	if err != nil {
		return nil, err
	}

	names := make(map[int]string, len(pdus))
	for _, pdu := range pdus {
		idx := lastOIDComponent(pdu.Name)
		if idx < 0 {
			continue
		}
		names[idx] = pduString(pdu)
	}
	return names, nil
}

// parseHuaweiPDUs decodes hwMacFwdPort rows. OID suffix layout:
// mac(6).vlan.0, value = ifIndex.
func parseHuaweiPDUs(pdus []gosnmp.SnmpPDU, ifNames map[int]string, switchName, switchIP string, at time.Time) []Entry {
	var entries []Entry
	for _, pdu := range pdus {
		suffix, ok := oidSuffix(pdu.Name, OIDHuaweiMacFwdPort)
		if !ok || len(suffix) < 8 {
			continue
		}

		mac, err := macaddr.FromOIDSuffix(strings.Join(suffix[:6], "."))
		if err != nil {
			continue
		}
		vlan, err := strconv.Atoi(suffix[6])
		if err != nil {
			continue
		}

		portIndex := pduInt(pdu)
		entries = append(entries, Entry{
			MAC:        mac,
			SwitchName: switchName,
			SwitchIP:   switchIP,
			PortName:   portName(ifNames, portIndex),
			PortIndex:  portIndex,
			VLAN:       vlan,
			SeenAt:     at,
		})
	}
	return entries
}

// parseQBridgePDUs decodes dot1qTpFdbPort rows. OID suffix layout:
// vlan.mac(6), value = bridge port (used as ifIndex).
func parseQBridgePDUs(pdus []gosnmp.SnmpPDU, ifNames map[int]string, switchName, switchIP string, at time.Time) []Entry {
	var entries []Entry
	for _, pdu := range pdus {
		suffix, ok := oidSuffix(pdu.Name, OIDDot1qTpFdbPort)
		if !ok || len(suffix) < 7 {
			continue
		}

		vlan, err := strconv.Atoi(suffix[0])
		if err != nil {
			continue
		}
		mac, err := macaddr.FromOIDSuffix(strings.Join(suffix[1:7], "."))
		if err != nil {
			continue
		}

		portIndex := pduInt(pdu)
		entries = append(entries, Entry{
			MAC:        mac,
			SwitchName: switchName,
			SwitchIP:   switchIP,
			PortName:   portName(ifNames, portIndex),
			PortIndex:  portIndex,
			VLAN:       vlan,
			SeenAt:     at,
		})
	}
	return entries
}

// parseBridgePDUs decodes dot1dTpFdbPort rows. OID suffix layout:
// mac(6), value = bridge port; no VLAN. One entry per MAC is kept.
func parseBridgePDUs(pdus []gosnmp.SnmpPDU, ifNames map[int]string, switchName, switchIP string, at time.Time) []Entry {
	macToPort := make(map[string]int)
	order := make([]string, 0, len(pdus))

	for _, pdu := range pdus {
		suffix, ok := oidSuffix(pdu.Name, OIDDot1dTpFdbPort)
		if !ok || len(suffix) < 6 {
			continue
		}

		mac, err := macaddr.FromOIDSuffix(strings.Join(suffix[:6], "."))
		if err != nil {
			continue
		}
		if _, seen := macToPort[mac]; !seen {
			order = append(order, mac)
		}
		macToPort[mac] = pduInt(pdu)
	}

	entries := make([]Entry, 0, len(macToPort))
	for _, mac := range order {
		portIndex := macToPort[mac]
		entries = append(entries, Entry{
			MAC:        mac,
			SwitchName: switchName,
			SwitchIP:   switchIP,
			PortName:   portName(ifNames, portIndex),
			PortIndex:  portIndex,
			SeenAt:     at,
		})
	}
	return entries
}

func portName(ifNames map[int]string, index int) string {
	if name, ok := ifNames[index]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("port%d", index)
}

// oidSuffix returns the components of oid beyond base, or ok=false
// when oid is not under base.
func oidSuffix(oid, base string) ([]string, bool) {
	oid = strings.TrimPrefix(oid, ".")
	prefix := base + "."
	if !strings.HasPrefix(oid, prefix) {
		return nil, false
	}
	return strings.Split(oid[len(prefix):], "."), true
}

// lastOIDComponent extracts the trailing numeric component, or -1.
func lastOIDComponent(oid string) int {
	i := strings.LastIndex(oid, ".")
	if i < 0 || i == len(oid)-1 {
		return -1
	}
	idx, err := strconv.Atoi(oid[i+1:])
	if err != nil {
		return -1
	}
	return idx
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}
}

func pduInt(pdu gosnmp.SnmpPDU) int {
	switch v := pdu.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint:
		return int(v) //nolint:gosec // SNMP port indexes fit in int
	case uint32:
		return int(v)
	case uint64:
		return int(v) //nolint:gosec // SNMP port indexes fit in int
	default:
		return 0
	}
}
