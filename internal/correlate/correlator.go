// Package correlate joins OOB interfaces with FDB sightings and
// switches, and emits one cabling decision per interface. The
// correlator holds no persistent state of its own; given the same
// inputs and the same prior store contents it emits the same decisions
// and the same store effects.
package correlate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rackwise/autocable/internal/classify"
	"github.com/rackwise/autocable/internal/fdb"
	"github.com/rackwise/autocable/internal/macaddr"
	"github.com/rackwise/autocable/internal/netbox"
	"github.com/rackwise/autocable/internal/state"
)

// PortLookup resolves switch ports in the inventory. Implemented by
// *netbox.Client; defined here so tests can substitute a fake.
type PortLookup interface {
	GetSwitchPort(ctx context.Context, switchID int, portName string) (*netbox.SwitchPort, error)
}

// Decision is the per-interface outcome of one correlation run.
type Decision struct {
	MAC    string
	OOB    netbox.OOBInterface
	Status state.Status
	Reason string

	// Populated once a sighting is resolved.
	SwitchName string
	SwitchID   int
	PortName   string
	PortID     int
	VLAN       int

	Classification *classify.Classification

	StabilityCount int
	IsStable       bool

	// Populated for mismatches on already-cabled interfaces.
	ExpectedMAC string
	ActualMAC   string
}

// MLAGPair names two switches acting as one logical endpoint. The
// first switch wins deterministic tie-breaks.
type MLAGPair struct {
	First  string
	Second string
}

// ParseMLAGGroups parses "sw1:sw2,sw3:sw4" into pairs, ignoring
// malformed groups.
func ParseMLAGGroups(raw string) []MLAGPair {
	var pairs []MLAGPair
	for _, group := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(group), ":")
		if len(parts) != 2 {
			continue
		}
		first, second := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if first == "" || second == "" {
			continue
		}
		pairs = append(pairs, MLAGPair{First: first, Second: second})
	}
	return pairs
}

// Correlator applies the decision pipeline.
type Correlator struct {
	classifier *classify.Classifier
	store      state.Store
	ports      PortLookup
	threshold  int
	logger     *zap.Logger

	// Symmetric peer map and the configured first switch of each
	// pair, both built once at construction.
	peers     map[string]string
	pairFirst map[string]string
}

// New builds a Correlator. threshold is the number of consecutive
// identical observations required before a MAC is considered stable.
func New(classifier *classify.Classifier, store state.Store, ports PortLookup, mlagPairs []MLAGPair, threshold int, logger *zap.Logger) *Correlator {
	if threshold < 1 {
		threshold = 1
	}

	peers := make(map[string]string, len(mlagPairs)*2)
	pairFirst := make(map[string]string, len(mlagPairs)*2)
	for _, p := range mlagPairs {
		peers[p.First] = p.Second
		peers[p.Second] = p.First
		pairFirst[p.First] = p.First
		pairFirst[p.Second] = p.First
	}

	return &Correlator{
		classifier: classifier,
		store:      store,
		ports:      ports,
		threshold:  threshold,
		logger:     logger,
		peers:      peers,
		pairFirst:  pairFirst,
	}
}

// Correlate emits one decision per OOB interface, in input order.
func (c *Correlator) Correlate(ctx context.Context, oobInterfaces []netbox.OOBInterface, entries []fdb.Entry, switches []netbox.Switch) []Decision {
	switchByName := make(map[string]netbox.Switch, len(switches))
	for _, sw := range switches {
		switchByName[sw.Name] = sw
	}

	macToFDB := make(map[string][]fdb.Entry)
	portToMAC := make(map[[2]string]string)
	for _, e := range entries {
		mac, err := macaddr.Normalize(e.MAC)
		if err != nil || mac == "" {
			c.logger.Debug("dropping FDB entry with bad MAC",
				zap.String("mac", e.MAC), zap.String("switch", e.SwitchName))
			continue
		}
		macToFDB[mac] = append(macToFDB[mac], e)
		// Last write wins when a port reports several MACs.
		portToMAC[[2]string{e.SwitchName, e.PortName}] = mac
	}

	decisions := make([]Decision, 0, len(oobInterfaces))
	for _, oob := range oobInterfaces {
		decisions = append(decisions, c.correlateOne(ctx, oob, macToFDB, switchByName, portToMAC))
	}
	return decisions
}

func (c *Correlator) correlateOne(ctx context.Context, oob netbox.OOBInterface, macToFDB map[string][]fdb.Entry, switchByName map[string]netbox.Switch, portToMAC map[[2]string]string) Decision {
	mac, err := macaddr.Normalize(oob.MAC)
	if err != nil || mac == "" {
		return Decision{
			MAC:    oob.MAC,
			OOB:    oob,
			Status: state.StatusError,
			Reason: fmt.Sprintf("malformed OOB MAC %q", oob.MAC),
		}
	}

	if oob.HasCable {
		if d, mismatch := c.checkMismatch(oob, mac, portToMAC); mismatch {
			return d
		}
		return Decision{
			MAC:    mac,
			OOB:    oob,
			Status: state.StatusExists,
			Reason: "OOB interface already has cable",
		}
	}

	sightings := macToFDB[mac]
	if len(sightings) == 0 {
		if err := c.store.MarkNotFound(ctx, mac); err != nil {
			return c.storeError(mac, oob, err)
		}
		return Decision{
			MAC:    mac,
			OOB:    oob,
			Status: state.StatusNotFound,
			Reason: "MAC not found in any FDB",
		}
	}

	best, ok := c.resolveAmbiguity(sightings)
	if !ok {
		locations := make([]string, len(sightings))
		for i, e := range sightings {
			locations[i] = e.SwitchName + ":" + e.PortName
		}
		return Decision{
			MAC:    mac,
			OOB:    oob,
			Status: state.StatusAmbiguous,
			Reason: "MAC found on multiple endpoints: " + strings.Join(locations, ", "),
		}
	}

	sw, ok := switchByName[best.SwitchName]
	if !ok {
		return Decision{
			MAC:    mac,
			OOB:    oob,
			Status: state.StatusError,
			Reason: fmt.Sprintf("switch %s unknown to inventory", best.SwitchName),
		}
	}

	classification := c.classifier.Classify(best.PortName, "", false, false)
	if !classification.Allowed {
		if err := c.store.UpdateStatus(ctx, mac, state.StatusSkipNonAccess, 0); err != nil {
			return c.storeError(mac, oob, err)
		}
		return Decision{
			MAC:            mac,
			OOB:            oob,
			Status:         state.StatusSkipNonAccess,
			Reason:         classification.Reason,
			SwitchName:     best.SwitchName,
			SwitchID:       sw.ID,
			PortName:       best.PortName,
			VLAN:           best.VLAN,
			Classification: &classification,
		}
	}

	port, err := c.ports.GetSwitchPort(ctx, sw.ID, best.PortName)
	if err != nil {
		return Decision{
			MAC:            mac,
			OOB:            oob,
			Status:         state.StatusError,
			Reason:         fmt.Sprintf("look up %s on %s: %v", best.PortName, best.SwitchName, err),
			SwitchName:     best.SwitchName,
			SwitchID:       sw.ID,
			PortName:       best.PortName,
			VLAN:           best.VLAN,
			Classification: &classification,
		}
	}
	if port == nil {
		return Decision{
			MAC:            mac,
			OOB:            oob,
			Status:         state.StatusError,
			Reason:         fmt.Sprintf("interface %s not found on %s", best.PortName, best.SwitchName),
			SwitchName:     best.SwitchName,
			SwitchID:       sw.ID,
			PortName:       best.PortName,
			VLAN:           best.VLAN,
			Classification: &classification,
		}
	}

	if port.HasCable {
		if err := c.store.UpdateStatus(ctx, mac, state.StatusSkipNonAccess, 0); err != nil {
			return c.storeError(mac, oob, err)
		}
		return Decision{
			MAC:            mac,
			OOB:            oob,
			Status:         state.StatusSkipNonAccess,
			Reason:         fmt.Sprintf("switch port %s already has cable", best.PortName),
			SwitchName:     best.SwitchName,
			SwitchID:       sw.ID,
			PortName:       best.PortName,
			PortID:         port.ID,
			VLAN:           best.VLAN,
			Classification: &classification,
		}
	}

	count, stable, err := c.store.UpdateObservation(ctx, mac, best.SwitchName, best.PortName, best.VLAN, c.threshold)
	if err != nil {
		return c.storeError(mac, oob, err)
	}

	reason := "ready for cable creation"
	if !stable {
		reason = fmt.Sprintf("waiting for stability (%d/%d)", count, c.threshold)
	}

	return Decision{
		MAC:            mac,
		OOB:            oob,
		Status:         state.StatusPending,
		Reason:         reason,
		SwitchName:     best.SwitchName,
		SwitchID:       sw.ID,
		PortName:       best.PortName,
		PortID:         port.ID,
		VLAN:           best.VLAN,
		Classification: &classification,
		StabilityCount: count,
		IsStable:       stable,
	}
}

// resolveAmbiguity reduces multiple sightings to one endpoint. A pair
// of MLAG peers reporting the same port collapses to the configured
// first switch of the pair, independent of input order.
func (c *Correlator) resolveAmbiguity(sightings []fdb.Entry) (fdb.Entry, bool) {
	if len(sightings) == 1 {
		return sightings[0], true
	}

	unique := make(map[[2]string]struct{})
	for _, e := range sightings {
		unique[[2]string{e.SwitchName, e.PortName}] = struct{}{}
	}

	if len(unique) == 1 {
		return sightings[0], true
	}

	if len(unique) == 2 {
		endpoints := make([][2]string, 0, 2)
		for ep := range unique {
			endpoints = append(endpoints, ep)
		}
		sort.Slice(endpoints, func(i, j int) bool { return endpoints[i][0] < endpoints[j][0] })

		sw1, port1 := endpoints[0][0], endpoints[0][1]
		sw2, port2 := endpoints[1][0], endpoints[1][1]

		if port1 == port2 && c.peers[sw1] == sw2 {
			winner := c.pairFirst[sw1]
			for _, e := range sightings {
				if e.SwitchName == winner {
					return e, true
				}
			}
		}
	}

	return fdb.Entry{}, false
}

// checkMismatch compares the MAC the FDB sees on the recorded cable
// peer port against the expected OOB MAC. No sighting on the peer port
// is not a mismatch: the device may simply be powered off.
func (c *Correlator) checkMismatch(oob netbox.OOBInterface, expectedMAC string, portToMAC map[[2]string]string) (Decision, bool) {
	if oob.CablePeerSwitch == "" || oob.CablePeerPort == "" {
		return Decision{}, false
	}

	actual, seen := portToMAC[[2]string{oob.CablePeerSwitch, oob.CablePeerPort}]
	if !seen || actual == expectedMAC {
		return Decision{}, false
	}

	c.logger.Warn("MAC mismatch on cabled port",
		zap.String("device", oob.DeviceName),
		zap.String("interface", oob.InterfaceName),
		zap.String("expected_mac", expectedMAC),
		zap.String("actual_mac", actual),
		zap.String("switch", oob.CablePeerSwitch),
		zap.String("port", oob.CablePeerPort))

	return Decision{
		MAC:         expectedMAC,
		OOB:         oob,
		Status:      state.StatusMismatch,
		Reason:      fmt.Sprintf("MAC mismatch: expected %s, found %s on port", expectedMAC, actual),
		SwitchName:  oob.CablePeerSwitch,
		PortName:    oob.CablePeerPort,
		ExpectedMAC: expectedMAC,
		ActualMAC:   actual,
	}, true
}

func (c *Correlator) storeError(mac string, oob netbox.OOBInterface, err error) Decision {
	return Decision{
		MAC:    mac,
		OOB:    oob,
		Status: state.StatusError,
		Reason: fmt.Sprintf("state store: %v", err),
	}
}
