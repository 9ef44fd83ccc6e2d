// Package classify decides whether a switch port is eligible for
// automatic cabling. Only access ports (end-host facing) are allowed;
// uplinks, trunks, and LAG members are rejected.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// PortType is the classification outcome for a switch port.
type PortType string

const (
	PortAccess    PortType = "access"
	PortTrunk     PortType = "trunk"
	PortUplink    PortType = "uplink"
	PortLAGMember PortType = "lag_member"
	PortUnknown   PortType = "unknown"
)

// DefaultUplinkPatterns match port names and descriptions that indicate
// a switch-to-switch link. User-overridable via configuration.
var DefaultUplinkPatterns = []string{
	`uplink`,
	`to[-_]?spine`,
	`trunk`,
	`peer`,
	`mlag`,
	`lag`,
	`^po\d+`,
	`port[-_]?channel`,
}

// Classification is the result of classifying a single port.
type Classification struct {
	PortName string
	Type     PortType
	Reason   string
	Allowed  bool
}

// Classifier classifies switch ports as access or uplink/trunk.
type Classifier struct {
	uplinkPorts   map[string]struct{}
	uplinkPattern *regexp.Regexp
}

// New builds a Classifier from an explicit uplink port list and a set
// of uplink regex patterns. Patterns are combined into a single
// case-insensitive alternation; an invalid pattern is a construction
// error.
func New(uplinkPorts, uplinkPatterns []string) (*Classifier, error) {
	if len(uplinkPatterns) == 0 {
		uplinkPatterns = DefaultUplinkPatterns
	}

	alternatives := make([]string, len(uplinkPatterns))
	for i, p := range uplinkPatterns {
		alternatives[i] = "(" + p + ")"
	}
	pattern, err := regexp.Compile("(?i)" + strings.Join(alternatives, "|"))
	if err != nil {
		return nil, fmt.Errorf("compile uplink patterns: %w", err)
	}

	ports := make(map[string]struct{}, len(uplinkPorts))
	for _, p := range uplinkPorts {
		ports[p] = struct{}{}
	}

	return &Classifier{uplinkPorts: ports, uplinkPattern: pattern}, nil
}

// Classify applies the decision rules in fixed order; the first match
// wins. Description and the LAG/LLDP hints are optional enrichment.
func (c *Classifier) Classify(portName, description string, isLAGMember, lldpNeighborIsSwitch bool) Classification {
	if _, ok := c.uplinkPorts[portName]; ok {
		return Classification{
			PortName: portName,
			Type:     PortUplink,
			Reason:   fmt.Sprintf("port in uplink list: %s", portName),
			Allowed:  false,
		}
	}

	if description != "" {
		if match := c.uplinkPattern.FindString(description); match != "" {
			return Classification{
				PortName: portName,
				Type:     PortUplink,
				Reason:   fmt.Sprintf("description matches uplink pattern: %q", match),
				Allowed:  false,
			}
		}
	}

	if match := c.uplinkPattern.FindString(portName); match != "" {
		return Classification{
			PortName: portName,
			Type:     PortUplink,
			Reason:   fmt.Sprintf("port name matches uplink pattern: %q", match),
			Allowed:  false,
		}
	}

	if isLAGMember {
		return Classification{
			PortName: portName,
			Type:     PortLAGMember,
			Reason:   "port is LAG member",
			Allowed:  false,
		}
	}

	if lldpNeighborIsSwitch {
		return Classification{
			PortName: portName,
			Type:     PortUplink,
			Reason:   "LLDP neighbor is a switch",
			Allowed:  false,
		}
	}

	return Classification{
		PortName: portName,
		Type:     PortAccess,
		Reason:   "no uplink/trunk indicators found",
		Allowed:  true,
	}
}

// IsAccess reports whether the port classifies as an allowed access port.
func (c *Classifier) IsAccess(portName, description string, isLAGMember, lldpNeighborIsSwitch bool) bool {
	return c.Classify(portName, description, isLAGMember, lldpNeighborIsSwitch).Allowed
}
