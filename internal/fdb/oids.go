package fdb

// OIDs walked during FDB collection.
const (
	// ifName: ifIndex -> human port name (IF-MIB).
	OIDIfName = "1.3.6.1.2.1.31.1.1.1.1"

	// hwMacFwdPort: Huawei CE switches. Suffix is six MAC octets, one
	// VLAN component, one trailing 0; value is the ifIndex.
	OIDHuaweiMacFwdPort = "1.3.6.1.4.1.2011.5.25.42.2.1.3.1.4"

	// dot1qTpFdbPort: Q-Bridge MIB, VLAN-aware. Suffix is one VLAN
	// component then six MAC octets; value is the bridge port.
	OIDDot1qTpFdbPort = "1.3.6.1.2.1.17.7.1.2.2.1.2"

	// dot1dTpFdbPort: Bridge MIB, no VLAN. Suffix is six MAC octets;
	// value is the bridge port.
	OIDDot1dTpFdbPort = "1.3.6.1.2.1.17.4.3.1.2"
)
