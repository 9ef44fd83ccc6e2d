package netbox

// OOBInterface is a server management interface as known to the
// inventory: the device it belongs to, the interface carrying the OOB
// IP, its MAC, and the cable peer when one is recorded.
type OOBInterface struct {
	DeviceID      int
	DeviceName    string
	InterfaceID   int
	InterfaceName string
	MAC           string
	HasCable      bool
	Site          string
	Rack          string

	// Populated only when HasCable is true and the peer is known.
	CablePeerSwitch string
	CablePeerPort   string
}

// Switch is an access switch candidate for FDB polling. PrimaryIP is
// empty when the inventory has no management address; such switches
// are listed but skipped by the collector.
type Switch struct {
	ID        int
	Name      string
	PrimaryIP string
	Site      string
}

// SwitchPort is a single interface on a switch.
type SwitchPort struct {
	ID          int
	Name        string
	DeviceID    int
	DeviceName  string
	Description string
	HasCable    bool
	MgmtOnly    bool
}

// Cable is a created cable record.
type Cable struct {
	ID          int    `json:"id"`
	Status      string `json:"status"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// listResponse is the inventory's paginated envelope. Next holds the
// absolute URL of the following page, absent on the last one.
type listResponse[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

type nestedRef struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Display string `json:"display"`
}

type siteRef struct {
	Slug string `json:"slug"`
}

type ipRef struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
	Display string `json:"display"`
}

type deviceRecord struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Site      *siteRef   `json:"site"`
	Rack      *nestedRef `json:"rack"`
	OOBIP     *ipRef     `json:"oob_ip"`
	PrimaryIP *ipRef     `json:"primary_ip"`
}

type ipAddressRecord struct {
	ID             int        `json:"id"`
	Address        string     `json:"address"`
	AssignedObject *nestedRef `json:"assigned_object"`
}

type linkPeer struct {
	Name   string     `json:"name"`
	Device *nestedRef `json:"device"`
}

type interfaceRecord struct {
	ID           int            `json:"id"`
	Name         string         `json:"name"`
	Device       *nestedRef     `json:"device"`
	MACAddress   string         `json:"mac_address"`
	Description  string         `json:"description"`
	MgmtOnly     bool           `json:"mgmt_only"`
	Cable        *nestedRef     `json:"cable"`
	LinkPeers    []linkPeer     `json:"link_peers"`
	CustomFields map[string]any `json:"custom_fields"`
}

type termination struct {
	ObjectType string `json:"object_type"`
	ObjectID   int    `json:"object_id"`
}

type cableCreateRequest struct {
	ATerminations []termination `json:"a_terminations"`
	BTerminations []termination `json:"b_terminations"`
	Status        string        `json:"status"`
	Description   string        `json:"description"`
	Label         string        `json:"label,omitempty"`
}
