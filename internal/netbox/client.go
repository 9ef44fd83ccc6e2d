// Package netbox talks to the NetBox REST API: enumerating OOB
// interfaces and switches, resolving switch ports, and creating cables.
package netbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rackwise/autocable/internal/macaddr"
)

// Options configures a Client.
type Options struct {
	URL         string
	Token       string
	VerifySSL   bool
	Timeout     time.Duration
	SwitchRole  string // role filter for switch enumeration; empty = no filter
	CableStatus string // "planned" or "connected"
	DryRun      bool   // log cable intents instead of creating them
}

// Client wraps the NetBox REST API with a bearer-token session.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	switchRole  string
	cableStatus string
	dryRun      bool
	logger      *zap.Logger
}

// NewClient creates a NetBox API client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport
	if !opts.VerifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // operator-controlled toggle for self-signed NetBox
		}
	}

	status := opts.CableStatus
	if status == "" {
		status = "connected"
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout, Transport: transport},
		baseURL:     strings.TrimRight(opts.URL, "/"),
		token:       opts.Token,
		switchRole:  opts.SwitchRole,
		cableStatus: status,
		dryRun:      opts.DryRun,
		logger:      logger,
	}
}

// ListOOBInterfaces returns every device that has an OOB IP assigned,
// resolved down to the interface carrying it. Devices whose OOB IP is
// not bound to an interface, or whose interface has no MAC, are
// dropped with a warning.
func (c *Client) ListOOBInterfaces(ctx context.Context) ([]OOBInterface, error) {
	devices, err := getAll[deviceRecord](ctx, c, "/api/dcim/devices/?has_oob_ip=true&limit=200")
	if err != nil {
		return nil, fmt.Errorf("list OOB devices: %w", err)
	}

	var result []OOBInterface
	for _, device := range devices {
		if device.OOBIP == nil || device.OOBIP.ID == 0 {
			continue
		}

		var ip ipAddressRecord
		path := fmt.Sprintf("/api/ipam/ip-addresses/%d/", device.OOBIP.ID)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &ip); err != nil {
			return nil, fmt.Errorf("get OOB IP for %s: %w", device.Name, err)
		}

		if ip.AssignedObject == nil || ip.AssignedObject.ID == 0 {
			c.logger.Warn("OOB IP not assigned to an interface",
				zap.String("device", device.Name))
			continue
		}

		var iface interfaceRecord
		path = fmt.Sprintf("/api/dcim/interfaces/%d/", ip.AssignedObject.ID)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &iface); err != nil {
			return nil, fmt.Errorf("get OOB interface for %s: %w", device.Name, err)
		}

		if iface.MACAddress == "" {
			c.logger.Warn("OOB interface has no MAC",
				zap.String("device", device.Name),
				zap.String("interface", iface.Name))
			continue
		}

		mac, err := macaddr.Normalize(iface.MACAddress)
		if err != nil {
			c.logger.Warn("OOB interface has malformed MAC",
				zap.String("device", device.Name),
				zap.String("mac", iface.MACAddress),
				zap.Error(err))
			continue
		}

		oob := OOBInterface{
			DeviceID:      device.ID,
			DeviceName:    device.Name,
			InterfaceID:   iface.ID,
			InterfaceName: iface.Name,
			MAC:           mac,
			HasCable:      iface.Cable != nil,
		}
		if device.Site != nil {
			oob.Site = device.Site.Slug
		}
		if device.Rack != nil {
			oob.Rack = device.Rack.Display
		}
		if iface.Cable != nil && len(iface.LinkPeers) > 0 {
			peer := iface.LinkPeers[0]
			if peer.Device != nil {
				oob.CablePeerSwitch = peer.Device.Name
			}
			oob.CablePeerPort = peer.Name
		}

		result = append(result, oob)
		c.logger.Debug("found OOB interface",
			zap.String("device", oob.DeviceName),
			zap.String("interface", oob.InterfaceName),
			zap.String("mac", oob.MAC),
			zap.String("site", oob.Site),
			zap.Bool("has_cable", oob.HasCable))
	}

	c.logger.Info("enumerated OOB interfaces", zap.Int("count", len(result)))
	return result, nil
}

// ListSwitches returns the switches to poll. With sites given the
// per-site results are unioned; otherwise the configured role filter
// applies. With neither filter every device is returned, with a
// warning.
func (c *Client) ListSwitches(ctx context.Context, sites []string) ([]Switch, error) {
	if len(sites) > 0 {
		var result []Switch
		for _, site := range sites {
			q := url.Values{"site__slug": {site}}
			if c.switchRole != "" {
				q.Set("role", c.switchRole)
			}
			devices, err := getAll[deviceRecord](ctx, c, "/api/dcim/devices/?"+q.Encode())
			if err != nil {
				return nil, fmt.Errorf("list switches for site %s: %w", site, err)
			}
			for _, d := range devices {
				result = append(result, switchFromDevice(d, site))
			}
		}
		c.logger.Info("enumerated switches",
			zap.Int("count", len(result)), zap.Strings("sites", sites))
		return result, nil
	}

	q := url.Values{}
	if c.switchRole != "" {
		q.Set("role", c.switchRole)
	} else {
		c.logger.Warn("no switch filters configured, fetching all devices")
	}

	path := "/api/dcim/devices/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	devices, err := getAll[deviceRecord](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("list switches: %w", err)
	}

	result := make([]Switch, 0, len(devices))
	for _, d := range devices {
		site := ""
		if d.Site != nil {
			site = d.Site.Slug
		}
		result = append(result, switchFromDevice(d, site))
	}
	c.logger.Info("enumerated switches", zap.Int("count", len(result)))
	return result, nil
}

func switchFromDevice(d deviceRecord, site string) Switch {
	sw := Switch{ID: d.ID, Name: d.Name, Site: site}
	if d.PrimaryIP != nil && d.PrimaryIP.Address != "" {
		// Addresses carry a prefix length (e.g. 10.0.0.1/24).
		sw.PrimaryIP = strings.SplitN(d.PrimaryIP.Address, "/", 2)[0]
	}
	return sw
}

// GetSwitchPort resolves a port by exact name on the given switch.
// Returns (nil, nil) when no such interface exists.
func (c *Client) GetSwitchPort(ctx context.Context, switchID int, portName string) (*SwitchPort, error) {
	q := url.Values{
		"device_id": {strconv.Itoa(switchID)},
		"name":      {portName},
	}
	ifaces, err := getAll[interfaceRecord](ctx, c, "/api/dcim/interfaces/?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("get switch port %d/%s: %w", switchID, portName, err)
	}
	if len(ifaces) == 0 {
		return nil, nil
	}
	return switchPortFromInterface(ifaces[0], switchID), nil
}

// GetSwitchPortByIfIndex resolves a port via the if_index custom field,
// scanning the switch's interfaces. Returns (nil, nil) when no
// interface carries the index.
func (c *Client) GetSwitchPortByIfIndex(ctx context.Context, switchID, ifIndex int) (*SwitchPort, error) {
	q := url.Values{"device_id": {strconv.Itoa(switchID)}}
	ifaces, err := getAll[interfaceRecord](ctx, c, "/api/dcim/interfaces/?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("get switch port by ifindex %d/%d: %w", switchID, ifIndex, err)
	}

	for _, iface := range ifaces {
		// JSON numbers decode as float64.
		if v, ok := iface.CustomFields["if_index"].(float64); ok && int(v) == ifIndex {
			return switchPortFromInterface(iface, switchID), nil
		}
	}
	return nil, nil
}

func switchPortFromInterface(iface interfaceRecord, switchID int) *SwitchPort {
	port := &SwitchPort{
		ID:          iface.ID,
		Name:        iface.Name,
		DeviceID:    switchID,
		Description: iface.Description,
		HasCable:    iface.Cable != nil,
		MgmtOnly:    iface.MgmtOnly,
	}
	if iface.Device != nil {
		port.DeviceName = iface.Device.Display
	}
	return port
}

// InterfaceHasCable reports whether the interface already has a cable
// attached.
func (c *Client) InterfaceHasCable(ctx context.Context, interfaceID int) (bool, error) {
	var iface interfaceRecord
	path := fmt.Sprintf("/api/dcim/interfaces/%d/", interfaceID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &iface); err != nil {
		return false, fmt.Errorf("get interface %d: %w", interfaceID, err)
	}
	return iface.Cable != nil, nil
}

// CreateCable creates a cable between the server OOB interface and the
// switch port. In dry-run mode the intent is logged and (nil, nil)
// returned. vlan 0 means no VLAN is recorded in the description.
func (c *Client) CreateCable(ctx context.Context, serverInterfaceID, switchInterfaceID, vlan int, label string) (*Cable, error) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	parts := []string{"autocabling:ipmi", "source=fdb", "created=" + timestamp}
	if vlan != 0 {
		parts = append(parts, fmt.Sprintf("vlan=%d", vlan))
	}
	description := strings.Join(parts, " | ")

	req := cableCreateRequest{
		ATerminations: []termination{{ObjectType: "dcim.interface", ObjectID: serverInterfaceID}},
		BTerminations: []termination{{ObjectType: "dcim.interface", ObjectID: switchInterfaceID}},
		Status:        c.cableStatus,
		Description:   description,
		Label:         label,
	}

	if c.dryRun {
		c.logger.Info("dry run: would create cable",
			zap.Int("server_interface_id", serverInterfaceID),
			zap.Int("switch_interface_id", switchInterfaceID),
			zap.String("description", description))
		return nil, nil
	}

	var cable Cable
	if err := c.doJSON(ctx, http.MethodPost, "/api/dcim/cables/", req, &cable); err != nil {
		c.logger.Error("failed to create cable",
			zap.Int("server_interface_id", serverInterfaceID),
			zap.Int("switch_interface_id", switchInterfaceID),
			zap.Error(err))
		return nil, fmt.Errorf("create cable %d<->%d: %w", serverInterfaceID, switchInterfaceID, err)
	}

	c.logger.Info("created cable",
		zap.Int("cable_id", cable.ID),
		zap.Int("server_interface_id", serverInterfaceID),
		zap.Int("switch_interface_id", switchInterfaceID))
	return &cable, nil
}

// getAll fetches every page of a list endpoint, following the `next`
// link until absent.
func getAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	next := c.baseURL + path

	var out []T
	for next != "" {
		var page listResponse[T]
		if err := c.doURL(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}
	return out, nil
}

// doJSON performs a request against a path relative to the base URL.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	return c.doURL(ctx, method, c.baseURL+path, body, result)
}

// doURL performs an HTTP request with JSON serialization against an
// absolute URL (pagination `next` links are absolute).
func (c *Client) doURL(ctx context.Context, method, fullURL string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http %s %s: %w", method, fullURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("netbox API %s %s returned %d: %s", method, fullURL, resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
