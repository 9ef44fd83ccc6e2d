package netbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// newMockInventory builds a test server mimicking the NetBox API with
// one OOB server (srv1) and two switches (sw1 with management IP, sw2
// without).
func newMockInventory(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/dcim/devices/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		q := r.URL.Query()
		switch {
		case q.Get("has_oob_ip") == "true":
			writeTestJSON(w, listResponse[deviceRecord]{Count: 1, Results: []deviceRecord{{
				ID:   1,
				Name: "srv1",
				Site: &siteRef{Slug: "dc1"},
				Rack: &nestedRef{Display: "R01"},
				OOBIP: &ipRef{
					ID:      100,
					Address: "10.0.0.50/24",
				},
			}}})
		case q.Get("site__slug") == "dc1":
			if q.Get("role") != "tor-switch" {
				t.Errorf("expected role filter, got %q", q.Get("role"))
			}
			writeTestJSON(w, listResponse[deviceRecord]{Count: 2, Results: []deviceRecord{
				{ID: 10, Name: "sw1", PrimaryIP: &ipRef{Address: "10.0.0.1/24"}},
				{ID: 11, Name: "sw2"},
			}})
		default:
			writeTestJSON(w, listResponse[deviceRecord]{})
		}
	})

	mux.HandleFunc("GET /api/ipam/ip-addresses/100/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, ipAddressRecord{
			ID:             100,
			Address:        "10.0.0.50/24",
			AssignedObject: &nestedRef{ID: 200},
		})
	})

	mux.HandleFunc("GET /api/dcim/interfaces/200/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, interfaceRecord{
			ID:         200,
			Name:       "ipmi0",
			MACAddress: "AA:BB:CC:DD:EE:01",
		})
	})

	mux.HandleFunc("GET /api/dcim/interfaces/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("device_id") == "10" && q.Get("name") == "Ethernet5" {
			writeTestJSON(w, listResponse[interfaceRecord]{Count: 1, Results: []interfaceRecord{{
				ID:     300,
				Name:   "Ethernet5",
				Device: &nestedRef{Display: "sw1"},
			}}})
			return
		}
		if q.Get("device_id") == "10" && q.Get("name") == "" {
			writeTestJSON(w, listResponse[interfaceRecord]{Count: 2, Results: []interfaceRecord{
				{ID: 300, Name: "Ethernet5", CustomFields: map[string]any{"if_index": float64(5)}},
				{ID: 301, Name: "Ethernet6", CustomFields: map[string]any{"if_index": float64(6)}},
			}})
			return
		}
		writeTestJSON(w, listResponse[interfaceRecord]{})
	})

	mux.HandleFunc("POST /api/dcim/cables/", func(w http.ResponseWriter, r *http.Request) {
		var req cableCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.ATerminations) != 1 || req.ATerminations[0].ObjectType != "dcim.interface" {
			t.Errorf("bad a_terminations: %+v", req.ATerminations)
		}
		if !strings.HasPrefix(req.Description, "autocabling:ipmi | source=fdb | created=") {
			t.Errorf("bad description: %q", req.Description)
		}
		if !strings.Contains(req.Description, "vlan=10") {
			t.Errorf("description missing vlan: %q", req.Description)
		}
		w.WriteHeader(http.StatusCreated)
		writeTestJSON(w, Cable{ID: 77, Status: req.Status, Description: req.Description})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, dryRun bool) *Client {
	t.Helper()
	return NewClient(Options{
		URL:         srv.URL,
		Token:       "test-token",
		VerifySSL:   true,
		Timeout:     5 * time.Second,
		SwitchRole:  "tor-switch",
		CableStatus: "planned",
		DryRun:      dryRun,
	}, zap.NewNop())
}

func TestListOOBInterfaces(t *testing.T) {
	c := newTestClient(t, newMockInventory(t), false)

	got, err := c.ListOOBInterfaces(context.Background())
	if err != nil {
		t.Fatalf("ListOOBInterfaces: %v", err)
	}

	want := []OOBInterface{{
		DeviceID:      1,
		DeviceName:    "srv1",
		InterfaceID:   200,
		InterfaceName: "ipmi0",
		MAC:           "aa:bb:cc:dd:ee:01",
		Site:          "dc1",
		Rack:          "R01",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("OOB interfaces mismatch (-want +got):\n%s", diff)
	}
}

func TestListSwitchesBySite(t *testing.T) {
	c := newTestClient(t, newMockInventory(t), false)

	got, err := c.ListSwitches(context.Background(), []string{"dc1"})
	if err != nil {
		t.Fatalf("ListSwitches: %v", err)
	}

	want := []Switch{
		{ID: 10, Name: "sw1", PrimaryIP: "10.0.0.1", Site: "dc1"},
		{ID: 11, Name: "sw2", Site: "dc1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("switches mismatch (-want +got):\n%s", diff)
	}
}

func TestGetSwitchPort(t *testing.T) {
	c := newTestClient(t, newMockInventory(t), false)
	ctx := context.Background()

	port, err := c.GetSwitchPort(ctx, 10, "Ethernet5")
	if err != nil {
		t.Fatalf("GetSwitchPort: %v", err)
	}
	if port == nil || port.ID != 300 || port.Name != "Ethernet5" || port.DeviceName != "sw1" {
		t.Errorf("port = %+v", port)
	}

	missing, err := c.GetSwitchPort(ctx, 10, "Ethernet99")
	if err != nil {
		t.Fatalf("GetSwitchPort missing: %v", err)
	}
	if missing != nil {
		t.Errorf("missing port = %+v, want nil", missing)
	}
}

func TestGetSwitchPortByIfIndex(t *testing.T) {
	c := newTestClient(t, newMockInventory(t), false)

	port, err := c.GetSwitchPortByIfIndex(context.Background(), 10, 6)
	if err != nil {
		t.Fatalf("GetSwitchPortByIfIndex: %v", err)
	}
	if port == nil || port.ID != 301 || port.Name != "Ethernet6" {
		t.Errorf("port = %+v", port)
	}

	missing, err := c.GetSwitchPortByIfIndex(context.Background(), 10, 99)
	if err != nil {
		t.Fatalf("GetSwitchPortByIfIndex missing: %v", err)
	}
	if missing != nil {
		t.Errorf("missing port = %+v, want nil", missing)
	}
}

func TestCreateCable(t *testing.T) {
	c := newTestClient(t, newMockInventory(t), false)

	cable, err := c.CreateCable(context.Background(), 200, 300, 10, "")
	if err != nil {
		t.Fatalf("CreateCable: %v", err)
	}
	if cable == nil || cable.ID != 77 || cable.Status != "planned" {
		t.Errorf("cable = %+v", cable)
	}
}

func TestCreateCableDryRun(t *testing.T) {
	// Server that fails the test if a cable POST arrives.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/dcim/cables/", func(http.ResponseWriter, *http.Request) {
		t.Error("dry run must not POST cables")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, true)
	cable, err := c.CreateCable(context.Background(), 200, 300, 0, "")
	if err != nil {
		t.Fatalf("CreateCable dry run: %v", err)
	}
	if cable != nil {
		t.Errorf("dry run cable = %+v, want nil", cable)
	}
}

func TestPaginationFollowsNext(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/dcim/devices/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "1" {
			writeTestJSON(w, listResponse[deviceRecord]{Count: 2, Results: []deviceRecord{{ID: 2, Name: "b"}}})
			return
		}
		next := srv.URL + "/api/dcim/devices/?offset=1"
		writeTestJSON(w, listResponse[deviceRecord]{Count: 2, Next: &next, Results: []deviceRecord{{ID: 1, Name: "a"}}})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(Options{URL: srv.URL, Token: "t", VerifySSL: true}, zap.NewNop())
	devices, err := getAll[deviceRecord](context.Background(), c, "/api/dcim/devices/")
	if err != nil {
		t.Fatalf("getAll: %v", err)
	}
	if len(devices) != 2 || devices[0].Name != "a" || devices[1].Name != "b" {
		t.Errorf("devices = %+v", devices)
	}
}

func TestHTTPErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail": "boom"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Options{URL: srv.URL, Token: "t", VerifySSL: true}, zap.NewNop())
	if _, err := c.ListOOBInterfaces(context.Background()); err == nil {
		t.Error("expected error from 500 response")
	} else if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should carry status code, got %v", err)
	}
}
