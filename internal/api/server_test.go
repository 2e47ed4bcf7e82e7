package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/awksedgreep/snmpherd/internal/device"
	"github.com/awksedgreep/snmpherd/internal/faults"
	"github.com/awksedgreep/snmpherd/internal/pool"
	"github.com/awksedgreep/snmpherd/internal/scenario"
	"github.com/awksedgreep/snmpherd/internal/store"
)

func newTestServer(t *testing.T) (*Server, *pool.Pool) {
	t.Helper()
	assign, err := pool.NewAssignments(map[string][]pool.Range{
		"cable_modem": {{Start: 45001, End: 45020}},
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := pool.New(pool.Config{
		Host:        "127.0.0.1",
		Assignments: assign,
		Profiles:    store.NewRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Stop)

	scenarios, err := scenario.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	runner := scenario.NewRunner(p)
	t.Cleanup(runner.Close)

	return NewServer(":0", p, scenarios, runner, nil), p
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestStatusReportsPopulation(t *testing.T) {
	s, p := newTestServer(t)
	if _, err := p.GetOrCreate(45001); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp statusResponse
	decodeBody(t, rec, &resp)
	if resp.Pool.Devices != 1 {
		t.Fatalf("pool devices = %d, want 1", resp.Pool.Devices)
	}
	if resp.Uptime == "" {
		t.Fatal("uptime missing")
	}
}

func TestDeviceListingAndInfo(t *testing.T) {
	s, p := newTestServer(t)
	for _, port := range []int{45001, 45002} {
		if _, err := p.GetOrCreate(port); err != nil {
			t.Fatal(err)
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/api/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var infos []device.Info
	decodeBody(t, rec, &infos)
	if len(infos) != 2 || infos[0].Port != 45001 {
		t.Fatalf("infos = %+v", infos)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/devices/45002", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}
	var info device.Info
	decodeBody(t, rec, &info)
	if info.Port != 45002 || info.DeviceType != "cable_modem" {
		t.Fatalf("info = %+v", info)
	}

	if rec := doJSON(t, s, http.MethodGet, "/api/devices/45019", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("absent device status = %d, want 404", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/api/devices/nope", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad port status = %d, want 400", rec.Code)
	}
}

func TestDeviceReboot(t *testing.T) {
	s, p := newTestServer(t)
	if _, err := p.GetOrCreate(45003); err != nil {
		t.Fatal(err)
	}

	if rec := doJSON(t, s, http.MethodPost, "/api/devices/45003/reboot", nil); rec.Code != http.StatusOK {
		t.Fatalf("reboot status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, http.MethodPost, "/api/devices/45004/reboot", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("absent reboot status = %d, want 404", rec.Code)
	}
}

func TestDeviceInjectLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	// Injecting on a fresh port creates the device.
	rec := doJSON(t, s, http.MethodPost, "/api/devices/45005/inject", map[string]interface{}{
		"kind":      "packet_loss",
		"loss_rate": 0.5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("inject status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created map[string]interface{}
	decodeBody(t, rec, &created)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("no condition id in %v", created)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/devices/45005/conditions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("conditions status = %d", rec.Code)
	}
	var conds []faults.ConditionInfo
	decodeBody(t, rec, &conds)
	if len(conds) != 1 || conds[0].Kind != faults.PacketLoss {
		t.Fatalf("conditions = %+v", conds)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/devices/45005/conditions?id="+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, http.MethodDelete, "/api/devices/45005/conditions?id="+id, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second remove status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/devices/45005/conditions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
}

func TestDeviceInjectRejectsBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/devices/45006/inject", map[string]interface{}{"kind": "gremlins"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind status = %d, want 400", rec.Code)
	}
	// 49000 is outside every assigned range.
	rec = doJSON(t, s, http.MethodPost, "/api/devices/49000/inject", map[string]interface{}{"kind": "timeout"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unassigned port status = %d, want 404", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/api/devices/45006/inject", map[string]interface{}{
		"kind":  "snmp_error",
		"error": "nonsense",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad snmp error status = %d, want 400", rec.Code)
	}
}

func TestScenarioCRUD(t *testing.T) {
	s, _ := newTestServer(t)

	def := scenario.Definition{
		Name:       "evening-surge",
		Type:       scenario.TypeHighLoad,
		DurationMS: 60_000,
	}
	rec := doJSON(t, s, http.MethodPost, "/api/scenarios", def)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var saved scenario.Definition
	decodeBody(t, rec, &saved)
	if saved.Mode == "" {
		t.Fatal("save did not fill the default mode")
	}

	rec = doJSON(t, s, http.MethodGet, "/api/scenarios", nil)
	var listed []scenario.Definition
	decodeBody(t, rec, &listed)
	if len(listed) != 1 || listed[0].Name != "evening-surge" {
		t.Fatalf("list = %+v", listed)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/scenarios/evening-surge", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/scenarios/evening-surge", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/api/scenarios/evening-surge", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}

	if rec := doJSON(t, s, http.MethodPost, "/api/scenarios", scenario.Definition{Name: "x", Type: "bogus"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid save status = %d, want 400", rec.Code)
	}
}

func TestScenarioAcceptsYAML(t *testing.T) {
	s, _ := newTestServer(t)

	body := strings.NewReader("name: rain-window\ntype: signal_degradation\nmode: steady\nduration_ms: 60000\n")
	req := httptest.NewRequest(http.MethodPost, "/api/scenarios", body)
	req.Header.Set("Content-Type", "application/yaml")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("yaml save status = %d, body = %s", rec.Code, rec.Body.String())
	}

	got := doJSON(t, s, http.MethodGet, "/api/scenarios/rain-window", nil)
	var def scenario.Definition
	decodeBody(t, got, &def)
	if def.Type != scenario.TypeSignalDegradation || def.Mode != "steady" {
		t.Fatalf("stored = %+v", def)
	}
}

func TestScenarioRun(t *testing.T) {
	s, _ := newTestServer(t)

	def := scenario.Definition{
		Name:       "drop-45007",
		Type:       scenario.TypeDeviceFlapping,
		Ports:      []int{45007},
		DurationMS: 60_000,
	}
	if rec := doJSON(t, s, http.MethodPost, "/api/scenarios", def); rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d", rec.Code)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/scenarios/run", map[string]string{"name": "drop-45007"})
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var desc scenario.Descriptor
	decodeBody(t, rec, &desc)
	if desc.DevicesAffected != 1 || desc.ConditionsApplied != 1 {
		t.Fatalf("descriptor = %+v", desc)
	}

	if rec := doJSON(t, s, http.MethodPost, "/api/scenarios/run", map[string]string{"name": "ghost"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run status = %d, want 404", rec.Code)
	}

	// An inline range over a dead zone resolves to zero targets.
	inline := scenario.Definition{
		Name:      "empty-window",
		Type:      scenario.TypeNetworkOutage,
		PortStart: 45010,
		PortEnd:   45015,
	}
	if rec := doJSON(t, s, http.MethodPost, "/api/scenarios/run", inline); rec.Code != http.StatusConflict {
		t.Fatalf("no-target run status = %d, want 409", rec.Code)
	}
}

func TestMethodGuards(t *testing.T) {
	s, _ := newTestServer(t)
	cases := []struct {
		method, path string
	}{
		{http.MethodDelete, "/api/devices"},
		{http.MethodPost, "/api/status"},
		{http.MethodPut, "/api/scenarios"},
		{http.MethodGet, "/api/scenarios/run"},
	}
	for _, tc := range cases {
		rec := doJSON(t, s, tc.method, tc.path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s status = %d, want 405", tc.method, tc.path, rec.Code)
		}
	}
}

func TestDeviceSubresourceRouting(t *testing.T) {
	s, p := newTestServer(t)
	if _, err := p.GetOrCreate(45008); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/devices/%d/unknown", 45008), nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unknown subresource status = %d, want 405", rec.Code)
	}
}
