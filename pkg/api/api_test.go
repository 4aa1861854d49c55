package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-legged/controller/domain/controller"
	customlog "github.com/open-legged/controller/pkg/log"
	"github.com/open-legged/controller/services"
)

type fakeController struct {
	requested []controller.RobotMode
	err       error
}

func (f *fakeController) Status() controller.Status {
	return controller.Status{Mode: "idle", ControlMode: "joint_tracking", Ready: true}
}

func (f *fakeController) RequestMode(_ context.Context, m controller.RobotMode) (controller.ModeContext, error) {
	f.requested = append(f.requested, m)
	if f.err != nil {
		return controller.ModeContext{}, f.err
	}
	if _, err := controller.ControlModeFor(m); err != nil {
		return controller.ModeContext{}, err
	}
	return controller.ModeContext{Mode: m, TransitionID: "abc"}, nil
}

func testLogger() customlog.Logger {
	return customlog.NewWriterLogger("error", io.Discard)
}

func newControllerApp(ctl ControllerAPI) *fiber.App {
	app := fiber.New()
	RegisterControllerRoutes(app, ctl, time.Second, testLogger())
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response of %s %s: %v", method, path, err)
	}
	return resp, out
}

func TestStatusEndpoint(t *testing.T) {
	app := newControllerApp(&fakeController{})
	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/controller/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["mode"] != "idle" || body["ready"] != true {
		t.Errorf("Unexpected status body: %v", body)
	}
}

func TestModeEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		ctlErr   error
		wantCode int
	}{
		{"idle", `{"mode": "idle"}`, nil, http.StatusOK},
		{"standup", `{"mode": "Standup"}`, nil, http.StatusOK},
		{"walk", `{"mode": "walk"}`, nil, http.StatusNotImplemented},
		{"unknown", `{"mode": "gallop"}`, nil, http.StatusBadRequest},
		{"bad body", `{"mode": `, nil, http.StatusBadRequest},
		{"busy", `{"mode": "idle"}`, controller.ErrBusy, http.StatusConflict},
		{"shutting down", `{"mode": "idle"}`, controller.ErrShuttingDown, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newControllerApp(&fakeController{err: tc.ctlErr})
			resp, body := doJSON(t, app, http.MethodPost, "/api/v1/controller/mode", tc.body)
			if resp.StatusCode != tc.wantCode {
				t.Fatalf("Expected %d, got %d (%v)", tc.wantCode, resp.StatusCode, body)
			}
			if tc.wantCode == http.StatusOK {
				if body["status"] != "success" || body["transition_id"] != "abc" {
					t.Errorf("Unexpected success body: %v", body)
				}
			} else if body["code"] != float64(tc.wantCode) {
				t.Errorf("Expected code %d in body, got %v", tc.wantCode, body["code"])
			}
		})
	}
}

func TestStandupEndpoint(t *testing.T) {
	ctl := &fakeController{}
	app := newControllerApp(ctl)
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/controller/standup", "")
	if resp.StatusCode != http.StatusOK || body["mode"] != "standup" {
		t.Fatalf("Unexpected response %d: %v", resp.StatusCode, body)
	}
	if len(ctl.requested) != 1 || ctl.requested[0] != controller.ModeStandup {
		t.Errorf("Expected one standup request, got %v", ctl.requested)
	}
}

func TestConfigEndpoint(t *testing.T) {
	yamlContent := "version: \"1.0\"\nrobot_id: \"spot\"\n"
	path := filepath.Join(t.TempDir(), "legged_controller.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	svc, err := services.NewControllerConfigService(path, testLogger())
	if err != nil {
		t.Fatalf("NewControllerConfigService failed: %v", err)
	}

	app := fiber.New()
	RegisterConfigRoutes(app, svc, testLogger())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/config/controller", nil))
	if err != nil {
		t.Fatalf("GET config failed: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != yamlContent {
		t.Errorf("Unexpected config response %d: %q", resp.StatusCode, data)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "application/x-yaml" {
		t.Errorf("Expected YAML content type, got %s", ct)
	}

	resp2, body := doJSON(t, app, http.MethodGet, "/api/v1/config/controller/channels", "")
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp2.StatusCode)
	}
	channels, _ := body["channels"].(map[string]interface{})
	if channels["gen_coord"] != "/spot/gen_coord" {
		t.Errorf("Unexpected channels: %v", body)
	}
}

func TestCommandStreamLatestWins(t *testing.T) {
	stream := NewCommandStream(testLogger())
	client := stream.subscribe()

	for i := 0; i < 3; i++ {
		cmd := controller.CommandPair{Position: []float64{float64(i)}, Velocity: []float64{0}}
		if err := stream.PublishCommands(cmd); err != nil {
			t.Fatalf("PublishCommands failed: %v", err)
		}
	}

	select {
	case cmd := <-client.pending:
		if cmd.Position[0] != 2 {
			t.Errorf("Expected the latest command, got %v", cmd.Position)
		}
	default:
		t.Fatalf("No command pending")
	}
	select {
	case cmd := <-client.pending:
		t.Errorf("Expected a single pending command, also got %v", cmd)
	default:
	}

	if stream.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", stream.ClientCount())
	}
	stream.unsubscribe(client)
	if stream.ClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", stream.ClientCount())
	}
	stream.Close()
	stream.Close()
}

func TestWebSocketRouteRequiresUpgrade(t *testing.T) {
	app := fiber.New()
	RegisterWebSocketRoutes(app, NewCommandStream(testLogger()))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/commands", nil))
	if err != nil {
		t.Fatalf("GET /ws/commands failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Expected 426 without upgrade headers, got %d", resp.StatusCode)
	}
}
