package contracttests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flight-control/mixerd/internal/audit"
	"github.com/flight-control/mixerd/internal/commands"
	"github.com/flight-control/mixerd/internal/config"
	"github.com/flight-control/mixerd/internal/controls"
	"github.com/flight-control/mixerd/internal/device"
	"github.com/flight-control/mixerd/internal/jsonrpc"
	"github.com/flight-control/mixerd/internal/mixer"
)

// TestServer wraps the daemon's HTTP surface for contract testing
type TestServer struct {
	server *httptest.Server
	device *device.Device
	config *config.Config
}

// NewTestServer creates a test server with the quad mix loaded
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	cfg := &config.Config{
		Network: config.NetworkConfig{
			HTTP: config.HTTPConfig{Port: 8080, DevMode: true},
		},
		Mixer: config.MixerConfig{MaxMixers: 8, MaxOutputs: 8, LoadPolicy: "abort"},
	}

	dev := device.New(device.Options{Limits: mixer.Limits{MaxMixers: 8, MaxOutputs: 8}})
	if _, err := dev.LoadBuffer(context.Background(), []byte(quadMix)); err != nil {
		t.Fatalf("LoadBuffer failed: %v", err)
	}

	logger, err := audit.NewLogger(t.TempDir(), audit.Rotation{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	dispatcher := commands.NewDispatcher(commands.Env{
		Device:     dev,
		Table:      controls.NewTable(time.Second),
		Audit:      logger,
		MaxOutputs: 8,
	})
	server := httptest.NewServer(jsonrpc.NewServer(cfg, dispatcher, nil, nil).Handler())

	t.Cleanup(func() {
		server.Close()
		dev.Close()
		logger.Close()
	})
	return &TestServer{server: server, device: dev, config: cfg}
}

// PostJSON sends a JSON-RPC request to the test server
func (ts *TestServer) PostJSON(t *testing.T, request map[string]interface{}) (*http.Response, []byte) {
	t.Helper()
	jsonData, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	resp, err := http.Post(ts.server.URL+jsonrpc.APIPath, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	return resp, body
}

func TestHTTPGoldenResponses(t *testing.T) {
	tests := []struct {
		request  string
		expected string
	}{
		{"get_output_count", "get_output_count_success"},
		{"dump", "dump_success"},
		{"mix", "mix_failsafe"},
		{"set_controls", "set_controls_success"},
		{"load_null", "load_null_success"},
		{"load_zero_controls", "invalid_config"},
		{"load_truncated", "parse_error"},
		{"add_simple_bad_base64", "invalid_params"},
		{"add_simple_short", "short_record"},
		{"reset", "reset_success"},
		{"unknown_method", "method_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			server := NewTestServer(t)
			request := loadGoldenFixture(t, "golden_requests.json", tt.request)
			expected := loadGoldenFixture(t, "golden_responses.json", tt.expected)

			resp, body := server.PostJSON(t, request)

			if resp.StatusCode != http.StatusOK {
				t.Errorf("Expected HTTP 200, got %d", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type application/json, got %s", ct)
			}
			if err := ValidateEnvelope(body); err != nil {
				t.Errorf("Invalid JSON-RPC envelope: %v", err)
			}

			expectedJSON, err := json.Marshal(expected)
			if err != nil {
				t.Fatalf("Failed to marshal expected response: %v", err)
			}
			if err := CompareEnvelopes(expectedJSON, body); err != nil {
				t.Errorf("Response envelope mismatch: %v", err)
			}
		})
	}
}

func TestHTTPFailedLoadLeavesGroup(t *testing.T) {
	server := NewTestServer(t)

	for _, key := range []string{"load_zero_controls", "load_truncated"} {
		server.PostJSON(t, loadGoldenFixture(t, "golden_requests.json", key))
	}

	_, body := server.PostJSON(t, loadGoldenFixture(t, "golden_requests.json", "get_output_count"))
	expected, _ := json.Marshal(loadGoldenFixture(t, "golden_responses.json", "get_output_count_success"))
	if err := CompareEnvelopes(expected, body); err != nil {
		t.Errorf("Group changed after rejected loads: %v", err)
	}
}

func TestHTTPMixAfterControls(t *testing.T) {
	server := NewTestServer(t)
	server.PostJSON(t, loadGoldenFixture(t, "golden_requests.json", "set_controls"))

	_, body := server.PostJSON(t, loadGoldenFixture(t, "golden_requests.json", "mix"))
	var env JSONRPCEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if err := ValidateMixOutput(env.Result); err != nil {
		t.Fatalf("Invalid mix output: %v", err)
	}

	var out struct {
		Outputs  []float64 `json:"outputs"`
		Failsafe int       `json:"failsafe"`
	}
	json.Unmarshal(env.Result, &out)
	want := []float64{0.5, -0.25, 0}
	for i := range want {
		if out.Outputs[i] != want[i] {
			t.Errorf("output %d: got %v, want %v", i, out.Outputs[i], want[i])
		}
	}
	if out.Failsafe != 0 {
		t.Errorf("Expected no failsafe outputs, got %d", out.Failsafe)
	}
}

func TestHTTPListCommands(t *testing.T) {
	server := NewTestServer(t)
	_, body := server.PostJSON(t, loadGoldenFixture(t, "golden_requests.json", "list_commands"))

	var env JSONRPCEnvelope
	json.Unmarshal(body, &env)
	if err := ValidateArrayObjectResult(env.Result); err != nil {
		t.Fatalf("Invalid list_commands result: %v", err)
	}

	var cmds []commands.CommandInfo
	json.Unmarshal(env.Result, &cmds)
	seen := make(map[string]bool)
	for _, c := range cmds {
		seen[c.Name] = true
	}
	for _, name := range []string{device.CmdGetOutputCount, device.CmdReset, device.CmdAddSimple, device.CmdLoadBuffer} {
		if !seen[name] {
			t.Errorf("Expected %s in list_commands", name)
		}
	}
}

func TestHTTPMethodPOSTOnly(t *testing.T) {
	server := NewTestServer(t)

	resp, err := http.Get(server.server.URL + jsonrpc.APIPath)
	if err != nil {
		t.Fatalf("Failed to send GET request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		t.Errorf("GET request should not return 200 OK")
	}
	if err := ValidateEnvelope(body); err != nil {
		t.Errorf("Invalid JSON-RPC envelope on GET: %v", err)
	}
}

func TestHTTPPathExactMatch(t *testing.T) {
	server := NewTestServer(t)
	jsonData, _ := json.Marshal(loadGoldenFixture(t, "golden_requests.json", "get_output_count"))

	resp, err := http.Post(server.server.URL+"/wrong_path", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		t.Fatalf("Failed to send request to wrong path: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		t.Errorf("Wrong path should not return 200 OK")
	}
}

func TestHTTPMalformedRequests(t *testing.T) {
	server := NewTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode float64
	}{
		{"parse error", `{"jsonrpc":"2.0","method":`, -32700},
		{"wrong version", `{"jsonrpc":"1.0","method":"dump","id":1}`, -32600},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, -32600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.server.URL+jsonrpc.APIPath, "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatalf("Failed to send request: %v", err)
			}
			defer resp.Body.Close()

			var response map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			errObj, ok := response["error"].(map[string]interface{})
			if !ok {
				t.Fatalf("Expected error object, got %v", response)
			}
			if errObj["code"] != tt.wantCode {
				t.Errorf("Expected code %v, got %v", tt.wantCode, errObj["code"])
			}
		})
	}
}

func TestHTTPFrozenDevice(t *testing.T) {
	server := NewTestServer(t)
	server.device.Freeze(context.Background())

	_, body := server.PostJSON(t, loadGoldenFixture(t, "golden_requests.json", "reset"))
	expected := []byte(`{"jsonrpc":"2.0","error":{"code":-32602,"message":"FROZEN"},"id":10}`)
	if err := CompareEnvelopes(expected, body); err != nil {
		t.Errorf("Expected FROZEN error: %v", err)
	}

	_, body = server.PostJSON(t, loadGoldenFixture(t, "golden_requests.json", "get_output_count"))
	expected, _ = json.Marshal(loadGoldenFixture(t, "golden_responses.json", "get_output_count_success"))
	if err := CompareEnvelopes(expected, body); err != nil {
		t.Errorf("Read-only command should succeed while frozen: %v", err)
	}
}
