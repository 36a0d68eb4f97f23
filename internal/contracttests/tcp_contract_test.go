package contracttests

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flight-control/mixerd/internal/audit"
	"github.com/flight-control/mixerd/internal/commands"
	"github.com/flight-control/mixerd/internal/config"
	"github.com/flight-control/mixerd/internal/controls"
	"github.com/flight-control/mixerd/internal/device"
	"github.com/flight-control/mixerd/internal/maintenance"
)

// TestTCPServer wraps the maintenance server for contract testing
type TestTCPServer struct {
	addr   string
	server *maintenance.Server
	device *device.Device
	config *config.Config
}

// NewTestTCPServer creates a maintenance server on a loopback port
func NewTestTCPServer(t *testing.T, cidrs ...string) *TestTCPServer {
	t.Helper()
	if len(cidrs) == 0 {
		cidrs = []string{"127.0.0.0/8"}
	}
	mixFile := filepath.Join(t.TempDir(), "quad.mix")
	if err := os.WriteFile(mixFile, []byte(quadMix), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg := &config.Config{
		Network: config.NetworkConfig{
			Maintenance: config.MaintenanceConfig{Port: 0, AllowedCIDRs: cidrs},
		},
		Mixer: config.MixerConfig{MaxMixers: 8, MaxOutputs: 8, File: mixFile, LoadPolicy: "abort"},
	}

	dev := device.New(device.Options{Limits: cfg.Mixer.Limits()})
	logger, err := audit.NewLogger(t.TempDir(), audit.Rotation{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	dispatcher := commands.NewDispatcher(commands.Env{
		Device: dev,
		Table:  controls.NewTable(time.Second),
		Audit:  logger,
	})
	server := maintenance.NewServer(cfg, dispatcher, dev)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go server.Serve(listener)

	t.Cleanup(func() {
		server.Close()
		dev.Close()
		logger.Close()
	})
	return &TestTCPServer{
		addr:   listener.Addr().String(),
		server: server,
		device: dev,
		config: cfg,
	}
}

// SendJSONRPC sends a JSON-RPC request over TCP and returns the raw response line
func (ts *TestTCPServer) SendJSONRPC(t *testing.T, request map[string]interface{}) []byte {
	t.Helper()
	conn, err := net.Dial("tcp", ts.addr)
	if err != nil {
		t.Fatalf("Failed to connect to TCP server: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))

	jsonData, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	if _, err := conn.Write(append(jsonData, '\n')); err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}

	responseLine, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return []byte(strings.TrimSpace(responseLine))
}

func TestTCPMethodExistence(t *testing.T) {
	server := NewTestTCPServer(t)

	for _, method := range []string{"reload", "dump", "freeze", "thaw", "reset"} {
		t.Run(method, func(t *testing.T) {
			body := server.SendJSONRPC(t, loadGoldenFixture(t, "tcp_requests.json", method))
			if err := ValidateEnvelope(body); err != nil {
				t.Fatalf("Invalid JSON-RPC envelope: %v", err)
			}
			var env JSONRPCEnvelope
			json.Unmarshal(body, &env)
			if len(env.Error) > 0 {
				t.Errorf("Expected %s to succeed, got %s", method, env.Error)
			}
		})
	}
}

func TestTCPReloadThenDump(t *testing.T) {
	server := NewTestTCPServer(t)

	server.SendJSONRPC(t, loadGoldenFixture(t, "tcp_requests.json", "reload"))
	body := server.SendJSONRPC(t, loadGoldenFixture(t, "tcp_requests.json", "dump"))

	var env JSONRPCEnvelope
	json.Unmarshal(body, &env)
	var text string
	if err := json.Unmarshal(env.Result, &text); err != nil {
		t.Fatalf("dump result is not a string: %s", env.Result)
	}
	if text != quadMix {
		t.Errorf("dump after reload:\n%s\nwant:\n%s", text, quadMix)
	}
	if n, _ := server.device.OutputCount(context.Background()); n != 3 {
		t.Errorf("Expected 3 outputs, got %d", n)
	}
}

func TestTCPFreezeBlocksReset(t *testing.T) {
	server := NewTestTCPServer(t)

	server.SendJSONRPC(t, loadGoldenFixture(t, "tcp_requests.json", "freeze"))
	body := server.SendJSONRPC(t, loadGoldenFixture(t, "tcp_requests.json", "reset"))
	expected, _ := json.Marshal(loadGoldenFixture(t, "tcp_responses.json", "reset_frozen"))
	if err := CompareEnvelopes(expected, body); err != nil {
		t.Errorf("Frozen reset mismatch: %v", err)
	}

	server.SendJSONRPC(t, loadGoldenFixture(t, "tcp_requests.json", "thaw"))
	body = server.SendJSONRPC(t, loadGoldenFixture(t, "tcp_requests.json", "reset"))
	expected, _ = json.Marshal(loadGoldenFixture(t, "tcp_responses.json", "reset_success"))
	if err := CompareEnvelopes(expected, body); err != nil {
		t.Errorf("Reset after thaw mismatch: %v", err)
	}
}

func TestTCPUnknownMethod(t *testing.T) {
	server := NewTestTCPServer(t)

	body := server.SendJSONRPC(t, loadGoldenFixture(t, "tcp_requests.json", "zeroize"))
	expected, _ := json.Marshal(loadGoldenFixture(t, "tcp_responses.json", "method_not_found"))
	if err := CompareEnvelopes(expected, body); err != nil {
		t.Errorf("Unknown method mismatch: %v", err)
	}
}

func TestTCPLocalOnlyPolicy(t *testing.T) {
	server := NewTestTCPServer(t, "172.20.0.0/16")

	conn, err := net.Dial("tcp", server.addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	conn.Write([]byte(`{"jsonrpc":"2.0","method":"reset","id":1}` + "\n"))

	if _, err := bufio.NewReader(conn).ReadString('\n'); err == nil {
		t.Error("Expected connection from outside allowed CIDRs to be closed without a response")
	}
}
