package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flight-control/mixerd/internal/auth"
)

const elevon = `M: 2
O: 10000 10000 0 -10000 10000
S: 0 0 10000 10000 0 -10000 10000
S: 0 1 10000 10000 0 -10000 10000
Z:
`

func writeMixerFile(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mix")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("Failed to write mixer file: %v", err)
	}
	return path
}

func TestCheckCmd(t *testing.T) {
	path := writeMixerFile(t, elevon)
	var out bytes.Buffer
	cmd := &CheckCmd{File: path, MaxMixers: 8, MaxOutputs: 8, Policy: "abort"}
	if err := cmd.Run(&Globals{Out: &out}); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	for _, s := range []string{"0.0 0.1", "simple", "null"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("Expected %q in output:\n%s", s, out.String())
		}
	}

	cmd.MaxOutputs = 1
	if err := cmd.Run(&Globals{Out: io.Discard}); err == nil {
		t.Error("Expected capacity error with one output allowed")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	path := writeMixerFile(t, elevon)
	var encoded bytes.Buffer
	if err := (&EncodeCmd{File: path}).Run(&Globals{Out: &encoded}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(encoded.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected record line and null comment, got %q", lines)
	}
	if !strings.HasPrefix(lines[1], "# output 1") {
		t.Errorf("Expected null mixer comment, got %q", lines[1])
	}

	var decoded bytes.Buffer
	if err := (&DecodeCmd{Record: lines[0]}).Run(&Globals{Out: &decoded}); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := strings.SplitAfter(elevon, "\n")
	if decoded.String() != strings.Join(want[:4], "") {
		t.Errorf("decode = %q", decoded.String())
	}

	if err := (&DecodeCmd{Record: "not base64!"}).Run(&Globals{Out: io.Discard}); err == nil {
		t.Error("Expected error for invalid base64")
	}
}

func TestTokenCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := &TokenCmd{Secret: "s3cret", Subject: "ops", Scope: []string{auth.ScopeControl}, TTL: time.Hour}
	if err := cmd.Run(&Globals{Out: &out}); err != nil {
		t.Fatalf("token failed: %v", err)
	}

	v, err := auth.NewVerifier(auth.VerifierConfig{Algorithm: auth.AlgHS256, SecretKey: "s3cret"})
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	claims, err := v.VerifyToken(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("Minted token rejected: %v", err)
	}
	if claims.Subject != "ops" {
		t.Errorf("Expected subject ops, got %q", claims.Subject)
	}
}

func TestCallCmdPrintsResult(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int64  `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		method = req.Method
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"result":  map[string]int{"output_count": 4},
			"id":      req.ID,
		})
	}))
	defer srv.Close()

	var out bytes.Buffer
	g := &Globals{URL: srv.URL, Timeout: time.Second, Out: &out}
	if err := (&CallCmd{Method: "status"}).Run(g); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if method != "status" {
		t.Errorf("Expected status method, got %q", method)
	}
	if !strings.Contains(out.String(), `"output_count": 4`) {
		t.Errorf("Unexpected output %q", out.String())
	}
}
