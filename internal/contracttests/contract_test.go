package contracttests

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const quadMix = `M: 1
O: 10000 10000 0 -10000 10000
S: 0 0 10000 10000 0 -10000 10000
M: 1
O: 10000 10000 0 -10000 10000
S: 0 1 10000 10000 0 -10000 10000
Z:
`

// loadGoldenFixture loads a JSON fixture from the fixtures directory
func loadGoldenFixture(t *testing.T, filename string, key string) map[string]interface{} {
	t.Helper()
	path := filepath.Join("fixtures", filename)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read fixture %s: %v", path, err)
	}

	var fixtures map[string]interface{}
	if err := json.Unmarshal(data, &fixtures); err != nil {
		t.Fatalf("Failed to unmarshal fixture %s: %v", path, err)
	}

	fixture, ok := fixtures[key].(map[string]interface{})
	if !ok {
		t.Fatalf("Fixture %s[%s] is not a map", filename, key)
	}

	return fixture
}

func TestJSONRPCEnvelopeValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"valid_result", `{"jsonrpc":"2.0","result":3,"id":1}`, false},
		{"valid_zero_result", `{"jsonrpc":"2.0","result":0,"id":1}`, false},
		{"valid_error", `{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"},"id":"x"}`, false},
		{"wrong_version", `{"jsonrpc":"1.0","result":3,"id":1}`, true},
		{"missing_id", `{"jsonrpc":"2.0","result":3}`, true},
		{"null_id_on_error", `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`, false},
		{"null_id_on_result", `{"jsonrpc":"2.0","result":3,"id":null}`, true},
		{"both_result_and_error", `{"jsonrpc":"2.0","result":3,"error":{"code":-32603,"message":"x"},"id":1}`, true},
		{"neither_result_nor_error", `{"jsonrpc":"2.0","id":1}`, true},
		{"malformed_error", `{"jsonrpc":"2.0","error":{"code":"x"},"id":1}`, true},
		{"not_json", `{"jsonrpc":`, true},
		{"null_document", `null`, true},
		{"array_document", `[{"jsonrpc":"2.0","result":3,"id":1}]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMixOutputValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"valid", `{"outputs":[-1,0.5,0],"attempted":3,"written":3,"failsafe":1}`, false},
		{"truncated", `{"outputs":[0.1],"attempted":3,"written":1,"failsafe":0}`, false},
		{"empty group", `{"outputs":[],"attempted":0,"written":0,"failsafe":0}`, false},
		{"output out of range", `{"outputs":[1.5],"attempted":1,"written":1,"failsafe":0}`, true},
		{"written mismatch", `{"outputs":[0,0],"attempted":3,"written":3,"failsafe":0}`, true},
		{"written exceeds attempted", `{"outputs":[0,0],"attempted":1,"written":2,"failsafe":0}`, true},
		{"missing counters", `{"outputs":[0]}`, true},
		{"not an object", `[0,0]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMixOutput([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMixOutput() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorResponseValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"valid_error", `{"code":-32601,"message":"Method not found"}`, false},
		{"valid_error_with_data", `{"code":-32602,"message":"CAPACITY","data":"group has 8 outputs, max 8"}`, false},
		{"missing_code", `{"message":"Method not found"}`, true},
		{"missing_message", `{"code":-32601}`, true},
		{"invalid_code_type", `{"code":"invalid","message":"Method not found"}`, true},
		{"invalid_message_type", `{"code":-32601,"message":123}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateErrorResponse([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateErrorResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompareEnvelopes(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		actual   string
		wantErr  bool
	}{
		{"same result", `{"jsonrpc":"2.0","result":{"a":[1,2]},"id":1}`, `{"jsonrpc":"2.0","id":1,"result":{"a":[1,2]}}`, false},
		{"id type differs", `{"jsonrpc":"2.0","result":1,"id":1}`, `{"jsonrpc":"2.0","result":1,"id":1.0}`, false},
		{"different result", `{"jsonrpc":"2.0","result":1,"id":1}`, `{"jsonrpc":"2.0","result":2,"id":1}`, true},
		{"error ignores data", `{"jsonrpc":"2.0","error":{"code":-32602,"message":"FROZEN"},"id":1}`, `{"jsonrpc":"2.0","error":{"code":-32602,"message":"FROZEN","data":"device frozen"},"id":1}`, false},
		{"different error code", `{"jsonrpc":"2.0","error":{"code":-32602,"message":"FROZEN"},"id":1}`, `{"jsonrpc":"2.0","error":{"code":-32603,"message":"FROZEN"},"id":1}`, true},
		{"result expected", `{"jsonrpc":"2.0","result":1,"id":1}`, `{"jsonrpc":"2.0","error":{"code":-32603,"message":"INTERNAL"},"id":1}`, true},
		{"id mismatch", `{"jsonrpc":"2.0","result":1,"id":1}`, `{"jsonrpc":"2.0","result":1,"id":2}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CompareEnvelopes([]byte(tt.expected), []byte(tt.actual))
			if (err != nil) != tt.wantErr {
				t.Errorf("CompareEnvelopes() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
