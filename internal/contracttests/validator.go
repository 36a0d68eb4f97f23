// Package contracttests checks the wire contract of the mixer API and the
// maintenance socket against golden JSON-RPC fixtures.
package contracttests

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// JSONRPCEnvelope validates JSON-RPC 2.0 envelope structure
type JSONRPCEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ValidateEnvelope validates JSON-RPC 2.0 envelope compliance
func ValidateEnvelope(data []byte) error {
	var envelope JSONRPCEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if envelope.JSONRPC != "2.0" {
		return fmt.Errorf("jsonrpc must be '2.0', got '%s'", envelope.JSONRPC)
	}

	hasResult := len(envelope.Result) > 0
	hasError := len(envelope.Error) > 0

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("envelope must be an object: %w", err)
	}
	if _, ok := fields["id"]; !ok {
		return fmt.Errorf("id field is required")
	}
	// null ids are only valid when the request id could not be read
	if envelope.ID == nil && !hasError {
		return fmt.Errorf("id must not be null on a result")
	}

	if hasResult && hasError {
		return fmt.Errorf("both result and error cannot be present")
	}

	if !hasResult && !hasError {
		return fmt.Errorf("either result or error must be present")
	}

	if hasError {
		return ValidateErrorResponse(envelope.Error)
	}
	return nil
}

// ValidateMixOutput validates the result of the mix method: every written
// output lies in [-1, 1] and the counters agree with the outputs.
func ValidateMixOutput(result json.RawMessage) error {
	var out struct {
		Outputs   []float64 `json:"outputs"`
		Attempted *int      `json:"attempted"`
		Written   *int      `json:"written"`
		Failsafe  *int      `json:"failsafe"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return fmt.Errorf("mix result must be an object: %w", err)
	}
	if out.Outputs == nil || out.Attempted == nil || out.Written == nil || out.Failsafe == nil {
		return fmt.Errorf("mix result must have outputs, attempted, written and failsafe")
	}
	if len(out.Outputs) != *out.Written {
		return fmt.Errorf("mix result has %d outputs but written=%d", len(out.Outputs), *out.Written)
	}
	if *out.Written > *out.Attempted {
		return fmt.Errorf("written=%d exceeds attempted=%d", *out.Written, *out.Attempted)
	}
	if *out.Failsafe > *out.Attempted {
		return fmt.Errorf("failsafe=%d exceeds attempted=%d", *out.Failsafe, *out.Attempted)
	}
	for i, v := range out.Outputs {
		if v < -1 || v > 1 {
			return fmt.Errorf("output %d is %v, outside [-1, 1]", i, v)
		}
	}
	return nil
}

// ValidateArrayObjectResult validates that a result is an array of objects
func ValidateArrayObjectResult(result json.RawMessage) error {
	var arr []map[string]interface{}
	if err := json.Unmarshal(result, &arr); err != nil {
		return fmt.Errorf("result must be array of objects: %w", err)
	}
	return nil
}

// ValidateErrorResponse validates JSON-RPC error structure
func ValidateErrorResponse(errorData json.RawMessage) error {
	var errorObj map[string]interface{}
	if err := json.Unmarshal(errorData, &errorObj); err != nil {
		return fmt.Errorf("error must be an object: %w", err)
	}

	code, hasCode := errorObj["code"]
	if !hasCode {
		return fmt.Errorf("error object must have 'code' field")
	}

	message, hasMessage := errorObj["message"]
	if !hasMessage {
		return fmt.Errorf("error object must have 'message' field")
	}

	if _, ok := code.(float64); !ok {
		return fmt.Errorf("error code must be numeric")
	}

	if _, ok := message.(string); !ok {
		return fmt.Errorf("error message must be string")
	}

	return nil
}

// CompareEnvelopes compares two JSON-RPC envelopes. Results are compared
// semantically when expected carries one; errors by code and message.
func CompareEnvelopes(expected, actual []byte) error {
	if err := ValidateEnvelope(expected); err != nil {
		return fmt.Errorf("expected envelope invalid: %w", err)
	}
	if err := ValidateEnvelope(actual); err != nil {
		return fmt.Errorf("actual envelope invalid: %w", err)
	}

	var expEnv, actEnv JSONRPCEnvelope
	if err := json.Unmarshal(expected, &expEnv); err != nil {
		return fmt.Errorf("failed to unmarshal expected: %w", err)
	}
	if err := json.Unmarshal(actual, &actEnv); err != nil {
		return fmt.Errorf("failed to unmarshal actual: %w", err)
	}

	if expEnv.JSONRPC != actEnv.JSONRPC {
		return fmt.Errorf("jsonrpc version mismatch: expected '%s', got '%s'", expEnv.JSONRPC, actEnv.JSONRPC)
	}

	// ids may differ in JSON type but not in value
	if fmt.Sprintf("%v", expEnv.ID) != fmt.Sprintf("%v", actEnv.ID) {
		return fmt.Errorf("id mismatch: expected '%v', got '%v'", expEnv.ID, actEnv.ID)
	}

	if len(expEnv.Result) > 0 {
		if len(actEnv.Result) == 0 {
			return fmt.Errorf("expected result but got error %s", actEnv.Error)
		}
		if !sameJSON(expEnv.Result, actEnv.Result) {
			return fmt.Errorf("result mismatch: expected %s, got %s", expEnv.Result, actEnv.Result)
		}
		return nil
	}

	if len(actEnv.Error) == 0 {
		return fmt.Errorf("expected error but got result %s", actEnv.Result)
	}
	var expErr, actErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	json.Unmarshal(expEnv.Error, &expErr)
	json.Unmarshal(actEnv.Error, &actErr)
	if expErr != actErr {
		return fmt.Errorf("error mismatch: expected %+v, got %+v", expErr, actErr)
	}
	return nil
}

func sameJSON(a, b json.RawMessage) bool {
	var va, vb interface{}
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
