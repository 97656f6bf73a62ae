package mcp

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONRPCRequest_IsNotification(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"numeric id", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, false},
		{"string id", `{"jsonrpc":"2.0","id":"abc","method":"tools/list"}`, false},
		{"zero id", `{"jsonrpc":"2.0","id":0,"method":"ping"}`, false},
		{"no id", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, true},
		{"null id", `{"jsonrpc":"2.0","id":null,"method":"notifications/initialized"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req JSONRPCRequest
			if err := json.Unmarshal([]byte(tt.line), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := req.IsNotification(); got != tt.want {
				t.Errorf("IsNotification() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJSONRPCResponse_PreservesID(t *testing.T) {
	tests := []struct {
		name string
		id   json.RawMessage
		want string
	}{
		{"number", json.RawMessage(`7`), `"id":7`},
		{"string", json.RawMessage(`"req-7"`), `"id":"req-7"`},
		{"null", json.RawMessage(`null`), `"id":null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(JSONRPCResponse{JSONRPC: "2.0", ID: tt.id, Result: struct{}{}})
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("response %s does not contain %s", data, tt.want)
			}
		})
	}
}

func TestToolCallResult_OmitsIsErrorWhenFalse(t *testing.T) {
	data, err := json.Marshal(ToolCallResult{Content: []ContentItem{{Type: "text", Text: "{}"}}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "isError") {
		t.Errorf("isError should be omitted, got %s", data)
	}
}
