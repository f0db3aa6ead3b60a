package ubus

import (
	"encoding/json"
	"fmt"
)

// NullSession is the session id rpcd accepts for the login call.
const NullSession = "00000000000000000000000000000000"

// RPC methods of the JSON-RPC envelope.
const (
	rpcCall = "call"
	rpcList = "list"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorObject `json:"error"`
}

// encodeRequest builds the request body. Method is omitted when empty, params
// default to an empty object.
func encodeRequest(id uint64, rpcMethod, session, subsystem, method string, params map[string]interface{}) ([]byte, error) {
	args := []interface{}{session, subsystem}
	if method != "" {
		args = append(args, method)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	args = append(args, params)

	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  rpcMethod,
		Params:  args,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}

// decodeCallResult splits a `call` result of the form [code, payload?].
func decodeCallResult(raw json.RawMessage) (int, map[string]interface{}, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return 0, nil, fmt.Errorf("result is not an array: %w", err)
	}
	if len(parts) == 0 {
		return 0, nil, fmt.Errorf("empty result array")
	}

	var code int
	if err := json.Unmarshal(parts[0], &code); err != nil {
		return 0, nil, fmt.Errorf("result code: %w", err)
	}

	payload := map[string]interface{}{}
	if len(parts) > 1 && string(parts[1]) != "null" {
		if err := json.Unmarshal(parts[1], &payload); err != nil {
			return code, nil, fmt.Errorf("result payload: %w", err)
		}
	}
	return code, payload, nil
}
