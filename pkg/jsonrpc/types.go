package jsonrpc

import "encoding/json"

// Request is a standard JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id"`
}

// NewRequest builds a request with the protocol version filled in.
func NewRequest(method string, params interface{}, id uint64) *Request {
	return &Request{JSONRPC: "2.0", Method: method, Params: params, ID: id}
}

// Response is a standard JSON-RPC 2.0 response object. Result is kept raw so
// callers decide how to decode it.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// Error is the JSON-RPC error member.
type Error struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}
