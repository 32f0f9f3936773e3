// Package dispatch implements the thin tool-dispatch shim: the line-
// delimited JSON-RPC 2.0 stdio loop and static tool registry that sit on
// top of every core entry point: a name-to-handler map, validated and
// looked up before execution.
package dispatch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Request is one line of the line-delimited JSON-RPC 2.0 transport.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one line written back to the transport.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError wraps a *gateerr.GateError (or any other error) as a JSON-RPC
// error object. Code follows JSON-RPC convention (a generic -32000
// "server error" bucket); the structured refusal detail lives in Data.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// HandlerFunc is a registered tool's implementation: it receives the
// raw params and returns a JSON-serializable result, or an error.
// Handlers never write to the transport themselves.
type HandlerFunc func(params json.RawMessage) (any, error)

// Loop reads one JSON object per line from r, dispatches it through reg,
// and writes one JSON object per line to w, until r is exhausted or a
// read from it fails. It never panics on malformed input: a line that fails to
// parse produces a JSON-RPC parse-error response and the loop continues.
func Loop(r io.Reader, w io.Writer, reg *Registry, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(Response{JSONRPC: "2.0", Error: &RPCError{Code: -32700, Message: "parse error: " + err.Error()}})
			continue
		}

		resp := Response{JSONRPC: "2.0", ID: req.ID}
		handler, ok := reg.Lookup(req.Method)
		if !ok {
			resp.Error = &RPCError{Code: -32601, Message: "method not found: " + req.Method}
			logger.Warn("dispatch: unknown method", "tool", req.Method)
			_ = enc.Encode(resp)
			continue
		}

		result, err := handler(req.Params)
		if err != nil {
			resp.Error = toRPCError(err)
			logger.Warn("dispatch: tool error", "tool", req.Method, "error", err.Error())
		} else {
			resp.Result = result
			logger.Info("dispatch: tool ok", "tool", req.Method)
		}
		if encErr := enc.Encode(resp); encErr != nil {
			return fmt.Errorf("dispatch: write response: %w", encErr)
		}
	}
	return scanner.Err()
}

func toRPCError(err error) *RPCError {
	return &RPCError{Code: -32000, Message: err.Error(), Data: errorData(err)}
}
