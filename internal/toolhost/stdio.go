package toolhost

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// stdioRequest is the single JSON-RPC-lite request object read from stdin.
type stdioRequest struct {
	Action    string         `json:"action"`
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// stdioResponse is the single JSON object written to stdout.
type stdioResponse struct {
	Ok     bool   `json:"ok"`
	Action string `json:"action"`
	Tool   string `json:"tool,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ServeStdio reads exactly one JSON-RPC-lite request from r and writes
// exactly one JSON response to w, returning an exit code: 0 on success,
// 1 on any failure (unknown action, unknown tool, schema violation, a
// transport-level tool error, or a malformed request).
func (h *Host) ServeStdio(r io.Reader, w io.Writer) int {
	reader := bufio.NewReaderSize(r, 1<<20)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		writeStdioResponse(w, stdioResponse{Ok: false, Error: fmt.Sprintf("read request: %v", err)})
		return 1
	}

	var req stdioRequest
	if err := json.Unmarshal(line, &req); err != nil {
		writeStdioResponse(w, stdioResponse{Ok: false, Error: fmt.Sprintf("parse request: %v", err)})
		return 1
	}

	switch req.Action {
	case "list_tools":
		writeStdioResponse(w, stdioResponse{Ok: true, Action: req.Action, Result: h.ListTools()})
		return 0
	case "call_tool":
		if req.Tool == "" {
			writeStdioResponse(w, stdioResponse{Ok: false, Action: req.Action, Error: "tool is required"})
			return 1
		}
		result := h.CallTool(req.Tool, req.Arguments)
		resp := stdioResponse{Ok: result.Ok, Action: req.Action, Tool: req.Tool, Result: result.Result}
		if !result.Ok {
			resp.Error = result.Error.Message
		}
		writeStdioResponse(w, resp)
		if !result.Ok {
			return 1
		}
		return 0
	default:
		writeStdioResponse(w, stdioResponse{Ok: false, Error: fmt.Sprintf("unknown action %q", req.Action)})
		return 1
	}
}

func writeStdioResponse(w io.Writer, resp stdioResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		raw = []byte(`{"ok":false,"error":"marshal response failed"}`)
	}
	_, _ = w.Write(raw)
	_, _ = w.Write([]byte("\n"))
}
