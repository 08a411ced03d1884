// Package mcp exposes the examiner's HTTP operations to a voice agent as MCP
// tools over a line-delimited JSON-RPC stdio stream.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const protocolVersion = "2024-11-05"

// secretHeader must match the header the HTTP server's secret gate reads.
const secretHeader = "X-Exam-Secret"

// Server implements an MCP stdio server that delegates to the HTTP examiner server.
type Server struct {
	serverURL string
	secret    string
	client    *http.Client
	logger    *zap.Logger
}

// NewServer creates a new MCP server.
func NewServer(serverURL, secret string, logger *zap.Logger) *Server {
	return &Server{
		serverURL: strings.TrimRight(serverURL, "/"),
		secret:    secret,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Run reads requests from in and writes responses to out until in is
// exhausted or ctx is cancelled between messages.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("unparseable request", zap.Error(err))
			if err := enc.Encode(errorResponse(nil, codeParseError, "parse error: "+err.Error())); err != nil {
				return err
			}
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}

	return scanner.Err()
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: InitializeResult{
				ProtocolVersion: protocolVersion,
				Capabilities:    ServerCapabilities{Tools: &ToolCapabilities{}},
				ServerInfo:      ServerInfo{Name: "oral-examiner", Version: "1.0.0"},
			},
		}
	case "initialized", "notifications/initialized":
		return nil
	case "tools/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: ToolDefinitions()}}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]string{}}
	default:
		if req.ID == nil {
			return nil
		}
		return errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	paramsBytes, err := json.Marshal(req.Params)
	if err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid params")
	}

	var params CallToolParams
	if err := json.Unmarshal(paramsBytes, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid params: "+err.Error())
	}

	result, isError := s.dispatchTool(ctx, params.Name, params.Arguments)
	s.logger.Debug("tool call", zap.String("tool", params.Name), zap.Bool("is_error", isError))

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

func (s *Server) dispatchTool(ctx context.Context, name string, args map[string]any) (string, bool) {
	switch name {
	case "fetch_essay":
		code := getString(args, "code")
		if code == "" {
			return "code is required", true
		}
		return s.httpGet(ctx, "/api/essay", url.Values{"code": {code}})
	case "fetch_questions":
		q := url.Values{}
		if n, ok := getInt(args, "contentCount"); ok {
			q.Set("content", strconv.Itoa(n))
		}
		if n, ok := getInt(args, "processCount"); ok {
			q.Set("process", strconv.Itoa(n))
		}
		return s.httpGet(ctx, "/api/questions", q)
	default:
		return fmt.Sprintf("unknown tool: %s", name), true
	}
}

func (s *Server) httpGet(ctx context.Context, path string, query url.Values) (string, bool) {
	target := s.serverURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Sprintf("request error: %s", err), true
	}
	req.Header.Set(secretHeader, s.secret)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("HTTP error: %s", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("read error: %s", err), true
	}

	return string(respBody), resp.StatusCode >= 400
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// --- Argument helpers ---

// getString accepts a string or a number, since voice agents often pass a
// spoken code as a number.
func getString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func getInt(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}
