package jsonrpc

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/flight-control/mixerd/internal/auth"
	"github.com/flight-control/mixerd/internal/commands"
	"github.com/flight-control/mixerd/internal/config"
)

// Endpoint paths.
const (
	APIPath       = "/mixer_api"
	TelemetryPath = "/telemetry"
)

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32001
	CodeForbidden      = -32003
)

// maxRequestBytes bounds a request body; a full mixer file fits easily.
const maxRequestBytes = 1 << 20

// Server handles JSON-RPC HTTP requests
type Server struct {
	config     *config.Config
	dispatcher *commands.Dispatcher
	verifier   *auth.Verifier
	telemetry  http.Handler
}

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	Result  interface{}    `json:"result,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	ID      interface{}    `json:"id"`
}

// ErrorResponse represents a JSON-RPC 2.0 error response
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewServer creates a new JSON-RPC server. verifier may be nil to disable
// token checks; telemetry may be nil to disable the event stream.
func NewServer(cfg *config.Config, dispatcher *commands.Dispatcher, verifier *auth.Verifier, telemetry http.Handler) *Server {
	return &Server{
		config:     cfg,
		dispatcher: dispatcher,
		verifier:   verifier,
		telemetry:  telemetry,
	}
}

// Handler returns the HTTP routes served by the daemon.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(APIPath, s.HandleRequest)
	if s.telemetry != nil {
		stream := s.telemetry.ServeHTTP
		if s.verifier != nil {
			mw := auth.NewMiddleware(s.verifier)
			stream = mw.RequireAuth(mw.RequireScope(auth.ScopeTelemetry)(stream))
		}
		mux.HandleFunc(TelemetryPath, stream)
	}
	return mux
}

// HandleRequest handles HTTP POST requests to /mixer_api
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	w.Header().Set("Content-Type", "application/json")
	if s.config.Network.HTTP.ServerHeader != "" {
		w.Header().Set("Server", s.config.Network.HTTP.ServerHeader)
	}

	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid Request", nil)
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, CodeParseError, "Parse error", nil)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid Request", req.ID)
		return
	}

	handler, ok := s.dispatcher.Lookup(req.Method)
	if !ok {
		s.writeResponse(w, &Response{
			JSONRPC: "2.0",
			Error:   &ErrorResponse{Code: CodeMethodNotFound, Message: "Method not found"},
			ID:      req.ID,
		})
		return
	}

	ctx := r.Context()
	if s.verifier != nil {
		claims, err := s.authenticate(r)
		if err != nil {
			s.writeErrorResponse(w, http.StatusUnauthorized, CodeUnauthorized, "UNAUTHORIZED", req.ID)
			return
		}
		scope := auth.ScopeControl
		if handler.IsReadOnly() {
			scope = auth.ScopeRead
		}
		if !claims.HasScope(scope) {
			s.writeErrorResponse(w, http.StatusForbidden, CodeForbidden, "FORBIDDEN", req.ID)
			return
		}
		ctx = context.WithValue(ctx, auth.ClaimsKey, claims)
	}

	result, cmdErr := s.dispatcher.Run(ctx, "http", handler, req.Params)
	resp := &Response{JSONRPC: "2.0", Result: result, ID: req.ID}
	if cmdErr != nil {
		code := CodeInvalidParams
		if cmdErr.Code == commands.ErrInternal {
			code = CodeInternalError
		}
		resp.Result = nil
		resp.Error = &ErrorResponse{Code: code, Message: cmdErr.Code, Data: cmdErr.Details}
	}
	s.writeResponse(w, resp)

	log.Printf("JSON-RPC request processed: method=%s, duration=%v", req.Method, time.Since(start))
}

func (s *Server) authenticate(r *http.Request) (*auth.Claims, error) {
	token, err := auth.ExtractBearerToken(r)
	if err != nil {
		return nil, err
	}
	return s.verifier.VerifyToken(token)
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *Response) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, status, code int, message string, id interface{}) {
	w.WriteHeader(status)
	s.writeResponse(w, &Response{
		JSONRPC: "2.0",
		Error:   &ErrorResponse{Code: code, Message: message},
		ID:      id,
	})
}
