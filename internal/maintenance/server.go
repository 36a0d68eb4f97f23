// Package maintenance serves a small set of recovery commands over a
// CIDR-restricted TCP socket, one JSON-RPC request per connection.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/flight-control/mixerd/internal/commands"
	"github.com/flight-control/mixerd/internal/config"
	"github.com/flight-control/mixerd/internal/device"
)

// Source is the audit source for maintenance commands.
const Source = "maintenance"

// Server handles maintenance TCP connections
type Server struct {
	config            *config.Config
	dispatcher        *commands.Dispatcher
	reload            commands.CommandHandler
	listener          net.Listener
	stopChan          chan struct{}
	activeConnections map[string]net.Conn
	connectionsMutex  sync.RWMutex
	maxConnections    int
	connectionTimeout time.Duration
}

// Request represents a JSON-RPC request over TCP
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response represents a JSON-RPC response over TCP
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// methods maps maintenance methods onto dispatcher commands. reload is
// handled separately.
var methods = map[string]string{
	"reset":  device.CmdReset,
	"freeze": device.CmdFreeze,
	"thaw":   device.CmdThaw,
	"dump":   device.CmdDump,
}

// NewServer creates a new maintenance server
func NewServer(cfg *config.Config, dispatcher *commands.Dispatcher, dev *device.Device) *Server {
	s := &Server{
		config:            cfg,
		dispatcher:        dispatcher,
		stopChan:          make(chan struct{}),
		activeConnections: make(map[string]net.Conn),
		maxConnections:    10,
		connectionTimeout: 30 * time.Second,
	}
	s.reload = commands.NewCustomCommandHandler("reload", "Replace the mixer group with the configured mixer file", false,
		func(ctx context.Context, params []string) (interface{}, error) {
			return reloadFile(ctx, dev, cfg.Mixer.File)
		})
	return s
}

func reloadFile(ctx context.Context, dev *device.Device, path string) (interface{}, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no mixer file configured", device.ErrInvalidParams)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mixer file: %w", err)
	}
	rep, err := dev.Replace(ctx, buf)
	if err != nil {
		return nil, err
	}
	errs := make([]string, len(rep.Errors))
	for i, e := range rep.Errors {
		errs[i] = e.Error()
	}
	return map[string]interface{}{
		"file":    path,
		"loaded":  rep.Loaded,
		"skipped": rep.Skipped,
		"errors":  errs,
	}, nil
}

// ListenAndServe starts the maintenance TCP server
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Network.Maintenance.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %v", s.config.Network.Maintenance.Port, err)
	}
	log.Printf("Maintenance server listening on port %d", s.config.Network.Maintenance.Port)
	return s.Serve(listener)
}

// Serve accepts connections on listener until Close is called.
func (s *Server) Serve(listener net.Listener) error {
	s.connectionsMutex.Lock()
	s.listener = listener
	s.connectionsMutex.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Failed to accept connection: %v", err)
			continue
		}

		if !s.isAllowedConnection(conn) {
			log.Printf("Rejected connection from %s (not in allowed CIDRs)", conn.RemoteAddr())
			conn.Close()
			continue
		}
		if !s.track(conn) {
			log.Printf("Rejected connection from %s (limit %d reached)", conn.RemoteAddr(), s.maxConnections)
			conn.Close()
			continue
		}

		go s.handleConnection(conn)
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.connectionsMutex.RLock()
	defer s.connectionsMutex.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(conn net.Conn) bool {
	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()
	if len(s.activeConnections) >= s.maxConnections {
		return false
	}
	s.activeConnections[conn.RemoteAddr().String()] = conn
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connectionsMutex.Lock()
	delete(s.activeConnections, conn.RemoteAddr().String())
	s.connectionsMutex.Unlock()
}

// handleConnection handles a single TCP connection
func (s *Server) handleConnection(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(s.connectionTimeout))

	var req Request
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&req); err != nil {
		log.Printf("Failed to decode JSON-RPC request: %v", err)
		s.writeErrorResponse(conn, -32700, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeErrorResponse(conn, -32600, "Invalid Request", req.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.connectionTimeout)
	defer cancel()
	response := s.processMaintenanceRequest(ctx, &req)

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("Failed to encode response: %v", err)
		return
	}

	log.Printf("Maintenance command processed: method=%s, client=%s", req.Method, conn.RemoteAddr())
}

// processMaintenanceRequest processes maintenance commands
func (s *Server) processMaintenanceRequest(ctx context.Context, req *Request) *Response {
	var handler commands.CommandHandler
	if req.Method == "reload" {
		handler = s.reload
	} else if name, ok := methods[req.Method]; ok {
		handler, _ = s.dispatcher.Lookup(name)
	}
	if handler == nil {
		return &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: -32601, Message: "Method not found"},
			ID:      req.ID,
		}
	}

	result, cmdErr := s.dispatcher.Run(ctx, Source, handler, req.Params)
	if cmdErr != nil {
		code := -32602
		if cmdErr.Code == commands.ErrInternal {
			code = -32603
		}
		return &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: code, Message: cmdErr.Code, Data: cmdErr.Details},
			ID:      req.ID,
		}
	}

	return &Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	}
}

// isAllowedConnection checks if the connection is from an allowed CIDR
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}

	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return false
	}

	for _, cidrStr := range s.config.Network.Maintenance.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidrStr)
		if err != nil {
			log.Printf("Invalid CIDR in config: %s", cidrStr)
			continue
		}
		if network.Contains(clientIP) {
			return true
		}
	}

	return false
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(conn net.Conn, code int, message string, id interface{}) {
	response := &Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}

	encoder := json.NewEncoder(conn)
	encoder.Encode(response)
}

// Close shuts down the maintenance server and drops open connections.
func (s *Server) Close() error {
	select {
	case <-s.stopChan:
		return nil
	default:
		close(s.stopChan)
	}

	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()
	for _, conn := range s.activeConnections {
		conn.Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
