package commands

import (
	"context"
	"errors"
	"sort"

	"github.com/flight-control/mixerd/internal/device"
	"github.com/flight-control/mixerd/internal/mixer"
)

// CommandHandler defines the interface for command handlers
type CommandHandler interface {
	// Handle processes a command and returns the response
	Handle(ctx context.Context, params []string) (interface{}, error)

	// GetName returns the command name
	GetName() string

	// GetDescription returns a human-readable description
	GetDescription() string

	// IsReadOnly returns true if the command only reads data
	IsReadOnly() bool

	// RequiresThaw returns true if the command fails while the device is frozen
	RequiresThaw() bool
}

// CommandRegistry manages available commands
type CommandRegistry struct {
	handlers map[string]CommandHandler
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		handlers: make(map[string]CommandHandler),
	}
}

// Register adds a command handler to the registry
func (r *CommandRegistry) Register(handler CommandHandler) {
	r.handlers[handler.GetName()] = handler
}

// Remove deletes a command handler
func (r *CommandRegistry) Remove(name string) {
	delete(r.handlers, name)
}

// Get returns a command handler by name
func (r *CommandRegistry) Get(name string) (CommandHandler, bool) {
	handler, exists := r.handlers[name]
	return handler, exists
}

// List returns all registered command names in sorted order
func (r *CommandRegistry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandError represents a command-specific error
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *CommandError) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrInvalidConfig = "INVALID_CONFIG"
	ErrCapacity      = "CAPACITY"
	ErrParse         = "PARSE_ERROR"
	ErrFrozen        = "FROZEN"
	ErrInvalidParams = "INVALID_PARAMS"
	ErrBusy          = "BUSY"
	ErrUnavailable   = "UNAVAILABLE"
	ErrInternal      = "INTERNAL"
	ErrNotSupported  = "NOT_SUPPORTED"
)

// ToCommandError maps err onto a command error code. Nil maps to nil.
func ToCommandError(err error) *CommandError {
	if err == nil {
		return nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr
	}

	code := ErrInternal
	switch {
	case errors.Is(err, mixer.ErrConfig):
		code = ErrInvalidConfig
	case errors.Is(err, mixer.ErrCapacity):
		code = ErrCapacity
	case errors.Is(err, mixer.ErrParse):
		code = ErrParse
	case errors.Is(err, device.ErrFrozen):
		code = ErrFrozen
	case errors.Is(err, device.ErrBusy):
		code = ErrBusy
	case errors.Is(err, device.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		code = ErrUnavailable
	case errors.Is(err, device.ErrUnknownCommand):
		code = ErrNotSupported
	case errors.Is(err, device.ErrInvalidParams):
		code = ErrInvalidParams
	}
	return &CommandError{Code: code, Message: code, Details: err.Error()}
}

func invalidParams(msg string) *CommandError {
	return &CommandError{Code: ErrInvalidParams, Message: ErrInvalidParams, Details: msg}
}
