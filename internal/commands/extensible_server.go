package commands

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/flight-control/mixerd/internal/audit"
	"github.com/flight-control/mixerd/internal/controls"
	"github.com/flight-control/mixerd/internal/device"
	"github.com/flight-control/mixerd/internal/loop"
	"github.com/flight-control/mixerd/internal/mixer"
)

// Env carries what the command handlers operate on.
type Env struct {
	Device     *device.Device
	Table      *controls.Table
	Audit      *audit.Logger
	MaxOutputs int
	// Stats is optional; status omits loop counters without it.
	Stats func() loop.Stats
	// OnChange is optional and runs after a successful mutating command.
	OnChange func(action string)
}

// Dispatcher looks up and runs commands, auditing every mutating one.
type Dispatcher struct {
	registry *CommandRegistry
	audit    *audit.Logger
	onChange func(action string)
}

// NewDispatcher registers the core and optional commands.
func NewDispatcher(env Env) *Dispatcher {
	if env.MaxOutputs <= 0 {
		env.MaxOutputs = mixer.DefaultMaxOutputs
	}
	registry := NewCommandRegistry()
	RegisterCoreCommands(registry, env.Device)
	RegisterOptionalCommands(registry, env)

	d := &Dispatcher{
		registry: registry,
		audit:    env.Audit,
		onChange: env.OnChange,
	}
	registry.Register(&ListCommandsHandler{dispatcher: d})
	return d
}

// Lookup returns the handler registered for method.
func (d *Dispatcher) Lookup(method string) (CommandHandler, bool) {
	return d.registry.Get(method)
}

// Run executes handler. source names the transport for the audit trail.
func (d *Dispatcher) Run(ctx context.Context, source string, handler CommandHandler, params []string) (interface{}, *CommandError) {
	start := time.Now()
	result, err := handler.Handle(ctx, params)
	cmdErr := ToCommandError(err)

	if !handler.IsReadOnly() {
		code, outcome := audit.CodeSuccess, "ok"
		if cmdErr != nil {
			code, outcome = cmdErr.Code, cmdErr.Details
			log.Printf("Command %s from %s failed: %s %s", handler.GetName(), source, cmdErr.Code, cmdErr.Details)
		} else if d.onChange != nil {
			d.onChange(handler.GetName())
		}
		d.audit.LogCommand(ctx, source, handler.GetName(), auditParams(params), outcome, code, time.Since(start))
	}

	if cmdErr != nil {
		return nil, cmdErr
	}
	return result, nil
}

// Execute looks up method and runs it.
func (d *Dispatcher) Execute(ctx context.Context, source, method string, params []string) (interface{}, *CommandError) {
	handler, ok := d.Lookup(method)
	if !ok {
		return nil, &CommandError{Code: ErrNotSupported, Message: ErrNotSupported, Details: "unknown method " + method}
	}
	return d.Run(ctx, source, handler, params)
}

// auditParams keeps small parameter lists verbatim and summarises large
// ones such as whole mixer files.
func auditParams(params []string) map[string]interface{} {
	size := 0
	for _, p := range params {
		size += len(p)
	}
	if size > 256 {
		return map[string]interface{}{"count": len(params), "bytes": size}
	}
	return map[string]interface{}{"params": params}
}

// CommandInfo provides information about a command
type CommandInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ReadOnly     bool   `json:"read_only"`
	RequiresThaw bool   `json:"requires_thaw"`
}

// GetAvailableCommands returns every registered command sorted by name
func (d *Dispatcher) GetAvailableCommands() []CommandInfo {
	commands := make([]CommandInfo, 0, len(d.registry.handlers))
	for _, handler := range d.registry.handlers {
		commands = append(commands, CommandInfo{
			Name:         handler.GetName(),
			Description:  handler.GetDescription(),
			ReadOnly:     handler.IsReadOnly(),
			RequiresThaw: handler.RequiresThaw(),
		})
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	return commands
}

// AddCustomCommand allows adding custom commands at runtime
func (d *Dispatcher) AddCustomCommand(handler CommandHandler) {
	d.registry.Register(handler)
}

// ListCommandsHandler handles list_commands
type ListCommandsHandler struct {
	dispatcher *Dispatcher
}

func (h *ListCommandsHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	return h.dispatcher.GetAvailableCommands(), nil
}

func (h *ListCommandsHandler) GetName() string        { return "list_commands" }
func (h *ListCommandsHandler) GetDescription() string { return "List available commands" }
func (h *ListCommandsHandler) IsReadOnly() bool       { return true }
func (h *ListCommandsHandler) RequiresThaw() bool     { return false }

// CustomCommandHandler adapts a function to CommandHandler
type CustomCommandHandler struct {
	name        string
	description string
	readOnly    bool
	handlerFunc func(ctx context.Context, params []string) (interface{}, error)
}

// NewCustomCommandHandler creates a custom command handler
func NewCustomCommandHandler(name, description string, readOnly bool, handlerFunc func(ctx context.Context, params []string) (interface{}, error)) *CustomCommandHandler {
	return &CustomCommandHandler{
		name:        name,
		description: description,
		readOnly:    readOnly,
		handlerFunc: handlerFunc,
	}
}

func (h *CustomCommandHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	return h.handlerFunc(ctx, params)
}

func (h *CustomCommandHandler) GetName() string        { return h.name }
func (h *CustomCommandHandler) GetDescription() string { return h.description }
func (h *CustomCommandHandler) IsReadOnly() bool       { return h.readOnly }
func (h *CustomCommandHandler) RequiresThaw() bool     { return false }
