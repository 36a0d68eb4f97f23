package commands

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/flight-control/mixerd/internal/device"
)

// GetOutputCountHandler handles get_output_count
type GetOutputCountHandler struct {
	device *device.Device
}

func (h *GetOutputCountHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	if len(params) > 0 {
		return nil, invalidParams("get_output_count does not accept parameters")
	}
	return h.device.OutputCount(ctx)
}

func (h *GetOutputCountHandler) GetName() string { return device.CmdGetOutputCount }

func (h *GetOutputCountHandler) GetDescription() string {
	return "Number of outputs the mixer group produces"
}

func (h *GetOutputCountHandler) IsReadOnly() bool   { return true }
func (h *GetOutputCountHandler) RequiresThaw() bool { return false }

// ResetHandler handles reset
type ResetHandler struct {
	device *device.Device
}

func (h *ResetHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	if len(params) > 0 {
		return nil, invalidParams("reset does not accept parameters")
	}
	if err := h.device.Reset(ctx); err != nil {
		return nil, err
	}
	return 0, nil
}

func (h *ResetHandler) GetName() string        { return device.CmdReset }
func (h *ResetHandler) GetDescription() string { return "Remove every mixer" }
func (h *ResetHandler) IsReadOnly() bool       { return false }
func (h *ResetHandler) RequiresThaw() bool     { return true }

// AddSimpleHandler handles add_simple. The single parameter is a
// base64-encoded binary add-simple record.
type AddSimpleHandler struct {
	device *device.Device
}

func (h *AddSimpleHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	if len(params) != 1 {
		return nil, invalidParams("add_simple takes one base64 record")
	}
	rec, err := base64.StdEncoding.DecodeString(strings.TrimSpace(params[0]))
	if err != nil {
		return nil, invalidParams("record is not valid base64: " + err.Error())
	}
	return h.device.AddSimple(ctx, rec)
}

func (h *AddSimpleHandler) GetName() string { return device.CmdAddSimple }

func (h *AddSimpleHandler) GetDescription() string {
	return "Append one simple mixer from a base64 binary record; returns the output count"
}

func (h *AddSimpleHandler) IsReadOnly() bool   { return false }
func (h *AddSimpleHandler) RequiresThaw() bool { return true }

// LoadBufferHandler handles load_buffer. Parameters are joined with
// newlines, so a file can be sent whole or line by line.
type LoadBufferHandler struct {
	device *device.Device
}

func (h *LoadBufferHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	if len(params) == 0 {
		return nil, invalidParams("load_buffer takes mixer definition text")
	}
	rep, err := h.device.LoadBuffer(ctx, []byte(strings.Join(params, "\n")))
	if err != nil {
		return nil, err
	}
	skipped := make([]string, len(rep.Errors))
	for i, e := range rep.Errors {
		skipped[i] = e.Error()
	}
	return map[string]interface{}{
		"loaded":  rep.Loaded,
		"skipped": rep.Skipped,
		"errors":  skipped,
	}, nil
}

func (h *LoadBufferHandler) GetName() string { return device.CmdLoadBuffer }

func (h *LoadBufferHandler) GetDescription() string {
	return "Append mixers from text definitions"
}

func (h *LoadBufferHandler) IsReadOnly() bool   { return false }
func (h *LoadBufferHandler) RequiresThaw() bool { return true }

// DumpHandler handles dump
type DumpHandler struct {
	device *device.Device
}

func (h *DumpHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	return h.device.Dump(ctx)
}

func (h *DumpHandler) GetName() string        { return device.CmdDump }
func (h *DumpHandler) GetDescription() string { return "Mixer group as text definitions" }
func (h *DumpHandler) IsReadOnly() bool       { return true }
func (h *DumpHandler) RequiresThaw() bool     { return false }

// RegisterCoreCommands registers the device management commands
func RegisterCoreCommands(registry *CommandRegistry, dev *device.Device) {
	registry.Register(&GetOutputCountHandler{device: dev})
	registry.Register(&ResetHandler{device: dev})
	registry.Register(&AddSimpleHandler{device: dev})
	registry.Register(&LoadBufferHandler{device: dev})
	registry.Register(&DumpHandler{device: dev})
}
