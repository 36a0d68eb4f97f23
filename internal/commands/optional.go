package commands

import (
	"context"
	"strconv"
	"time"

	"github.com/flight-control/mixerd/internal/controls"
	"github.com/flight-control/mixerd/internal/device"
	"github.com/flight-control/mixerd/internal/loop"
	"github.com/flight-control/mixerd/internal/mixer"
)

// StatusHandler reports device, control-input and loop state
type StatusHandler struct {
	device *device.Device
	table  *controls.Table
	stats  func() loop.Stats
}

func (h *StatusHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	st, err := h.device.Status(ctx)
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{
		"device":   st,
		"controls": h.table.Status(time.Now()),
	}
	if h.stats != nil {
		result["loop"] = h.stats()
	}
	return result, nil
}

func (h *StatusHandler) GetName() string        { return device.CmdStatus }
func (h *StatusHandler) GetDescription() string { return "Device, control input and loop status" }
func (h *StatusHandler) IsReadOnly() bool       { return true }
func (h *StatusHandler) RequiresThaw() bool     { return false }

// MixHandler runs one mixing pass against the live control table and
// returns the outputs. It does not disturb the control loop.
type MixHandler struct {
	device     *device.Device
	table      *controls.Table
	maxOutputs int
}

// MixOutput is the result of the mix command.
type MixOutput struct {
	Outputs   []float32 `json:"outputs"`
	Attempted int       `json:"attempted"`
	Written   int       `json:"written"`
	Failsafe  int       `json:"failsafe"`
}

func (h *MixHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	if len(params) > 0 {
		return nil, invalidParams("mix does not accept parameters")
	}
	var frame mixer.ControlFrame
	h.table.Snapshot(&frame, time.Now())
	out := make([]float32, h.maxOutputs)
	res := h.device.Mix(&frame, out)
	return MixOutput{
		Outputs:   out[:res.Written],
		Attempted: res.Attempted,
		Written:   res.Written,
		Failsafe:  res.Failsafe,
	}, nil
}

func (h *MixHandler) GetName() string        { return "mix" }
func (h *MixHandler) GetDescription() string { return "Mix once against current controls" }
func (h *MixHandler) IsReadOnly() bool       { return true }
func (h *MixHandler) RequiresThaw() bool     { return false }

// SetControlsHandler publishes one control group: params are the group
// number followed by its values.
type SetControlsHandler struct {
	table *controls.Table
}

func (h *SetControlsHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	if len(params) < 1 {
		return nil, invalidParams("set_controls takes a group and its values")
	}
	group, err := strconv.ParseUint(params[0], 10, 8)
	if err != nil {
		return nil, invalidParams("invalid control group " + strconv.Quote(params[0]))
	}
	values := make([]float32, len(params)-1)
	for i, p := range params[1:] {
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, invalidParams("invalid control value " + strconv.Quote(p))
		}
		values[i] = float32(v)
	}
	if err := h.table.Publish(uint8(group), values, time.Now()); err != nil {
		return nil, invalidParams(err.Error())
	}
	return len(values), nil
}

func (h *SetControlsHandler) GetName() string        { return "set_controls" }
func (h *SetControlsHandler) GetDescription() string { return "Publish values for one control group" }
func (h *SetControlsHandler) IsReadOnly() bool       { return false }
func (h *SetControlsHandler) RequiresThaw() bool     { return false }

// InvalidateControlsHandler marks a control group unavailable
type InvalidateControlsHandler struct {
	table *controls.Table
}

func (h *InvalidateControlsHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	if len(params) != 1 {
		return nil, invalidParams("invalidate_controls takes a group")
	}
	group, err := strconv.ParseUint(params[0], 10, 8)
	if err != nil || group >= mixer.MaxControlGroups {
		return nil, invalidParams("invalid control group " + strconv.Quote(params[0]))
	}
	h.table.Invalidate(uint8(group))
	return int(group), nil
}

func (h *InvalidateControlsHandler) GetName() string { return "invalidate_controls" }

func (h *InvalidateControlsHandler) GetDescription() string {
	return "Mark a control group unavailable until next published"
}

func (h *InvalidateControlsHandler) IsReadOnly() bool   { return false }
func (h *InvalidateControlsHandler) RequiresThaw() bool { return false }

// FreezeHandler handles freeze and thaw
type FreezeHandler struct {
	device *device.Device
	freeze bool
}

func (h *FreezeHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	var err error
	if h.freeze {
		err = h.device.Freeze(ctx)
	} else {
		err = h.device.Thaw(ctx)
	}
	if err != nil {
		return nil, err
	}
	return h.device.Status(ctx)
}

func (h *FreezeHandler) GetName() string {
	if h.freeze {
		return device.CmdFreeze
	}
	return device.CmdThaw
}

func (h *FreezeHandler) GetDescription() string {
	if h.freeze {
		return "Reject mixer changes until thaw"
	}
	return "Accept mixer changes again"
}

func (h *FreezeHandler) IsReadOnly() bool   { return false }
func (h *FreezeHandler) RequiresThaw() bool { return false }

// RegisterOptionalCommands registers status, diagnostic and control-input commands
func RegisterOptionalCommands(registry *CommandRegistry, env Env) {
	registry.Register(&StatusHandler{device: env.Device, table: env.Table, stats: env.Stats})
	registry.Register(&MixHandler{device: env.Device, table: env.Table, maxOutputs: env.MaxOutputs})
	registry.Register(&SetControlsHandler{table: env.Table})
	registry.Register(&InvalidateControlsHandler{table: env.Table})
	registry.Register(&FreezeHandler{device: env.Device, freeze: true})
	registry.Register(&FreezeHandler{device: env.Device, freeze: false})
}
