package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flight-control/mixerd/internal/mixer"
)

// Device path and ioctl numbering of the mixer device.
const (
	DevicePath = "/dev/mixer"
	IOCBase    = 0x2500
)

// Command numbers, relative to IOCBase.
const (
	IOCGetOutputCount = 0
	IOCReset          = 1
	IOCAddSimple      = 2
	IOCLoadBuf        = 5
)

// Command names handled by the worker.
const (
	CmdGetOutputCount = "get_output_count"
	CmdReset          = "reset"
	CmdAddSimple      = "add_simple"
	CmdLoadBuffer     = "load_buffer"
	CmdReplace        = "replace"
	CmdDump           = "dump"
	CmdFreeze         = "freeze"
	CmdThaw           = "thaw"
	CmdStatus         = "status"
)

var ioctlNames = map[int]string{
	IOCGetOutputCount: CmdGetOutputCount,
	IOCReset:          CmdReset,
	IOCAddSimple:      CmdAddSimple,
	IOCLoadBuf:        CmdLoadBuffer,
}

// IoctlCommand maps an ioctl request number (IOCBase+n) to its command name.
func IoctlCommand(request int) (string, bool) {
	name, ok := ioctlNames[request-IOCBase]
	return name, ok
}

var (
	// ErrFrozen is returned for mutations after Freeze.
	ErrFrozen = errors.New("FROZEN")
	// ErrBusy is returned when the command queue is full.
	ErrBusy = errors.New("BUSY")
	// ErrUnavailable is returned once the device is closing.
	ErrUnavailable = errors.New("UNAVAILABLE")
	// ErrUnknownCommand is returned for command types the worker does not know.
	ErrUnknownCommand = errors.New("NOT_SUPPORTED")
	// ErrInvalidParams is returned when a command carries the wrong payload.
	ErrInvalidParams = errors.New("INVALID_PARAMS")
)

// Options configures a Device.
type Options struct {
	Limits       mixer.Limits
	LoadPolicy   mixer.LoadPolicy
	QueueSize    int
	QueueTimeout time.Duration
	ReplyTimeout time.Duration
}

// Command is one management request for the worker.
type Command struct {
	Type      string
	Payload   []byte
	Response  chan CommandResponse
	Timestamp time.Time
}

// CommandResponse is the worker's answer to a Command.
type CommandResponse struct {
	Result interface{}
	Err    error
}

// Status summarises the device.
type Status struct {
	Mixers      int       `json:"mixers"`
	Outputs     int       `json:"outputs"`
	MaxMixers   int       `json:"maxMixers"`
	MaxOutputs  int       `json:"maxOutputs"`
	Frozen      bool      `json:"frozen"`
	LoadPolicy  string    `json:"loadPolicy"`
	Generation  uint64    `json:"generation"`
	LastChanged time.Time `json:"lastChanged"`
}

// Device owns one mixer group. Mutations are serialised on a worker
// goroutine; Mix is called directly by the control loop. Both take the
// same mutex, so a mix never observes a half-applied load.
type Device struct {
	mu          sync.Mutex
	group       *mixer.Group
	frozen      bool
	policy      mixer.LoadPolicy
	generation  uint64
	lastChanged time.Time

	queueTimeout time.Duration
	replyTimeout time.Duration
	commandQueue chan Command
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates a device and starts its command worker.
func New(opts Options) *Device {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = 5 * time.Second
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	d := &Device{
		group:        mixer.NewGroup(opts.Limits),
		policy:       opts.LoadPolicy,
		lastChanged:  time.Now(),
		queueTimeout: opts.QueueTimeout,
		replyTimeout: opts.ReplyTimeout,
		commandQueue: make(chan Command, opts.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
	}

	d.wg.Add(1)
	go d.commandWorker()

	return d
}

// commandWorker processes commands in FIFO order
func (d *Device) commandWorker() {
	defer d.wg.Done()

	for {
		select {
		case cmd := <-d.commandQueue:
			cmd.Response <- d.processCommand(cmd)
		case <-d.ctx.Done():
			return
		}
	}
}

// processCommand runs on the worker. The worker is the only writer of the
// group and device state, so it reads them without the lock and takes d.mu
// only around writes. Parsing and formatting happen outside the lock so
// Mix never waits on the size of a submitted buffer.
func (d *Device) processCommand(cmd Command) CommandResponse {
	switch cmd.Type {
	case CmdGetOutputCount:
		return CommandResponse{Result: d.group.OutputCount()}
	case CmdStatus:
		return CommandResponse{Result: d.status()}
	case CmdDump:
		var buf bytes.Buffer
		if err := mixer.Format(&buf, d.group.Mixers()); err != nil {
			return CommandResponse{Err: err}
		}
		return CommandResponse{Result: buf.String()}
	case CmdFreeze:
		d.setFrozen(true)
		return CommandResponse{Result: d.status()}
	case CmdThaw:
		d.setFrozen(false)
		return CommandResponse{Result: d.status()}
	}

	if d.frozen {
		switch cmd.Type {
		case CmdReset, CmdAddSimple, CmdLoadBuffer, CmdReplace:
			return CommandResponse{Err: ErrFrozen}
		}
	}

	switch cmd.Type {
	case CmdReset:
		d.mu.Lock()
		d.group.Reset()
		d.touch()
		d.mu.Unlock()
		return CommandResponse{Result: 0}
	case CmdAddSimple:
		m, err := mixer.DecodeSimple(cmd.Payload)
		if err != nil {
			return CommandResponse{Err: err}
		}
		return d.appendAll(mixer.LoadReport{}, []mixer.Mixer{mixer.Simple(m)}, true)
	case CmdLoadBuffer:
		ms, rep, err := mixer.ParseWith(cmd.Payload, d.policy)
		if err != nil {
			return CommandResponse{Err: err}
		}
		return d.appendAll(rep, ms, false)
	case CmdReplace:
		return d.replace(cmd.Payload)
	default:
		return CommandResponse{Err: fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)}
	}
}

// appendAll adds ms to the group or nothing. It answers with the new output
// count when countResult is set, otherwise with the load report.
func (d *Device) appendAll(rep mixer.LoadReport, ms []mixer.Mixer, countResult bool) CommandResponse {
	d.mu.Lock()
	err := d.group.AppendAll(ms)
	if err == nil && len(ms) > 0 {
		d.touch()
	}
	d.mu.Unlock()
	if err != nil {
		return CommandResponse{Err: err}
	}
	if countResult {
		return CommandResponse{Result: d.group.OutputCount()}
	}
	rep.Loaded = len(ms)
	return CommandResponse{Result: rep}
}

// replace swaps the whole group for the definitions in buf. The group is
// untouched unless every definition parses and fits.
func (d *Device) replace(buf []byte) CommandResponse {
	ms, rep, err := mixer.ParseWith(buf, d.policy)
	if err != nil {
		return CommandResponse{Err: err}
	}
	staged := mixer.NewGroup(d.group.Limits())
	if err := staged.AppendAll(ms); err != nil {
		return CommandResponse{Err: err}
	}
	rep.Loaded = len(ms)

	d.mu.Lock()
	d.group.Reset()
	err = d.group.AppendAll(ms)
	d.touch()
	d.mu.Unlock()
	if err != nil {
		return CommandResponse{Err: err}
	}
	return CommandResponse{Result: rep}
}

func (d *Device) setFrozen(frozen bool) {
	d.mu.Lock()
	d.frozen = frozen
	d.mu.Unlock()
}

func (d *Device) touch() {
	d.generation++
	d.lastChanged = time.Now()
}

func (d *Device) status() Status {
	l := d.group.Limits()
	return Status{
		Mixers:      d.group.Len(),
		Outputs:     d.group.OutputCount(),
		MaxMixers:   l.MaxMixers,
		MaxOutputs:  l.MaxOutputs,
		Frozen:      d.frozen,
		LoadPolicy:  d.policy.String(),
		Generation:  d.generation,
		LastChanged: d.lastChanged,
	}
}

// ExecuteCommand queues cmd and waits for the worker's response.
func (d *Device) ExecuteCommand(ctx context.Context, cmd Command) CommandResponse {
	cmd.Response = make(chan CommandResponse, 1)
	cmd.Timestamp = time.Now()

	select {
	case d.commandQueue <- cmd:
		select {
		case resp := <-cmd.Response:
			return resp
		case <-time.After(d.replyTimeout):
			return CommandResponse{Err: fmt.Errorf("%s timed out", cmd.Type)}
		case <-ctx.Done():
			return CommandResponse{Err: ctx.Err()}
		case <-d.ctx.Done():
			return CommandResponse{Err: ErrUnavailable}
		}
	case <-time.After(d.queueTimeout):
		return CommandResponse{Err: ErrBusy}
	case <-ctx.Done():
		return CommandResponse{Err: ctx.Err()}
	case <-d.ctx.Done():
		return CommandResponse{Err: ErrUnavailable}
	}
}

// OutputCount returns the number of outputs the group produces.
func (d *Device) OutputCount(ctx context.Context) (int, error) {
	resp := d.ExecuteCommand(ctx, Command{Type: CmdGetOutputCount})
	if resp.Err != nil {
		return 0, resp.Err
	}
	return resp.Result.(int), nil
}

// Reset removes every mixer.
func (d *Device) Reset(ctx context.Context) error {
	return d.ExecuteCommand(ctx, Command{Type: CmdReset}).Err
}

// AddSimple decodes a binary add-simple record and appends the mixer.
// It returns the new output count.
func (d *Device) AddSimple(ctx context.Context, rec []byte) (int, error) {
	resp := d.ExecuteCommand(ctx, Command{Type: CmdAddSimple, Payload: rec})
	if resp.Err != nil {
		return 0, resp.Err
	}
	return resp.Result.(int), nil
}

// LoadBuffer parses text-protocol definitions and appends them under the
// device's load policy.
func (d *Device) LoadBuffer(ctx context.Context, buf []byte) (mixer.LoadReport, error) {
	resp := d.ExecuteCommand(ctx, Command{Type: CmdLoadBuffer, Payload: buf})
	if resp.Err != nil {
		return mixer.LoadReport{}, resp.Err
	}
	return resp.Result.(mixer.LoadReport), nil
}

// Replace atomically swaps the group for the definitions in buf.
func (d *Device) Replace(ctx context.Context, buf []byte) (mixer.LoadReport, error) {
	resp := d.ExecuteCommand(ctx, Command{Type: CmdReplace, Payload: buf})
	if resp.Err != nil {
		return mixer.LoadReport{}, resp.Err
	}
	return resp.Result.(mixer.LoadReport), nil
}

// Dump returns the group in text-protocol form.
func (d *Device) Dump(ctx context.Context) (string, error) {
	resp := d.ExecuteCommand(ctx, Command{Type: CmdDump})
	if resp.Err != nil {
		return "", resp.Err
	}
	return resp.Result.(string), nil
}

// Freeze rejects further mutation until Thaw.
func (d *Device) Freeze(ctx context.Context) error {
	return d.ExecuteCommand(ctx, Command{Type: CmdFreeze}).Err
}

// Thaw re-enables mutation.
func (d *Device) Thaw(ctx context.Context) error {
	return d.ExecuteCommand(ctx, Command{Type: CmdThaw}).Err
}

// Status returns a snapshot of the device state.
func (d *Device) Status(ctx context.Context) (Status, error) {
	resp := d.ExecuteCommand(ctx, Command{Type: CmdStatus})
	if resp.Err != nil {
		return Status{}, resp.Err
	}
	return resp.Result.(Status), nil
}

// Mix runs the group against r. It holds the device mutex only for the
// duration of the mix and does not allocate.
func (d *Device) Mix(r mixer.Resolver, outputs []float32) mixer.MixResult {
	d.mu.Lock()
	res := d.group.Mix(r, outputs, len(outputs))
	d.mu.Unlock()
	return res
}

// Close shuts down the command worker.
func (d *Device) Close() error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("shutdown timeout")
	}
}
