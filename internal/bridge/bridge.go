// Package bridge is the composition root of the joint-command bridge: it
// claims hardware handles at activation, latches inbound remote commands,
// runs the safety-bounded control laws every cycle, and assembles and
// publishes the telemetry snapshots. All per-cycle work happens synchronously
// inside Update; the only background goroutines are the UDP command receiver
// and the blackbox writer, both of which hand off through non-blocking
// buffers.
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rdeits/valkyrie-translator/internal/blackbox"
	"github.com/rdeits/valkyrie-translator/internal/command"
	"github.com/rdeits/valkyrie-translator/internal/config"
	"github.com/rdeits/valkyrie-translator/internal/control"
	"github.com/rdeits/valkyrie-translator/internal/hw"
	"github.com/rdeits/valkyrie-translator/internal/limits"
	"github.com/rdeits/valkyrie-translator/internal/monitor"
	"github.com/rdeits/valkyrie-translator/internal/telemetry"
)

// State is the bridge lifecycle state. Transitions are strictly forward:
// Constructed -> Initialized -> Running -> Stopped.
type State int

const (
	StateConstructed State = iota
	StateInitialized
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrBadState indicates a lifecycle method was called out of order.
var ErrBadState = errors.New("bridge in wrong state")

// Options wires the bridge's collaborators. HW and Config are required; the
// rest are optional and simply disable their concern when nil.
type Options struct {
	HW     hw.RobotHW
	Config *config.BridgeConfig

	// RobotName tags the commanded-effort telemetry snapshot.
	RobotName string

	// Publisher receives the per-cycle telemetry snapshots. Nil disables
	// publishing; outputs are still computed every cycle.
	Publisher telemetry.Publisher

	// Receiver supplies inbound command batches, drained at the top of each
	// cycle. Nil means commands stay at their zeroed initial values.
	Receiver *command.Receiver

	// Recorder is the blackbox flight recorder. Nil disables recording.
	Recorder *blackbox.Recorder

	// Stats accumulates per-cycle timing. Nil disables timing capture.
	Stats *monitor.CycleStats
}

// claimedJoint pairs a handle with its fixed position in the telemetry order.
type claimedJoint struct {
	name   string
	handle hw.JointHandle
}

// Bridge drives the control cycle. New returns it Constructed; Init claims
// hardware and builds the cycle state; Start and Update run it; Stop releases
// the claims. Lifecycle methods and Update must be called from a single
// goroutine (the control tick); the admin routes only touch mutex-guarded or
// immutable state.
type Bridge struct {
	opts Options

	// ActivationID identifies this activation in logs and the blackbox.
	ActivationID string

	mu    sync.Mutex
	state State

	// Fixed at Init, read-only afterwards.
	effortJoints   []claimedJoint
	positionJoints []claimedJoint
	imus           []hw.IMUHandle
	forceTorques   []hw.ForceTorqueHandle
	summary        hw.ClaimSummary
	store          *command.Store
	engine         *control.Engine
	assembler      *telemetry.Assembler

	// Cached config decisions.
	apply       bool
	publishCore bool
	publishEst  bool
	sampleEvery int

	// Cycle state, touched only from the tick goroutine.
	lastTick time.Time
	cycle    uint64

	// lastSnapshots is the most recent cycle's telemetry, for debug surfaces.
	lastSnapshots telemetry.Snapshots
}

// New creates a Bridge in the Constructed state.
func New(opts Options) (*Bridge, error) {
	if opts.HW == nil {
		return nil, errors.New("bridge requires a hardware interface")
	}
	if opts.Config == nil {
		return nil, errors.New("bridge requires a configuration")
	}
	return &Bridge{
		opts:         opts,
		ActivationID: uuid.NewString(),
		state:        StateConstructed,
	}, nil
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ClaimSummary returns the per-category claim counts. Valid after Init.
func (b *Bridge) ClaimSummary() hw.ClaimSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

// Store returns the latched-command store. Valid after Init.
func (b *Bridge) Store() *command.Store {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store
}

// jointFilter returns a membership test over the configured joint allowlist.
// An empty list admits every advertised name.
func jointFilter(joints []string) func(string) bool {
	if len(joints) == 0 {
		return func(string) bool { return true }
	}
	allowed := make(map[string]bool, len(joints))
	for _, name := range joints {
		allowed[name] = true
	}
	return func(name string) bool { return allowed[name] }
}

// Init claims every handle in all four hardware categories and builds the
// per-activation state: the zeroed command store, the limits table, the
// control engine and the telemetry assembler. Any missing category or failed
// claim aborts the activation; partially claimed handles are released.
func (b *Bridge) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateConstructed {
		return fmt.Errorf("%w: Init called in state %s", ErrBadState, b.state)
	}

	if err := b.claimAll(); err != nil {
		b.opts.HW.Release()
		return err
	}

	cfg := b.opts.Config

	names := make([]string, 0, len(b.effortJoints)+len(b.positionJoints))
	for _, j := range b.effortJoints {
		names = append(names, j.name)
	}
	for _, j := range b.positionJoints {
		names = append(names, j.name)
	}
	b.store = command.NewStore(names)

	configured := make(map[string]limits.JointLimits, len(cfg.Limits))
	for name, o := range cfg.Limits {
		lim := limits.Defaults()
		if o.MinPosition != nil {
			lim.MinPosition = *o.MinPosition
		}
		if o.MaxPosition != nil {
			lim.MaxPosition = *o.MaxPosition
		}
		if o.MaxEffort != nil {
			lim.MaxEffort = *o.MaxEffort
		}
		configured[name] = lim
	}
	b.engine = &control.Engine{
		Limits:          limits.Build(configured, names),
		MaxEffortChange: cfg.GetMaxEffortChange(),
	}

	b.assembler = telemetry.NewAssembler(b.opts.RobotName)
	b.apply = cfg.GetApplyCommands()
	b.publishCore = cfg.GetPublishCoreRobotState()
	b.publishEst = cfg.GetPublishEstRobotState()
	b.sampleEvery = cfg.GetEffortSampleEvery()

	b.state = StateInitialized
	opsf("activation %s initialized: %s, apply_commands=%v", b.ActivationID, b.summary, b.apply)
	return nil
}

// claimAll walks the four categories in a fixed order: effort joints,
// position joints, IMUs, force/torque sensors.
func (b *Bridge) claimAll() error {
	filter := jointFilter(b.opts.Config.Joints)

	effortNames, err := b.opts.HW.Names(hw.EffortJoints)
	if err != nil {
		return &hw.ClaimError{Category: hw.EffortJoints, Err: err}
	}
	for _, name := range effortNames {
		if !filter(name) {
			diagf("skipping effort joint %s: not in configured joint list", name)
			continue
		}
		h, err := b.opts.HW.ClaimJoint(hw.EffortControlled, name)
		if err != nil {
			return err
		}
		b.effortJoints = append(b.effortJoints, claimedJoint{name: name, handle: h})
		b.summary.EffortJoints++
	}

	positionNames, err := b.opts.HW.Names(hw.PositionJoints)
	if err != nil {
		return &hw.ClaimError{Category: hw.PositionJoints, Err: err}
	}
	for _, name := range positionNames {
		if !filter(name) {
			diagf("skipping position joint %s: not in configured joint list", name)
			continue
		}
		h, err := b.opts.HW.ClaimJoint(hw.PositionControlled, name)
		if err != nil {
			return err
		}
		b.positionJoints = append(b.positionJoints, claimedJoint{name: name, handle: h})
		b.summary.PositionJoints++
	}

	imuNames, err := b.opts.HW.Names(hw.IMUSensors)
	if err != nil {
		return &hw.ClaimError{Category: hw.IMUSensors, Err: err}
	}
	for _, name := range imuNames {
		h, err := b.opts.HW.ClaimIMU(name)
		if err != nil {
			return err
		}
		b.imus = append(b.imus, h)
		b.summary.IMUs++
	}

	ftNames, err := b.opts.HW.Names(hw.ForceTorqueSensors)
	if err != nil {
		return &hw.ClaimError{Category: hw.ForceTorqueSensors, Err: err}
	}
	for _, name := range ftNames {
		h, err := b.opts.HW.ClaimForceTorque(name)
		if err != nil {
			return err
		}
		b.forceTorques = append(b.forceTorques, h)
		b.summary.ForceTorques++
	}

	return nil
}

// Start marks the bridge running. t is the activation timestamp; the first
// Update computes its dt relative to it.
func (b *Bridge) Start(t time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateInitialized {
		return fmt.Errorf("%w: Start called in state %s", ErrBadState, b.state)
	}
	b.lastTick = t
	b.state = StateRunning
	opsf("activation %s running", b.ActivationID)
	return nil
}

// Update runs one control cycle at time t: drain inbound commands, run the
// control laws per joint, write outputs in apply mode, and publish telemetry.
// Must be called from the tick goroutine while Running.
func (b *Bridge) Update(t time.Time) error {
	started := time.Now()

	if s := b.State(); s != StateRunning {
		return fmt.Errorf("%w: Update called in state %s", ErrBadState, s)
	}

	dt := t.Sub(b.lastTick).Seconds()
	if dt < 0 {
		dt = 0
	}
	b.lastTick = t
	b.cycle++

	// Commands delivered before this point are visible to this cycle;
	// later arrivals wait for the next one.
	if b.opts.Receiver != nil {
		if batches, applied := b.opts.Receiver.Drain(b.store); batches > 0 {
			tracef("cycle %d: drained %d batches, %d joint commands applied", b.cycle, batches, applied)
		}
	}

	utime := t.UnixMicro()
	sample := b.opts.Recorder != nil && b.sampleEvery > 0 && b.cycle%uint64(b.sampleEvery) == 0

	efforts := make([]telemetry.EffortSample, len(b.effortJoints))
	for i, j := range b.effortJoints {
		m := control.Measured{
			Q:  j.handle.Position(),
			QD: j.handle.Velocity(),
			F:  j.handle.Effort(),
		}
		cmd := b.store.Read(j.name)
		out := b.engine.EffortCommand(j.name, m, cmd, dt)
		if b.apply {
			j.handle.SetCommand(out.Write)
		}
		efforts[i] = telemetry.EffortSample{Name: j.name, Out: out, Cmd: cmd}

		b.recordEffortFaults(t, j.name, out)
		if sample {
			b.opts.Recorder.RecordEffortSample(blackbox.EffortSample{
				TSUnixNanos: t.UnixNano(),
				Joint:       j.name,
				Measured:    m.F,
				Commanded:   out.Final,
			})
		}
	}

	positions := make([]telemetry.PositionSample, len(b.positionJoints))
	for i, j := range b.positionJoints {
		m := control.Measured{
			Q:  j.handle.Position(),
			QD: j.handle.Velocity(),
			F:  j.handle.Effort(),
		}
		cmd := b.store.Read(j.name)
		out := b.engine.PositionCommand(j.name, m, cmd)
		if b.apply {
			j.handle.SetCommand(out.Target)
		}
		positions[i] = telemetry.PositionSample{Name: j.name, Out: out, Cmd: cmd}

		if out.OutOfRange && b.opts.Recorder != nil {
			b.opts.Recorder.RecordFault(blackbox.FaultEvent{
				TSUnixNanos: t.UnixNano(),
				Joint:       j.name,
				Kind:        blackbox.FaultPositionClamped,
				Value:       cmd.Position,
			})
		}
	}

	snaps := b.assembler.Assemble(utime, efforts, positions)
	b.mu.Lock()
	b.lastSnapshots = snaps
	b.mu.Unlock()

	if err := b.publish(snaps); err != nil {
		diagf("cycle %d: telemetry publish: %v", b.cycle, err)
	}

	if b.opts.Stats != nil {
		b.opts.Stats.Record(time.Since(started))
	}
	return nil
}

// recordEffortFaults forwards safety-stage activations to the blackbox.
func (b *Bridge) recordEffortFaults(t time.Time, name string, out control.EffortOutput) {
	if b.opts.Recorder == nil {
		return
	}
	ts := t.UnixNano()
	if out.Zeroed {
		b.opts.Recorder.RecordFault(blackbox.FaultEvent{
			TSUnixNanos: ts,
			Joint:       name,
			Kind:        blackbox.FaultEffortNulled,
			Value:       out.Measured.Q,
			Detail:      fmt.Sprintf("joint out of range at %f", out.Measured.Q),
		})
	} else if out.Ramped {
		b.opts.Recorder.RecordFault(blackbox.FaultEvent{
			TSUnixNanos: ts,
			Joint:       name,
			Kind:        blackbox.FaultEffortRamped,
			Value:       out.Measured.Q,
		})
	}
	if out.SlewLimited {
		b.opts.Recorder.RecordFault(blackbox.FaultEvent{
			TSUnixNanos: ts,
			Joint:       name,
			Kind:        blackbox.FaultSlewLimited,
			Value:       out.Final,
		})
	}
	if out.CeilingFault {
		b.opts.Recorder.RecordFault(blackbox.FaultEvent{
			TSUnixNanos: ts,
			Joint:       name,
			Kind:        blackbox.FaultCeiling,
			Value:       out.Final,
			Detail:      "sanity ceiling hit, wrote zero",
		})
	}
}

// publish sends the gated subset of this cycle's snapshots. The command
// feedback channels are always published; the state channels honor their
// config gates.
func (b *Bridge) publish(snaps telemetry.Snapshots) error {
	if b.opts.Publisher == nil {
		return nil
	}
	var firstErr error
	send := func(channel string, msg any) {
		if err := b.opts.Publisher.Publish(channel, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.publishCore {
		send(telemetry.ChannelCoreRobotState, snaps.JointState)
	}
	send(telemetry.ChannelCommandFeedback, snaps.CommandFeedback)
	send(telemetry.ChannelCommandFeedbackTorque, snaps.CommandedEffort)
	if b.publishEst {
		send(telemetry.ChannelEstRobotState, snaps.EstimatedState)
	}
	return firstErr
}

// Stop releases every claimed handle and marks the bridge stopped. Stopped is
// terminal; a fresh activation needs a new Bridge.
func (b *Bridge) Stop(t time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateRunning && b.state != StateInitialized {
		return fmt.Errorf("%w: Stop called in state %s", ErrBadState, b.state)
	}
	b.opts.HW.Release()
	b.state = StateStopped
	opsf("activation %s stopped after %d cycles", b.ActivationID, b.cycle)
	return nil
}
