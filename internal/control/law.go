// Package control implements the per-joint safety-bounded output computation:
// a blended PID + feedforward effort law followed by a three-stage safety
// pipeline (hard effort clamp, position-limit proximity ramp, per-cycle slew
// limit), and a clamped position law for position-controlled joints.
//
// The pipeline fails soft near joint limits: torque ramps down linearly over
// the excursion band instead of cutting out at the boundary, while the hard
// clamp and slew limit still bound absolute effort and per-cycle change.
package control

import (
	"math"

	"github.com/rdeits/valkyrie-translator/internal/command"
	"github.com/rdeits/valkyrie-translator/internal/limits"
)

const (
	// PositionErrBound is the allowable excursion (radians) past a position
	// limit. Commanded effort ramps linearly from full authority at the
	// limit boundary to zero at the bound, and is forced to zero beyond it.
	PositionErrBound = 0.1

	// EffortSanityCeiling is the absolute ceiling on any effort written to
	// hardware. A final command at or above it is replaced with zero and
	// reported as a fault.
	EffortSanityCeiling = 1000.0
)

// Measured is one joint's measured state read from its handle this cycle.
type Measured struct {
	Q  float64 // position
	QD float64 // velocity
	F  float64 // effort
}

// EffortOutput carries the effort-law result for one joint: the raw blended
// command, the value after the safety pipeline, the value to write in apply
// mode, and which safety stages fired.
type EffortOutput struct {
	Measured Measured

	// Raw is the blended PID + feedforward command before any safety stage.
	Raw float64

	// Final is the post-safety-pipeline output, telemetered every cycle.
	Final float64

	// Write is the value written to hardware in apply mode: Final, or zero
	// when Final trips the sanity ceiling.
	Write float64

	Clamped      bool // hard effort clamp changed the value
	Zeroed       bool // joint beyond the excursion bound, effort nulled
	Ramped       bool // proximity ramp scaled the value down
	SlewLimited  bool // per-cycle change bound engaged
	CeilingFault bool // |Final| >= EffortSanityCeiling, zero written instead
}

// PositionOutput carries the position-law result for one joint.
type PositionOutput struct {
	Measured Measured

	// Target is the commanded position clamped into the joint's limits,
	// written to hardware in apply mode.
	Target float64

	// OutOfRange reports that the unclamped command fell outside the limits.
	OutOfRange bool
}

// Engine computes safety-bounded outputs for claimed joints. It is built once
// at activation and holds only read-only state; all per-cycle inputs arrive
// as arguments.
type Engine struct {
	Limits *limits.Table

	// MaxEffortChange bounds the per-cycle effort delta relative to the
	// measured effort.
	MaxEffortChange float64
}

func clamp(x, lower, upper float64) float64 {
	return math.Max(lower, math.Min(upper, x))
}

// EffortCommand runs the effort control law and safety pipeline for one
// joint. dt is the elapsed wall time since the previous cycle in seconds.
func (e *Engine) EffortCommand(name string, m Measured, cmd command.JointCommand, dt float64) EffortOutput {
	out := EffortOutput{Measured: m}
	lim := e.Limits.Lookup(name)

	// Blended PID + feedforward law. The integral term uses the instantaneous
	// position error scaled by dt; there is no accumulated integrator state.
	raw := cmd.KqP*(cmd.Position-m.Q) +
		cmd.KqI*(cmd.Position-m.Q)*dt +
		cmd.KqdP*(cmd.Velocity-m.QD) +
		cmd.KfP*(cmd.Effort-m.F) +
		cmd.FFqd*m.QD +
		cmd.FFqdD*cmd.Velocity +
		cmd.FFfD*cmd.Effort +
		cmd.FFConst
	out.Raw = raw

	// Stage 1: hard clamp within the joint's effort limits.
	u := clamp(raw, -lim.MaxEffort, lim.MaxEffort)
	out.Clamped = u != raw

	// Stage 2: ramp the effort down to zero over the excursion band past a
	// position limit.
	overrun := math.Max(m.Q-lim.MaxPosition, lim.MinPosition-m.Q)
	if overrun >= PositionErrBound {
		opsf("dangerous command modified: joint %s effort %f nulled, joint out of range at %f", name, u, m.Q)
		u = 0.0
		out.Zeroed = true
	} else if overrun >= 0 {
		opsf("dangerous command modified: joint %s effort %f scaled, joint out of range at %f", name, u, m.Q)
		u *= (PositionErrBound - overrun) / PositionErrBound
		out.Ramped = true
	}

	// Stage 3: bound the command within MaxEffortChange of the measured
	// effort so the output can never jump in a single cycle.
	if math.Abs(u-m.F) >= e.MaxEffortChange {
		opsf("dangerous command modified: joint %s effort %f out of range of current effort %f", name, u, m.F)
		out.SlewLimited = true
	}
	if u > m.F {
		u = math.Min(m.F+e.MaxEffortChange, u)
	} else {
		u = math.Max(m.F-e.MaxEffortChange, u)
	}
	out.Final = u

	// Absolute sanity ceiling on the value written to hardware.
	if math.Abs(u) >= EffortSanityCeiling {
		opsf("dangerous command for joint %s: somehow commanding %f, writing zero", name, u)
		out.Write = 0.0
		out.CeilingFault = true
	} else {
		out.Write = u
	}

	tracef("joint %s effort law: raw=%f final=%f (q=%f qd=%f f=%f)", name, raw, out.Final, m.Q, m.QD, m.F)
	return out
}

// PositionCommand runs the position control law for one joint: the commanded
// position clamped into the joint's limits.
func (e *Engine) PositionCommand(name string, m Measured, cmd command.JointCommand) PositionOutput {
	out := PositionOutput{Measured: m}
	lim := e.Limits.Lookup(name)

	target := cmd.Position
	if target > lim.MaxPosition || target < lim.MinPosition {
		opsf("dangerous command modified: joint %s position %f out of joint limits", name, target)
		out.OutOfRange = true
	}
	out.Target = clamp(target, lim.MinPosition, lim.MaxPosition)

	tracef("joint %s position law: target=%f (q=%f qd=%f)", name, out.Target, m.Q, m.QD)
	return out
}
