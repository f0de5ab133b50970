package telemetry

import (
	"github.com/rdeits/valkyrie-translator/internal/command"
	"github.com/rdeits/valkyrie-translator/internal/control"
)

// EffortSample is one effort-controlled joint's contribution to the cycle:
// measured state, latched command, and the control-law output.
type EffortSample struct {
	Name string
	Out  control.EffortOutput
	Cmd  command.JointCommand
}

// PositionSample is one position-controlled joint's contribution.
type PositionSample struct {
	Name string
	Out  control.PositionOutput
	Cmd  command.JointCommand
}

// Assembler builds the four snapshot kinds from per-joint cycle results.
// The joint ordering is fixed at construction: effort-controlled entries
// first, position-controlled after, so downstream consumers see a stable
// layout every cycle.
type Assembler struct {
	robotName string
}

// NewAssembler creates an Assembler. robotName tags the commanded-effort
// snapshot for consumers that multiplex several robots.
func NewAssembler(robotName string) *Assembler {
	return &Assembler{robotName: robotName}
}

func newJointState(utime int64, n int) JointState {
	return JointState{
		Utime:         utime,
		NumJoints:     n,
		JointName:     make([]string, n),
		JointPosition: make([]float64, n),
		JointVelocity: make([]float64, n),
		JointEffort:   make([]float64, n),
	}
}

// Assemble builds all four snapshots for a cycle. utime is the cycle's
// timestamp at microsecond resolution. The effort and position slices must
// be in the fixed claimed-joint order.
func (a *Assembler) Assemble(utime int64, efforts []EffortSample, positions []PositionSample) Snapshots {
	n := len(efforts) + len(positions)

	state := newJointState(utime, n)
	feedback := newJointState(utime, n)
	commanded := CommandedEffort{
		Utime:     utime,
		RobotName: a.robotName,
		NumJoints: len(efforts),
		JointName: make([]string, len(efforts)),
		Effort:    make([]float64, len(efforts)),
	}

	for i, s := range efforts {
		state.JointName[i] = s.Name
		state.JointPosition[i] = s.Out.Measured.Q
		state.JointVelocity[i] = s.Out.Measured.QD
		state.JointEffort[i] = s.Out.Measured.F // measured, not commanded

		// Echo the latched command so consumers can verify sync.
		feedback.JointName[i] = s.Name
		feedback.JointPosition[i] = s.Cmd.Position
		feedback.JointVelocity[i] = s.Cmd.Velocity
		feedback.JointEffort[i] = s.Cmd.Effort

		commanded.JointName[i] = s.Name
		commanded.Effort[i] = s.Out.Final
	}

	for i, s := range positions {
		j := len(efforts) + i
		state.JointName[j] = s.Name
		state.JointPosition[j] = s.Out.Measured.Q
		state.JointVelocity[j] = s.Out.Measured.QD

		feedback.JointName[j] = s.Name
		feedback.JointPosition[j] = s.Cmd.Position
		feedback.JointVelocity[j] = s.Cmd.Velocity
		feedback.JointEffort[j] = s.Cmd.Effort
	}

	est := EstimatedState{
		JointState: state,
		Pose:       IdentityPose(),
		Twist:      Twist{},
	}

	return Snapshots{
		JointState:      state,
		CommandFeedback: feedback,
		CommandedEffort: commanded,
		EstimatedState:  est,
	}
}
