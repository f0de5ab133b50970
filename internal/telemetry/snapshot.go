// Package telemetry assembles the per-cycle status snapshots and delivers
// them to the outbound bus. Snapshots are cycle-scoped: built fresh every
// tick from current handle readings and the latched commands, never
// persisted.
package telemetry

// Channel names for the four outbound snapshot kinds.
const (
	ChannelCoreRobotState        = "CORE_ROBOT_STATE"
	ChannelCommandFeedback       = "VAL_COMMAND_FEEDBACK"
	ChannelCommandFeedbackTorque = "VAL_COMMAND_FEEDBACK_TORQUE"
	ChannelEstRobotState         = "EST_ROBOT_STATE"
)

// JointState is a per-joint state vector: measured values for the joint-state
// snapshot, latched command values for the command-feedback snapshot.
// Effort-controlled joints come first, then position-controlled joints.
type JointState struct {
	Utime         int64     `json:"utime"`
	NumJoints     int       `json:"num_joints"`
	JointName     []string  `json:"joint_name"`
	JointPosition []float64 `json:"joint_position"`
	JointVelocity []float64 `json:"joint_velocity"`
	JointEffort   []float64 `json:"joint_effort"`
}

// CommandedEffort carries the final post-safety-pipeline output per
// effort-controlled joint.
type CommandedEffort struct {
	Utime     int64     `json:"utime"`
	RobotName string    `json:"robot_name"`
	NumJoints int       `json:"num_joints"`
	JointName []string  `json:"joint_name"`
	Effort    []float64 `json:"effort"`
}

// Pose is a translation plus unit-quaternion rotation.
type Pose struct {
	Translation [3]float64 `json:"translation"`
	// Rotation is (w, x, y, z).
	Rotation [4]float64 `json:"rotation"`
}

// Twist is a linear plus angular velocity.
type Twist struct {
	LinearVelocity  [3]float64 `json:"linear_velocity"`
	AngularVelocity [3]float64 `json:"angular_velocity"`
}

// EstimatedState is the joint state plus a placeholder floating-base block.
// The pose and twist are not estimated by this component: the pose is
// identity and the twist zero, present only to satisfy downstream schema.
type EstimatedState struct {
	JointState
	Pose  Pose  `json:"pose"`
	Twist Twist `json:"twist"`
}

// IdentityPose returns the placeholder pose: zero translation, unit rotation.
func IdentityPose() Pose {
	return Pose{Rotation: [4]float64{1, 0, 0, 0}}
}

// Snapshots bundles the four snapshot kinds assembled for one cycle.
type Snapshots struct {
	JointState      JointState
	CommandFeedback JointState
	CommandedEffort CommandedEffort
	EstimatedState  EstimatedState
}
