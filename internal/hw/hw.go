// Package hw models the robot's joint-level hardware interface: named
// actuator and sensor handles grouped into categories, claimed exclusively by
// a controller for the duration of its activation.
//
// The package defines the minimal interfaces the control bridge needs. Real
// robots provide an implementation wired to the control runtime; the mock rig
// in this package and the serial-backed rig in hw/serialhw cover bench use.
package hw

import (
	"errors"
	"fmt"
)

// Category identifies one of the four hardware-interface categories a
// controller claims at activation.
type Category int

const (
	EffortJoints Category = iota
	PositionJoints
	IMUSensors
	ForceTorqueSensors
)

func (c Category) String() string {
	switch c {
	case EffortJoints:
		return "effort-controlled joints"
	case PositionJoints:
		return "position-controlled joints"
	case IMUSensors:
		return "IMU sensors"
	case ForceTorqueSensors:
		return "force/torque sensors"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// JointKind tags a claimed joint with the control law that applies to it.
type JointKind int

const (
	EffortControlled JointKind = iota
	PositionControlled
)

func (k JointKind) String() string {
	if k == EffortControlled {
		return "effort"
	}
	return "position"
}

// ErrCategoryUnavailable indicates the host does not expose a hardware
// category at all, as opposed to exposing it with zero names.
var ErrCategoryUnavailable = errors.New("hardware category unavailable")

// ErrAlreadyClaimed indicates a handle is exclusively held by another
// controller.
var ErrAlreadyClaimed = errors.New("handle already claimed")

// ErrUnknownHandle indicates a name that does not exist in the category.
var ErrUnknownHandle = errors.New("unknown handle name")

// ClaimError wraps a claim failure with the category and name involved so
// activation errors identify exactly which prerequisite was missing.
type ClaimError struct {
	Category Category
	Name     string
	Err      error
}

func (e *ClaimError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("claim %s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("claim %s %q: %v", e.Category, e.Name, e.Err)
}

func (e *ClaimError) Unwrap() error { return e.Err }

// JointHandle is a borrowed, non-owned reference to a single joint. Reads
// return the latest measured state; Write sets the commanded value (effort
// for effort-controlled joints, position for position-controlled joints).
// All methods must be non-blocking or bounded-time: they are called from the
// control tick.
type JointHandle interface {
	Name() string
	Position() float64
	Velocity() float64
	Effort() float64
	SetCommand(value float64)
}

// IMUHandle is a borrowed reference to an orientation/inertial sensor.
type IMUHandle interface {
	Name() string
	// Orientation returns a unit quaternion as (w, x, y, z).
	Orientation() [4]float64
	AngularVelocity() [3]float64
	LinearAcceleration() [3]float64
}

// ForceTorqueHandle is a borrowed reference to a force/torque sensor.
type ForceTorqueHandle interface {
	Name() string
	Force() [3]float64
	Torque() [3]float64
}

// RobotHW is the host-side hardware interface a controller claims handles
// from. Names returns the advertised handle names for a category, or
// ErrCategoryUnavailable when the host does not provide the category; a
// missing category is a hard activation prerequisite for the bridge.
//
// Claiming is exclusive: a second claim of the same name fails with
// ErrAlreadyClaimed until Release is called.
type RobotHW interface {
	Names(cat Category) ([]string, error)
	ClaimJoint(kind JointKind, name string) (JointHandle, error)
	ClaimIMU(name string) (IMUHandle, error)
	ClaimForceTorque(name string) (ForceTorqueHandle, error)
	// Release drops every claim held for this controller. Called when the
	// bridge stops so a subsequent activation can claim again.
	Release()
}

// ClaimSummary counts claimed handles per category for activation reporting.
type ClaimSummary struct {
	EffortJoints   int
	PositionJoints int
	IMUs           int
	ForceTorques   int
}

// Total returns the total number of claimed resources.
func (s ClaimSummary) Total() int {
	return s.EffortJoints + s.PositionJoints + s.IMUs + s.ForceTorques
}

func (s ClaimSummary) String() string {
	return fmt.Sprintf("%d claimed resources: %d effort joints, %d position joints, %d IMUs, %d force/torque",
		s.Total(), s.EffortJoints, s.PositionJoints, s.IMUs, s.ForceTorques)
}
