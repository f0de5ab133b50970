package hw

import (
	"sort"
	"sync"
)

// MockJoint implements JointHandle with settable measured state and full
// visibility into commands written by the controller. Fields are guarded by
// an internal mutex so tests can mutate state while a control loop runs.
type MockJoint struct {
	mu sync.Mutex

	name string

	// Measured state returned by reads.
	Q  float64
	QD float64
	F  float64

	// LastCommand holds the most recent value written via SetCommand.
	LastCommand float64

	// CommandCalls counts SetCommand invocations.
	CommandCalls int
}

func (j *MockJoint) Name() string { return j.name }

func (j *MockJoint) Position() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Q
}

func (j *MockJoint) Velocity() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.QD
}

func (j *MockJoint) Effort() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.F
}

func (j *MockJoint) SetCommand(value float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.LastCommand = value
	j.CommandCalls++
}

// SetMeasured updates the measured state returned by subsequent reads.
func (j *MockJoint) SetMeasured(q, qd, f float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Q, j.QD, j.F = q, qd, f
}

// Written returns the last commanded value and the number of writes so far.
func (j *MockJoint) Written() (value float64, calls int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.LastCommand, j.CommandCalls
}

// MockIMU implements IMUHandle with settable readings.
type MockIMU struct {
	mu sync.Mutex

	name string

	Quat  [4]float64
	Gyro  [3]float64
	Accel [3]float64
}

func (m *MockIMU) Name() string { return m.name }

func (m *MockIMU) Orientation() [4]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Quat
}

func (m *MockIMU) AngularVelocity() [3]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gyro
}

func (m *MockIMU) LinearAcceleration() [3]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Accel
}

// MockForceTorque implements ForceTorqueHandle with settable readings.
type MockForceTorque struct {
	mu sync.Mutex

	name string

	F [3]float64
	T [3]float64
}

func (m *MockForceTorque) Name() string { return m.name }

func (m *MockForceTorque) Force() [3]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.F
}

func (m *MockForceTorque) Torque() [3]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.T
}

// MockRobot implements RobotHW for bench and unit-test use. Categories can be
// disabled entirely to exercise activation-failure paths.
type MockRobot struct {
	mu sync.Mutex

	effortJoints   map[string]*MockJoint
	positionJoints map[string]*MockJoint
	imus           map[string]*MockIMU
	forceTorques   map[string]*MockForceTorque

	claimed map[string]bool

	// DisabledCategories simulates a host that does not expose a category
	// at all; Names returns ErrCategoryUnavailable for entries set true.
	DisabledCategories map[Category]bool
}

// NewMockRobot creates an empty mock robot. Add handles with AddEffortJoint
// and friends before handing it to a bridge.
func NewMockRobot() *MockRobot {
	return &MockRobot{
		effortJoints:       make(map[string]*MockJoint),
		positionJoints:     make(map[string]*MockJoint),
		imus:               make(map[string]*MockIMU),
		forceTorques:       make(map[string]*MockForceTorque),
		claimed:            make(map[string]bool),
		DisabledCategories: make(map[Category]bool),
	}
}

// AddEffortJoint registers an effort-controlled joint and returns its handle
// so tests can drive measured state.
func (r *MockRobot) AddEffortJoint(name string) *MockJoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := &MockJoint{name: name}
	r.effortJoints[name] = j
	return j
}

// AddPositionJoint registers a position-controlled joint.
func (r *MockRobot) AddPositionJoint(name string) *MockJoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := &MockJoint{name: name}
	r.positionJoints[name] = j
	return j
}

// AddIMU registers an IMU sensor with an identity orientation.
func (r *MockRobot) AddIMU(name string) *MockIMU {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := &MockIMU{name: name, Quat: [4]float64{1, 0, 0, 0}}
	r.imus[name] = m
	return m
}

// AddForceTorque registers a force/torque sensor.
func (r *MockRobot) AddForceTorque(name string) *MockForceTorque {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := &MockForceTorque{name: name}
	r.forceTorques[name] = m
	return m
}

func (r *MockRobot) Names(cat Category) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DisabledCategories[cat] {
		return nil, ErrCategoryUnavailable
	}
	var names []string
	switch cat {
	case EffortJoints:
		for n := range r.effortJoints {
			names = append(names, n)
		}
	case PositionJoints:
		for n := range r.positionJoints {
			names = append(names, n)
		}
	case IMUSensors:
		for n := range r.imus {
			names = append(names, n)
		}
	case ForceTorqueSensors:
		for n := range r.forceTorques {
			names = append(names, n)
		}
	default:
		return nil, ErrCategoryUnavailable
	}
	sort.Strings(names)
	return names, nil
}

// claimKey disambiguates the same name across categories.
func claimKey(cat Category, name string) string {
	return cat.String() + "/" + name
}

func (r *MockRobot) ClaimJoint(kind JointKind, name string) (JointHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cat := EffortJoints
	pool := r.effortJoints
	if kind == PositionControlled {
		cat = PositionJoints
		pool = r.positionJoints
	}
	if r.DisabledCategories[cat] {
		return nil, &ClaimError{Category: cat, Name: name, Err: ErrCategoryUnavailable}
	}
	j, ok := pool[name]
	if !ok {
		return nil, &ClaimError{Category: cat, Name: name, Err: ErrUnknownHandle}
	}
	key := claimKey(cat, name)
	if r.claimed[key] {
		return nil, &ClaimError{Category: cat, Name: name, Err: ErrAlreadyClaimed}
	}
	r.claimed[key] = true
	return j, nil
}

func (r *MockRobot) ClaimIMU(name string) (IMUHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DisabledCategories[IMUSensors] {
		return nil, &ClaimError{Category: IMUSensors, Name: name, Err: ErrCategoryUnavailable}
	}
	m, ok := r.imus[name]
	if !ok {
		return nil, &ClaimError{Category: IMUSensors, Name: name, Err: ErrUnknownHandle}
	}
	key := claimKey(IMUSensors, name)
	if r.claimed[key] {
		return nil, &ClaimError{Category: IMUSensors, Name: name, Err: ErrAlreadyClaimed}
	}
	r.claimed[key] = true
	return m, nil
}

func (r *MockRobot) ClaimForceTorque(name string) (ForceTorqueHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DisabledCategories[ForceTorqueSensors] {
		return nil, &ClaimError{Category: ForceTorqueSensors, Name: name, Err: ErrCategoryUnavailable}
	}
	m, ok := r.forceTorques[name]
	if !ok {
		return nil, &ClaimError{Category: ForceTorqueSensors, Name: name, Err: ErrUnknownHandle}
	}
	key := claimKey(ForceTorqueSensors, name)
	if r.claimed[key] {
		return nil, &ClaimError{Category: ForceTorqueSensors, Name: name, Err: ErrAlreadyClaimed}
	}
	r.claimed[key] = true
	return m, nil
}

func (r *MockRobot) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed = make(map[string]bool)
}
