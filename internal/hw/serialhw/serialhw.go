// Package serialhw implements the hardware interface over a serial line to a
// bench rig MCU. The rig streams whitespace-delimited state lines and accepts
// single-line commands:
//
//	J <name> <position> <velocity> <effort>           joint state
//	I <name> <w> <x> <y> <z> <gx> <gy> <gz> <ax> <ay> <az>   IMU state
//	F <name> <fx> <fy> <fz> <tx> <ty> <tz>            force/torque state
//
//	E <name> <value>   commanded effort (written by the bridge)
//	P <name> <value>   commanded position
//
// A background Monitor goroutine parses state lines into mutex-guarded latest
// values; handle reads never touch the port and stay bounded-time for the
// control tick.
package serialhw

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rdeits/valkyrie-translator/internal/hw"
)

// Manifest names the handles the rig exposes per category. The MCU does not
// advertise its handles, so the manifest comes from configuration.
type Manifest struct {
	EffortJoints   []string
	PositionJoints []string
	IMUs           []string
	ForceTorques   []string
}

type jointState struct {
	q, qd, f float64
}

type imuState struct {
	quat  [4]float64
	gyro  [3]float64
	accel [3]float64
}

type ftState struct {
	force  [3]float64
	torque [3]float64
}

// Rig implements hw.RobotHW over a serial line.
type Rig struct {
	port Porter

	mu sync.Mutex

	manifest Manifest
	joints   map[string]*jointState
	imus     map[string]*imuState
	fts      map[string]*ftState
	claimed  map[string]bool

	// parse counters, readable via Stats
	lines     uint64
	parseErrs uint64

	writeMu sync.Mutex
}

// NewRig wraps an open port. The caller must run Monitor to start state
// ingestion and Close when done.
func NewRig(port Porter, manifest Manifest) *Rig {
	r := &Rig{
		port:     port,
		manifest: manifest,
		joints:   make(map[string]*jointState),
		imus:     make(map[string]*imuState),
		fts:      make(map[string]*ftState),
		claimed:  make(map[string]bool),
	}
	for _, name := range manifest.EffortJoints {
		r.joints[name] = &jointState{}
	}
	for _, name := range manifest.PositionJoints {
		r.joints[name] = &jointState{}
	}
	for _, name := range manifest.IMUs {
		r.imus[name] = &imuState{}
	}
	for _, name := range manifest.ForceTorques {
		r.fts[name] = &ftState{}
	}
	return r
}

// Open opens the serial device at path and wraps it in a Rig.
func Open(path string, mode *PortMode, manifest Manifest) (*Rig, error) {
	port, err := OpenPort(path, mode)
	if err != nil {
		return nil, err
	}
	return NewRig(port, manifest), nil
}

// Monitor reads state lines from the port until the context is cancelled or
// the port is closed. Malformed lines are counted and skipped.
func (r *Rig) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(r.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs on its own goroutine so the outer loop can
	// watch for context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				return nil
			}
			r.ingest(line)
		}
	}
}

// ingest parses one state line into the latest-value maps.
func (r *Rig) ingest(line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines++

	switch fields[0] {
	case "J":
		vals, err := parseFloats(fields[2:], 3)
		if err != nil {
			r.parseErrs++
			return
		}
		st, ok := r.joints[fields[1]]
		if !ok {
			r.parseErrs++
			return
		}
		st.q, st.qd, st.f = vals[0], vals[1], vals[2]

	case "I":
		vals, err := parseFloats(fields[2:], 10)
		if err != nil {
			r.parseErrs++
			return
		}
		st, ok := r.imus[fields[1]]
		if !ok {
			r.parseErrs++
			return
		}
		copy(st.quat[:], vals[0:4])
		copy(st.gyro[:], vals[4:7])
		copy(st.accel[:], vals[7:10])

	case "F":
		vals, err := parseFloats(fields[2:], 6)
		if err != nil {
			r.parseErrs++
			return
		}
		st, ok := r.fts[fields[1]]
		if !ok {
			r.parseErrs++
			return
		}
		copy(st.force[:], vals[0:3])
		copy(st.torque[:], vals[3:6])

	default:
		r.parseErrs++
	}
}

func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d fields, got %d", n, len(fields))
	}
	vals := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// send writes one command line to the port.
func (r *Rig) send(verb, name string, value float64) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	fmt.Fprintf(r.port, "%s %s %g\n", verb, name, value)
}

// Stats returns ingest counters for debug surfaces.
func (r *Rig) Stats() (lines, parseErrs uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines, r.parseErrs
}

func (r *Rig) Names(cat hw.Category) ([]string, error) {
	var names []string
	switch cat {
	case hw.EffortJoints:
		names = append(names, r.manifest.EffortJoints...)
	case hw.PositionJoints:
		names = append(names, r.manifest.PositionJoints...)
	case hw.IMUSensors:
		names = append(names, r.manifest.IMUs...)
	case hw.ForceTorqueSensors:
		names = append(names, r.manifest.ForceTorques...)
	default:
		return nil, hw.ErrCategoryUnavailable
	}
	sort.Strings(names)
	return names, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func claimKey(cat hw.Category, name string) string {
	return cat.String() + "/" + name
}

func (r *Rig) claim(cat hw.Category, name string, known bool) error {
	if !known {
		return &hw.ClaimError{Category: cat, Name: name, Err: hw.ErrUnknownHandle}
	}
	key := claimKey(cat, name)
	if r.claimed[key] {
		return &hw.ClaimError{Category: cat, Name: name, Err: hw.ErrAlreadyClaimed}
	}
	r.claimed[key] = true
	return nil
}

func (r *Rig) ClaimJoint(kind hw.JointKind, name string) (hw.JointHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cat := hw.EffortJoints
	pool := r.manifest.EffortJoints
	if kind == hw.PositionControlled {
		cat = hw.PositionJoints
		pool = r.manifest.PositionJoints
	}
	if err := r.claim(cat, name, contains(pool, name)); err != nil {
		return nil, err
	}
	return &rigJoint{rig: r, name: name, kind: kind}, nil
}

func (r *Rig) ClaimIMU(name string) (hw.IMUHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim(hw.IMUSensors, name, contains(r.manifest.IMUs, name)); err != nil {
		return nil, err
	}
	return &rigIMU{rig: r, name: name}, nil
}

func (r *Rig) ClaimForceTorque(name string) (hw.ForceTorqueHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim(hw.ForceTorqueSensors, name, contains(r.manifest.ForceTorques, name)); err != nil {
		return nil, err
	}
	return &rigFT{rig: r, name: name}, nil
}

func (r *Rig) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed = make(map[string]bool)
}

// Close closes the underlying port, terminating Monitor.
func (r *Rig) Close() error {
	return r.port.Close()
}

// rigJoint implements hw.JointHandle over the rig's latest-value map.
type rigJoint struct {
	rig  *Rig
	name string
	kind hw.JointKind
}

func (j *rigJoint) Name() string { return j.name }

func (j *rigJoint) read() jointState {
	j.rig.mu.Lock()
	defer j.rig.mu.Unlock()
	return *j.rig.joints[j.name]
}

func (j *rigJoint) Position() float64 { return j.read().q }
func (j *rigJoint) Velocity() float64 { return j.read().qd }
func (j *rigJoint) Effort() float64   { return j.read().f }

func (j *rigJoint) SetCommand(value float64) {
	verb := "E"
	if j.kind == hw.PositionControlled {
		verb = "P"
	}
	j.rig.send(verb, j.name, value)
}

type rigIMU struct {
	rig  *Rig
	name string
}

func (m *rigIMU) Name() string { return m.name }

func (m *rigIMU) read() imuState {
	m.rig.mu.Lock()
	defer m.rig.mu.Unlock()
	return *m.rig.imus[m.name]
}

func (m *rigIMU) Orientation() [4]float64        { return m.read().quat }
func (m *rigIMU) AngularVelocity() [3]float64    { return m.read().gyro }
func (m *rigIMU) LinearAcceleration() [3]float64 { return m.read().accel }

type rigFT struct {
	rig  *Rig
	name string
}

func (m *rigFT) Name() string { return m.name }

func (m *rigFT) read() ftState {
	m.rig.mu.Lock()
	defer m.rig.mu.Unlock()
	return *m.rig.fts[m.name]
}

func (m *rigFT) Force() [3]float64  { return m.read().force }
func (m *rigFT) Torque() [3]float64 { return m.read().torque }
