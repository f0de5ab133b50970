package serialhw

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdeits/valkyrie-translator/internal/hw"
)

// fakePort feeds scripted state lines to the rig and records written
// commands.
type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written strings.Builder
	closed  bool
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.w.Close()
	return p.r.Close()
}

// feed delivers one line as if the MCU sent it.
func (p *fakePort) feed(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(p.w, line+"\n")
	require.NoError(t, err)
}

func (p *fakePort) commands() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func benchManifest() Manifest {
	return Manifest{
		EffortJoints:   []string{"knee", "ankle"},
		PositionJoints: []string{"neck"},
		IMUs:           []string{"pelvis_imu"},
		ForceTorques:   []string{"left_ankle_ft"},
	}
}

func startRig(t *testing.T) (*Rig, *fakePort) {
	t.Helper()
	port := newFakePort()
	rig := NewRig(port, benchManifest())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.Monitor(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		rig.Close()
		<-done
	})
	return rig, port
}

func TestNamesSortedPerCategory(t *testing.T) {
	t.Parallel()

	rig := NewRig(newFakePort(), benchManifest())

	names, err := rig.Names(hw.EffortJoints)
	require.NoError(t, err)
	assert.Equal(t, []string{"ankle", "knee"}, names)

	names, err = rig.Names(hw.IMUSensors)
	require.NoError(t, err)
	assert.Equal(t, []string{"pelvis_imu"}, names)
}

func TestClaimsAreExclusive(t *testing.T) {
	t.Parallel()

	rig := NewRig(newFakePort(), benchManifest())

	_, err := rig.ClaimJoint(hw.EffortControlled, "knee")
	require.NoError(t, err)

	_, err = rig.ClaimJoint(hw.EffortControlled, "knee")
	assert.ErrorIs(t, err, hw.ErrAlreadyClaimed)

	_, err = rig.ClaimJoint(hw.EffortControlled, "elbow")
	assert.ErrorIs(t, err, hw.ErrUnknownHandle)

	rig.Release()
	_, err = rig.ClaimJoint(hw.EffortControlled, "knee")
	assert.NoError(t, err)
}

func TestMonitorParsesJointState(t *testing.T) {
	t.Parallel()

	rig, port := startRig(t)
	h, err := rig.ClaimJoint(hw.EffortControlled, "knee")
	require.NoError(t, err)

	port.feed(t, "J knee 0.5 -0.1 2.5")
	require.Eventually(t, func() bool {
		return h.Position() == 0.5
	}, time.Second, time.Millisecond)
	assert.Equal(t, -0.1, h.Velocity())
	assert.Equal(t, 2.5, h.Effort())
}

func TestMonitorParsesSensors(t *testing.T) {
	t.Parallel()

	rig, port := startRig(t)
	imu, err := rig.ClaimIMU("pelvis_imu")
	require.NoError(t, err)
	ft, err := rig.ClaimForceTorque("left_ankle_ft")
	require.NoError(t, err)

	port.feed(t, "I pelvis_imu 1 0 0 0 0.1 0.2 0.3 0 0 -9.81")
	port.feed(t, "F left_ankle_ft 1 2 3 4 5 6")

	require.Eventually(t, func() bool {
		return ft.Force() == [3]float64{1, 2, 3}
	}, time.Second, time.Millisecond)
	assert.Equal(t, [4]float64{1, 0, 0, 0}, imu.Orientation())
	assert.Equal(t, [3]float64{0.1, 0.2, 0.3}, imu.AngularVelocity())
	assert.Equal(t, [3]float64{0, 0, -9.81}, imu.LinearAcceleration())
	assert.Equal(t, [3]float64{4, 5, 6}, ft.Torque())
}

func TestMonitorCountsMalformedLines(t *testing.T) {
	t.Parallel()

	rig, port := startRig(t)

	port.feed(t, "J knee not-a-number 0 0")
	port.feed(t, "X bogus 1")
	port.feed(t, "J unknown_joint 1 2 3")

	require.Eventually(t, func() bool {
		_, parseErrs := rig.Stats()
		return parseErrs == 3
	}, time.Second, time.Millisecond)
}

func TestSetCommandWritesLine(t *testing.T) {
	t.Parallel()

	rig, port := startRig(t)

	knee, err := rig.ClaimJoint(hw.EffortControlled, "knee")
	require.NoError(t, err)
	neck, err := rig.ClaimJoint(hw.PositionControlled, "neck")
	require.NoError(t, err)

	knee.SetCommand(5.25)
	neck.SetCommand(-0.5)

	assert.Equal(t, "E knee 5.25\nP neck -0.5\n", port.commands())
}
