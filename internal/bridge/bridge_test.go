package bridge

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdeits/valkyrie-translator/internal/blackbox"
	"github.com/rdeits/valkyrie-translator/internal/command"
	"github.com/rdeits/valkyrie-translator/internal/config"
	"github.com/rdeits/valkyrie-translator/internal/hw"
	"github.com/rdeits/valkyrie-translator/internal/monitor"
	"github.com/rdeits/valkyrie-translator/internal/telemetry"
)

func init() {
	SetLogWriters(nil, nil, nil)
}

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }

// benchRobot builds a mock robot with one effort joint, one position joint,
// one IMU and one force/torque sensor.
func benchRobot() (*hw.MockRobot, *hw.MockJoint, *hw.MockJoint) {
	robot := hw.NewMockRobot()
	knee := robot.AddEffortJoint("knee")
	neck := robot.AddPositionJoint("neck")
	robot.AddIMU("pelvis_imu")
	robot.AddForceTorque("left_ankle_ft")
	return robot, knee, neck
}

func newTestBridge(t *testing.T, robot hw.RobotHW, cfg *config.BridgeConfig, pub telemetry.Publisher) *Bridge {
	t.Helper()
	b, err := New(Options{
		HW:        robot,
		Config:    cfg,
		RobotName: "valkyrie",
		Publisher: pub,
	})
	require.NoError(t, err)
	return b
}

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()

	robot, _, _ := benchRobot()
	b := newTestBridge(t, robot, config.EmptyBridgeConfig(), nil)
	require.Equal(t, StateConstructed, b.State())

	// Out-of-order calls fail before Init.
	assert.ErrorIs(t, b.Start(time.Now()), ErrBadState)
	assert.ErrorIs(t, b.Update(time.Now()), ErrBadState)

	require.NoError(t, b.Init())
	assert.Equal(t, StateInitialized, b.State())
	assert.ErrorIs(t, b.Init(), ErrBadState)

	require.NoError(t, b.Start(time.Now()))
	assert.Equal(t, StateRunning, b.State())

	require.NoError(t, b.Update(time.Now()))

	require.NoError(t, b.Stop(time.Now()))
	assert.Equal(t, StateStopped, b.State())

	// Stopped is terminal.
	assert.ErrorIs(t, b.Start(time.Now()), ErrBadState)
	assert.ErrorIs(t, b.Update(time.Now()), ErrBadState)
	assert.ErrorIs(t, b.Stop(time.Now()), ErrBadState)
}

func TestInitFailsWhenCategoryMissing(t *testing.T) {
	t.Parallel()

	for _, cat := range []hw.Category{hw.EffortJoints, hw.PositionJoints, hw.IMUSensors, hw.ForceTorqueSensors} {
		robot, _, _ := benchRobot()
		robot.DisabledCategories[cat] = true

		b := newTestBridge(t, robot, config.EmptyBridgeConfig(), nil)
		err := b.Init()
		require.Error(t, err, "missing %s must abort activation", cat)
		assert.ErrorIs(t, err, hw.ErrCategoryUnavailable)
		assert.Equal(t, StateConstructed, b.State())
	}
}

func TestInitReleasesClaimsOnFailure(t *testing.T) {
	t.Parallel()

	robot, _, _ := benchRobot()
	robot.DisabledCategories[hw.ForceTorqueSensors] = true

	b := newTestBridge(t, robot, config.EmptyBridgeConfig(), nil)
	require.Error(t, b.Init())

	// The joints claimed before the failure must be reclaimable.
	robot.DisabledCategories[hw.ForceTorqueSensors] = false
	b2 := newTestBridge(t, robot, config.EmptyBridgeConfig(), nil)
	require.NoError(t, b2.Init())
	assert.Equal(t, 4, b2.ClaimSummary().Total())
}

func TestJointAllowlistFiltersJointsNotSensors(t *testing.T) {
	t.Parallel()

	robot, _, _ := benchRobot()
	cfg := config.EmptyBridgeConfig()
	cfg.Joints = []string{"knee"}

	b := newTestBridge(t, robot, cfg, nil)
	require.NoError(t, b.Init())

	sum := b.ClaimSummary()
	assert.Equal(t, 1, sum.EffortJoints)
	assert.Equal(t, 0, sum.PositionJoints, "neck is not in the allowlist")
	assert.Equal(t, 1, sum.IMUs, "sensors are not filtered")
	assert.Equal(t, 1, sum.ForceTorques)
	assert.Equal(t, []string{"knee"}, b.Store().Names())
}

func TestUpdateComputesWithoutWritingByDefault(t *testing.T) {
	t.Parallel()

	robot, knee, neck := benchRobot()
	pub := telemetry.NewCapturePublisher()
	b := newTestBridge(t, robot, config.EmptyBridgeConfig(), pub)
	require.NoError(t, b.Init())

	// Latch a command that yields a nonzero effort: raw = KfP*(effort - f).
	b.Store().Update("knee", command.JointCommand{Effort: 5, KfP: 1})

	t0 := time.Now()
	require.NoError(t, b.Start(t0))
	require.NoError(t, b.Update(t0.Add(2*time.Millisecond)))

	_, kneeWrites := knee.Written()
	_, neckWrites := neck.Written()
	assert.Zero(t, kneeWrites, "apply_commands defaults off")
	assert.Zero(t, neckWrites)

	// The pipeline output is still telemetered.
	msg := pub.Last(telemetry.ChannelCommandFeedbackTorque)
	require.NotNil(t, msg)
	commanded := msg.(telemetry.CommandedEffort)
	require.Equal(t, []string{"knee"}, commanded.JointName)
	assert.InDelta(t, 5.0, commanded.Effort[0], 1e-9)
}

func TestUpdateWritesInApplyMode(t *testing.T) {
	t.Parallel()

	robot, knee, neck := benchRobot()
	cfg := config.EmptyBridgeConfig()
	cfg.ApplyCommands = boolPtr(true)

	b := newTestBridge(t, robot, cfg, nil)
	require.NoError(t, b.Init())

	b.Store().Update("knee", command.JointCommand{Effort: 5, KfP: 1})
	b.Store().Update("neck", command.JointCommand{Position: 0.5})

	t0 := time.Now()
	require.NoError(t, b.Start(t0))
	require.NoError(t, b.Update(t0.Add(2*time.Millisecond)))

	kneeVal, kneeWrites := knee.Written()
	assert.Equal(t, 1, kneeWrites)
	assert.InDelta(t, 5.0, kneeVal, 1e-9)

	neckVal, neckWrites := neck.Written()
	assert.Equal(t, 1, neckWrites)
	assert.InDelta(t, 0.5, neckVal, 1e-9)
}

func TestPublishGates(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		robot, _, _ := benchRobot()
		pub := telemetry.NewCapturePublisher()
		b := newTestBridge(t, robot, config.EmptyBridgeConfig(), pub)
		require.NoError(t, b.Init())
		t0 := time.Now()
		require.NoError(t, b.Start(t0))
		require.NoError(t, b.Update(t0.Add(2*time.Millisecond)))

		assert.Equal(t, []string{
			telemetry.ChannelCoreRobotState,
			telemetry.ChannelCommandFeedback,
			telemetry.ChannelCommandFeedbackTorque,
		}, pub.Channels())
	})

	t.Run("est enabled core disabled", func(t *testing.T) {
		t.Parallel()
		robot, _, _ := benchRobot()
		cfg := config.EmptyBridgeConfig()
		cfg.PublishCoreRobotState = boolPtr(false)
		cfg.PublishEstRobotState = boolPtr(true)

		pub := telemetry.NewCapturePublisher()
		b := newTestBridge(t, robot, cfg, pub)
		require.NoError(t, b.Init())
		t0 := time.Now()
		require.NoError(t, b.Start(t0))
		require.NoError(t, b.Update(t0.Add(2*time.Millisecond)))

		assert.Equal(t, []string{
			telemetry.ChannelCommandFeedback,
			telemetry.ChannelCommandFeedbackTorque,
			telemetry.ChannelEstRobotState,
		}, pub.Channels())
	})
}

func TestSafetyFaultsRecordedToBlackbox(t *testing.T) {
	t.Parallel()

	robot, knee, _ := benchRobot()
	// knee past its upper limit: any commanded effort is nulled.
	knee.SetMeasured(1.15, 0, 0)

	cfg := config.EmptyBridgeConfig()
	cfg.Limits = map[string]config.JointLimitOverride{
		"knee": {MinPosition: floatPtr(-1), MaxPosition: floatPtr(1), MaxEffort: floatPtr(50)},
	}

	rec, err := blackbox.Open(filepath.Join(t.TempDir(), "blackbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	b, err := New(Options{HW: robot, Config: cfg, Recorder: rec})
	require.NoError(t, err)
	require.NoError(t, b.Init())

	b.Store().Update("knee", command.JointCommand{Effort: 5, KfP: 1})

	t0 := time.Now()
	require.NoError(t, b.Start(t0))
	require.NoError(t, b.Update(t0.Add(2*time.Millisecond)))
	rec.Flush()

	events, err := rec.RecentFaults(10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, blackbox.FaultEffortNulled, events[0].Kind)
	assert.Equal(t, "knee", events[0].Joint)
	assert.InDelta(t, 1.15, events[0].Value, 1e-9)
}

func TestUpdateRecordsCycleTiming(t *testing.T) {
	t.Parallel()

	robot, _, _ := benchRobot()
	stats := monitor.NewCycleStats(2*time.Millisecond, 64)

	b, err := New(Options{HW: robot, Config: config.EmptyBridgeConfig(), Stats: stats})
	require.NoError(t, err)
	require.NoError(t, b.Init())

	t0 := time.Now()
	require.NoError(t, b.Start(t0))
	require.NoError(t, b.Update(t0.Add(2*time.Millisecond)))
	require.NoError(t, b.Update(t0.Add(4*time.Millisecond)))

	assert.Equal(t, uint64(2), stats.Summarize().Count)
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()

	robot, _, _ := benchRobot()
	b := newTestBridge(t, robot, config.EmptyBridgeConfig(), nil)
	require.NoError(t, b.Init())

	mux := http.NewServeMux()
	b.AttachAdminRoutes(mux)

	get := func(path string) *httptest.ResponseRecorder {
		// tsweb only serves debug routes to loopback clients.
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "127.0.0.1:1234"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/debug/bridge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"initialized"`)
	assert.Contains(t, rec.Body.String(), b.ActivationID)

	rec = get("/debug/commands")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"knee"`)
	assert.Contains(t, rec.Body.String(), `"neck"`)
}
