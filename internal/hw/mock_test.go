package hw

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRobotNames(t *testing.T) {
	t.Parallel()

	r := NewMockRobot()
	r.AddEffortJoint("knee")
	r.AddEffortJoint("hip")
	r.AddPositionJoint("neck")
	r.AddIMU("pelvis_imu")
	r.AddForceTorque("left_ankle_ft")

	names, err := r.Names(EffortJoints)
	require.NoError(t, err)
	assert.Equal(t, []string{"hip", "knee"}, names, "names are sorted")

	names, err = r.Names(PositionJoints)
	require.NoError(t, err)
	assert.Equal(t, []string{"neck"}, names)

	names, err = r.Names(IMUSensors)
	require.NoError(t, err)
	assert.Equal(t, []string{"pelvis_imu"}, names)

	names, err = r.Names(ForceTorqueSensors)
	require.NoError(t, err)
	assert.Equal(t, []string{"left_ankle_ft"}, names)
}

func TestMockRobotDisabledCategory(t *testing.T) {
	t.Parallel()

	r := NewMockRobot()
	r.AddEffortJoint("knee")
	r.DisabledCategories[IMUSensors] = true

	_, err := r.Names(IMUSensors)
	assert.ErrorIs(t, err, ErrCategoryUnavailable)

	_, err = r.ClaimIMU("pelvis_imu")
	assert.ErrorIs(t, err, ErrCategoryUnavailable)
}

func TestMockRobotClaimExclusive(t *testing.T) {
	t.Parallel()

	r := NewMockRobot()
	r.AddEffortJoint("knee")

	h, err := r.ClaimJoint(EffortControlled, "knee")
	require.NoError(t, err)
	require.Equal(t, "knee", h.Name())

	_, err = r.ClaimJoint(EffortControlled, "knee")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	var claimErr *ClaimError
	require.True(t, errors.As(err, &claimErr))
	assert.Equal(t, EffortJoints, claimErr.Category)
	assert.Equal(t, "knee", claimErr.Name)

	// Release makes the handle claimable again.
	r.Release()
	_, err = r.ClaimJoint(EffortControlled, "knee")
	assert.NoError(t, err)
}

func TestMockRobotClaimUnknown(t *testing.T) {
	t.Parallel()

	r := NewMockRobot()
	_, err := r.ClaimJoint(PositionControlled, "missing")
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestMockJointReadWrite(t *testing.T) {
	t.Parallel()

	r := NewMockRobot()
	j := r.AddEffortJoint("knee")
	j.SetMeasured(0.5, -0.1, 12.0)

	assert.Equal(t, 0.5, j.Position())
	assert.Equal(t, -0.1, j.Velocity())
	assert.Equal(t, 12.0, j.Effort())

	j.SetCommand(3.5)
	j.SetCommand(4.0)
	value, calls := j.Written()
	assert.Equal(t, 4.0, value)
	assert.Equal(t, 2, calls)
}

func TestClaimSummary(t *testing.T) {
	t.Parallel()

	s := ClaimSummary{EffortJoints: 3, PositionJoints: 2, IMUs: 1, ForceTorques: 4}
	assert.Equal(t, 10, s.Total())
	assert.Contains(t, s.String(), "10 claimed resources")
}
