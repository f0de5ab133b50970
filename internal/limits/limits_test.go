package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupConfigured(t *testing.T) {
	SetLogger(nil)

	table := Build(map[string]JointLimits{
		"knee": {MinPosition: -1.0, MaxPosition: 1.0, MaxEffort: 50},
	}, []string{"knee", "hip"})

	knee := table.Lookup("knee")
	assert.Equal(t, -1.0, knee.MinPosition)
	assert.Equal(t, 1.0, knee.MaxPosition)
	assert.Equal(t, 50.0, knee.MaxEffort)
	assert.True(t, table.Configured("knee"))
}

func TestLookupFallsBackToDefaults(t *testing.T) {
	SetLogger(nil)

	table := Build(nil, []string{"hip"})

	hip := table.Lookup("hip")
	assert.Equal(t, Defaults(), hip)
	assert.False(t, table.Configured("hip"))

	// Defaults span the full position range with a large effort sentinel.
	assert.Equal(t, DefaultMinPosition, hip.MinPosition)
	assert.Equal(t, DefaultMaxPosition, hip.MaxPosition)
	assert.Equal(t, DefaultMaxEffort, hip.MaxEffort)
}

func TestBuildLogsMissingJoints(t *testing.T) {
	var logged []string
	SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, format)
	})
	defer SetLogger(nil)

	Build(map[string]JointLimits{"knee": {}}, []string{"knee", "hip"})

	// One limits line for knee, one missing-config line for hip.
	assert.Len(t, logged, 2)
}
