package command

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUpdateAtomicReplacement(t *testing.T) {
	t.Parallel()

	store := NewStore([]string{"hip", "knee"})

	// Latch an initial command with every field set.
	first := JointCommand{
		Position: 1, Velocity: 2, Effort: 3,
		KqP: 4, KqI: 5, KqdP: 6, KfP: 7,
		FFqd: 8, FFqdD: 9, FFfD: 10, FFConst: 11,
	}
	require.True(t, store.Update("hip", first))

	// Replacement is total: no mix of old and new fields.
	second := JointCommand{Position: 100, KqP: 200}
	require.True(t, store.Update("hip", second))

	got := store.Read("hip")
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("command mismatch after replacement (-want +got):\n%s", diff)
	}
}

func TestStoreUnknownJointIgnored(t *testing.T) {
	t.Parallel()

	store := NewStore([]string{"knee"})
	require.Equal(t, 1, store.Len())

	ok := store.Update("elbow", JointCommand{Position: 1})
	assert.False(t, ok)

	// The claimed-joint set is closed: no insertion happened.
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []string{"knee"}, store.Names())
}

func TestStorePrepopulatedZeroed(t *testing.T) {
	t.Parallel()

	store := NewStore([]string{"a", "b"})
	assert.Equal(t, JointCommand{}, store.Read("a"))
	assert.Equal(t, JointCommand{}, store.Read("b"))
}

func TestStoreStaleCommandPersists(t *testing.T) {
	t.Parallel()

	store := NewStore([]string{"knee"})
	cmd := JointCommand{Position: 0.5, KqP: 10}
	store.Update("knee", cmd)

	// No implicit reset between reads: the command persists until superseded.
	for i := 0; i < 3; i++ {
		assert.Equal(t, cmd, store.Read("knee"))
	}
}

func makeBatch(names []string) Batch {
	n := len(names)
	b := Batch{
		NumJoints: n,
		JointName: names,
		Position:  make([]float64, n),
		Velocity:  make([]float64, n),
		Effort:    make([]float64, n),
		KqP:       make([]float64, n),
		KqI:       make([]float64, n),
		KqdP:      make([]float64, n),
		KfP:       make([]float64, n),
		FFqd:      make([]float64, n),
		FFqdD:     make([]float64, n),
		FFfD:      make([]float64, n),
		FFConst:   make([]float64, n),
	}
	for i := range names {
		b.Position[i] = float64(i + 1)
		b.KqP[i] = float64(10 * (i + 1))
	}
	return b
}

func TestBatchValidate(t *testing.T) {
	t.Parallel()

	b := makeBatch([]string{"hip", "knee"})
	assert.NoError(t, b.Validate())

	b.NumJoints = 3 // arrays now shorter than the claimed count
	assert.Error(t, b.Validate())

	b.NumJoints = -1
	assert.Error(t, b.Validate())
}

func TestBatchApply(t *testing.T) {
	t.Parallel()

	store := NewStore([]string{"knee"})
	b := makeBatch([]string{"hip", "knee"}) // hip is not claimed here

	applied := b.Apply(store)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, store.Len())

	knee := store.Read("knee")
	assert.Equal(t, 2.0, knee.Position)
	assert.Equal(t, 20.0, knee.KqP)
}
