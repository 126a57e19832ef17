package timeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateFailed(t *testing.T) {
	_, err := New(true)
	require.Error(t, err)
}

func TestFenceReadyAfterSignal(t *testing.T) {
	tl, err := New(false)
	require.NoError(t, err)

	f := tl.CreateFence()
	require.False(t, f.Ready())

	tl.BumpSignal()
	require.True(t, f.Ready())
}

func TestFenceNotReadyForLaterIssuance(t *testing.T) {
	tl, err := New(false)
	require.NoError(t, err)

	f1 := tl.CreateFence()
	f2 := tl.CreateFence()

	tl.BumpSignal()
	require.True(t, f1.Ready())
	require.False(t, f2.Ready())

	tl.BumpSignal()
	require.True(t, f2.Ready())
}

func TestFenceDup(t *testing.T) {
	tl, err := New(false)
	require.NoError(t, err)

	f := tl.CreateFence()
	dup := f.Dup()
	tl.BumpSignal()
	require.True(t, dup.Ready())
}

func TestDestroyForcesOutstandingFencesReady(t *testing.T) {
	tl, err := New(false)
	require.NoError(t, err)

	f1 := tl.CreateFence()
	f2 := tl.CreateFence()
	tl.Destroy()

	require.True(t, f1.Ready())
	require.True(t, f2.Ready())

	// Destroy is idempotent.
	tl.Destroy()
	require.True(t, f2.Ready())
}

func TestZeroValueFenceIsAlwaysReady(t *testing.T) {
	var f Fence
	require.True(t, f.Ready())
}
