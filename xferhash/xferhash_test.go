package xferhash_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/sphtree/types"
	"github.com/outofforest/sphtree/xferhash"
)

func TestAppendThenVerifyRoundTrips(t *testing.T) {
	buf := xferhash.Append([]byte("a cell-tree record sequence"))
	body, err := xferhash.Verify(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("a cell-tree record sequence"), body)
}

func TestVerifyRejectsCorruptedBody(t *testing.T) {
	buf := xferhash.Append([]byte("payload"))
	buf[0] ^= 0xff
	_, err := xferhash.Verify(buf)
	require.Error(t, err)
}

func TestVerifyRejectsTruncatedBuffer(t *testing.T) {
	_, err := xferhash.Verify([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestTaskKeyIsStableAndDistinguishesIdentity(t *testing.T) {
	k1 := xferhash.TaskKey(1, 2, types.TaskPair, types.SubtypeDensity)
	k2 := xferhash.TaskKey(1, 2, types.TaskPair, types.SubtypeDensity)
	require.Equal(t, k1, k2)

	require.NotEqual(t, k1, xferhash.TaskKey(2, 1, types.TaskPair, types.SubtypeDensity))
	require.NotEqual(t, k1, xferhash.TaskKey(1, 2, types.TaskPair, types.SubtypeGradient))
}
