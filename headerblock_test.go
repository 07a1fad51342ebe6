package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderBlockSingleFrame(t *testing.T) {
	var a headerBlockAssembler
	frag, done, err := a.startHeaders(1, []byte("hello"), true, true, nil)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, []byte("hello"), frag)
	require.False(t, a.InProgress())
}

func TestHeaderBlockSpansContinuation(t *testing.T) {
	var a headerBlockAssembler
	_, done, err := a.startHeaders(1, []byte("he"), false, false, nil)
	require.NoError(t, err)
	require.False(t, done)
	require.True(t, a.InProgress())
	require.Equal(t, uint32(1), a.InProgressStreamID())

	_, done, _, err = a.continuation(1, []byte("ll"), false)
	require.NoError(t, err)
	require.False(t, done)

	frag, done, blk, err := a.continuation(1, []byte("o"), true)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, []byte("hello"), frag)
	require.Equal(t, blockHeaders, blk.kind)
	require.False(t, a.InProgress())
}

func TestHeaderBlockRejectsSecondStartWhileInProgress(t *testing.T) {
	var a headerBlockAssembler
	_, _, err := a.startHeaders(1, []byte("x"), false, false, nil)
	require.NoError(t, err)

	_, _, err = a.startHeaders(3, []byte("y"), false, false, nil)
	require.Error(t, err)
}

func TestHeaderBlockRejectsContinuationForWrongStream(t *testing.T) {
	var a headerBlockAssembler
	_, _, err := a.startHeaders(1, []byte("x"), false, false, nil)
	require.NoError(t, err)

	_, _, _, err = a.continuation(3, []byte("y"), true)
	require.Error(t, err)
}

func TestHeaderBlockContinuationFloodIsDenialOfService(t *testing.T) {
	var a headerBlockAssembler
	_, _, err := a.startHeaders(1, nil, false, false, nil)
	require.NoError(t, err)

	for i := 0; i < maxContinuationFrames; i++ {
		_, _, _, err = a.continuation(1, nil, false)
		require.NoError(t, err)
	}
	_, _, _, err = a.continuation(1, nil, false)
	require.Error(t, err)
	var dos *DenialOfServiceError
	require.ErrorAs(t, err, &dos)
	require.False(t, a.InProgress(), "the flooded block must be abandoned")
}

func TestHeaderBlockPreservesPriorityThroughContinuation(t *testing.T) {
	var a headerBlockAssembler
	pr := &PriorityUpdated{streamID: 1, Weight: 16}
	_, _, err := a.startHeaders(1, []byte("a"), false, false, pr)
	require.NoError(t, err)

	_, done, blk, err := a.continuation(1, []byte("b"), true)
	require.NoError(t, err)
	require.True(t, done)
	require.Same(t, pr, blk.priority)
}
