package framer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSingleRecord(t *testing.T) {
	f := New(0)
	records, err := f.Feed([]byte("hello\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hello", string(records[0]))
}

func TestFeedAcrossChunks(t *testing.T) {
	f := New(0)
	records, err := f.Feed([]byte("hel"))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = f.Feed([]byte("lo\nworl"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hello", string(records[0]))

	records, err = f.Feed([]byte("d\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "world", string(records[0]))
}

func TestFeedMultipleRecordsOneChunk(t *testing.T) {
	f := New(0)
	records, err := f.Feed([]byte("a\nb\nc\n"))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{string(records[0]), string(records[1]), string(records[2])})
}

func TestFeedRecordTooLarge(t *testing.T) {
	f := New(8)
	_, err := f.Feed([]byte("123456789\n"))
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}

func TestFeedReclaimsConsumedPrefix(t *testing.T) {
	f := New(2 * reclaimThreshold)
	big := bytes.Repeat([]byte("x"), reclaimThreshold+10)
	_, err := f.Feed(append(big, '\n'))
	require.NoError(t, err)
	assert.Equal(t, 0, f.consumed, "consumed offset should reclaim back to 0 after a large record")

	records, err := f.Feed([]byte("tail\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tail", string(records[0]))
}

func TestFrameAppendsNewline(t *testing.T) {
	assert.Equal(t, []byte("abc\n"), Frame([]byte("abc")))
}

func TestRoundTripFrameFeed(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"type":"move","position":{"x":1,"y":2,"z":3}}`),
		[]byte(`{"type":"chat","message":"hi"}`),
		[]byte(`{}`),
	}
	f := New(0)
	for _, p := range payloads {
		records, err := f.Feed(Frame(p))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, p, records[0])
	}
}
