package progress

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 1000))
	assert.Equal(t, 0, Percent(9, 1000))
	assert.Equal(t, 50, Percent(500, 1000))
	assert.Equal(t, 100, Percent(1000, 1000))
	assert.Equal(t, 100, Percent(2000, 1000))
	assert.Equal(t, -1, Percent(10, 0))
	assert.Equal(t, -1, Percent(10, -1))
}

func TestReader_KnownTotalStrictlyIncreasing(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)

	var reported []int

	pr := NewReader(iotest.OneByteReader(bytes.NewReader(data)), int64(len(data)), 0, func(percent int, _ int64) {
		reported = append(reported, percent)
	})

	n, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, n)
	assert.EqualValues(t, 1000, pr.BytesRead())

	require.Len(t, reported, 100)

	for i := 1; i < len(reported); i++ {
		assert.Greater(t, reported[i], reported[i-1])
	}

	assert.Equal(t, 100, reported[len(reported)-1])
}

func TestReader_UnknownTotalReportsByInterval(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100)

	var calls []int64

	pr := NewReader(iotest.OneByteReader(bytes.NewReader(data)), -1, 25, func(percent int, read int64) {
		assert.Equal(t, -1, percent)
		calls = append(calls, read)
	})

	_, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)
	assert.Equal(t, []int64{25, 50, 75, 100}, calls)
}

func TestReader_NilCallback(t *testing.T) {
	pr := NewReader(bytes.NewReader([]byte("abc")), 3, 0, nil)

	_, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)
}
