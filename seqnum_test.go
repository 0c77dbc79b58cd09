package trellis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceLessBasic(t *testing.T) {
	assert.True(t, sequenceLess(0, 1))
	assert.True(t, sequenceLess(1, 2))
	assert.False(t, sequenceLess(1, 1))
	assert.False(t, sequenceLess(2, 1))
}

func TestSequenceLessWrap(t *testing.T) {
	var max SequenceID = 0xffffffff
	assert.True(t, sequenceLess(max, 0))
	assert.False(t, sequenceLess(0, max))
	assert.True(t, sequenceLess(max-1, max))
}

func TestSequenceLessTotalOrderOnWindow(t *testing.T) {
	const base SequenceID = 1 << 20
	for offset := SequenceID(1); offset <= 1<<20; offset <<= 1 {
		a, b := base, base+offset
		assert.True(t, sequenceLess(a, b), "offset %d", offset)
		assert.False(t, sequenceLess(b, a), "offset %d", offset)
		assert.True(t, sequenceGreater(b, a), "offset %d", offset)
	}
}

func TestSequenceLessOrEqual(t *testing.T) {
	assert.True(t, sequenceLessOrEqual(5, 5))
	assert.True(t, sequenceLessOrEqual(5, 6))
	assert.False(t, sequenceLessOrEqual(6, 5))
}
