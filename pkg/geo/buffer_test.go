package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferLine_StraightLine(t *testing.T) {
	line, err := NewLineString([]XY{{0, 0}, {100, 0}})
	require.NoError(t, err)

	corridor := BufferLine(line, 10)

	// square caps extend the rectangle by the radius at both ends
	assert.InDelta(t, 2*(120+20), corridor.Length(), 1e-6)
	assert.True(t, corridor.Contains(XY{50, 5}))
	assert.True(t, corridor.Contains(XY{50, -9.9}))
	assert.True(t, corridor.Contains(XY{-5, 0}), "cap extends past the start")
	assert.True(t, corridor.Contains(XY{105, 0}), "cap extends past the end")
	assert.False(t, corridor.Contains(XY{50, 15}))
	assert.False(t, corridor.Contains(XY{-15, 0}))
	assert.False(t, corridor.Contains(XY{115, 0}))
}

func TestBufferLine_RightAngle(t *testing.T) {
	line, err := NewLineString([]XY{{0, 0}, {100, 0}, {100, 100}})
	require.NoError(t, err)

	corridor := BufferLine(line, 10)

	assert.True(t, corridor.Contains(XY{50, 0}))
	assert.True(t, corridor.Contains(XY{100, 50}))
	// outer corner of the turn is mitered, the point stays covered
	assert.True(t, corridor.Contains(XY{105, -5}))
	// inner side of the turn
	assert.False(t, corridor.Contains(XY{80, 20}))
}

func TestBufferLine_DuplicateCoordinates(t *testing.T) {
	line, err := NewLineString([]XY{{0, 0}, {0, 0}, {100, 0}})
	require.NoError(t, err)

	corridor := BufferLine(line, 10)
	assert.True(t, corridor.Contains(XY{50, 0}))
}

func TestBufferLine_AllSamplesIdentical(t *testing.T) {
	line, err := NewLineString([]XY{{5, 5}, {5, 5}})
	require.NoError(t, err)

	corridor := BufferLine(line, 10)
	assert.True(t, corridor.Contains(XY{5, 5}))
	assert.True(t, corridor.Contains(XY{12, 12}))
	assert.False(t, corridor.Contains(XY{20, 5}))
}
