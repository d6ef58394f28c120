package sky

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func covered(tiles []uint64, p Position) bool {
	pos := PositionIndex(p)
	for _, tile := range tiles {
		if Contains(tile, pos) {
			return true
		}
	}
	return false
}

func newTestTiler(t *testing.T) *Tiler {
	t.Helper()
	tl, err := NewTiler(DefaultLevel, 0)
	require.NoError(t, err)
	return tl
}

func TestNewTilerLevel(t *testing.T) {
	t.Parallel()
	_, err := NewTiler(-1, 0)
	assert.Error(t, err)
	_, err = NewTiler(31, 0)
	assert.Error(t, err)
	tl, err := NewTiler(12, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, tl.Level())
}

func TestTilesForBox(t *testing.T) {
	t.Parallel()
	tl := newTestTiler(t)
	box, err := NewBox([2]float64{9, 11}, [2]float64{9, 11})
	require.NoError(t, err)

	tiles, err := tl.TilesForBox(box)
	require.NoError(t, err)
	require.NotEmpty(t, tiles)

	assert.True(t, sort.SliceIsSorted(tiles, func(i, j int) bool { return tiles[i] < tiles[j] }))
	seen := map[uint64]bool{}
	for _, tile := range tiles {
		assert.False(t, seen[tile], "duplicate tile %s", TileToken(tile))
		seen[tile] = true
		assert.Equal(t, DefaultLevel, TileLevel(tile))
	}

	assert.True(t, covered(tiles, Position{RA: 10, Dec: 10}))
	assert.True(t, covered(tiles, Position{RA: 10.5, Dec: 10.5}))
	assert.False(t, covered(tiles, Position{RA: 90, Dec: 10}))
}

func TestTilesForBoxWrap(t *testing.T) {
	t.Parallel()
	tl := newTestTiler(t)
	box, err := NewBox([2]float64{358, 2}, [2]float64{-1, 1})
	require.NoError(t, err)

	tiles, err := tl.TilesForBox(box)
	require.NoError(t, err)
	assert.True(t, covered(tiles, Position{RA: 0.5, Dec: 0}))
	assert.True(t, covered(tiles, Position{RA: 359.5, Dec: 0}))
	assert.False(t, covered(tiles, Position{RA: 180, Dec: 0}))
	assert.False(t, covered(tiles, Position{RA: 10, Dec: 0}))
}

// 网格采样检查：区域内（含边界）任一点都必须落在某个切片内
func TestTilesForBoxNeverUndercovers(t *testing.T) {
	t.Parallel()
	tl := newTestTiler(t)
	boxes := []Box{
		{RAMin: 9, RAMax: 11, DecMin: 9, DecMax: 11},
		{RAMin: 358, RAMax: 2, DecMin: -3, DecMax: 2},
		{RAMin: 170, RAMax: 190, DecMin: -60, DecMax: -50},
		{RAMin: 300, RAMax: 320, DecMin: 80, DecMax: 90},
	}
	for _, b := range boxes {
		tiles, err := tl.TilesForBox(b)
		require.NoError(t, err)
		width := NormalizeRA(b.RAMax - b.RAMin)
		for i := 0; i <= 20; i++ {
			for j := 0; j <= 20; j++ {
				p := Position{
					RA:  NormalizeRA(b.RAMin + width*float64(i)/20),
					Dec: b.DecMin + (b.DecMax-b.DecMin)*float64(j)/20,
				}
				assert.True(t, covered(tiles, p), "box %+v misses %+v", b, p)
			}
		}
	}
}

func TestTilesForBoxDegenerate(t *testing.T) {
	t.Parallel()
	tl := newTestTiler(t)
	for _, b := range []Box{
		{RAMin: 10, RAMax: 10, DecMin: 0, DecMax: 5},
		{RAMin: 10, RAMax: 20, DecMin: 5, DecMax: 5},
		{RAMin: 10, RAMax: 20, DecMin: 5, DecMax: 95},
		{RAMin: -1, RAMax: 20, DecMin: 0, DecMax: 5},
	} {
		_, err := tl.TilesForBox(b)
		assert.ErrorIs(t, err, ErrInvalidRegion, "box %+v", b)
	}
}

func TestTilesForWideRegions(t *testing.T) {
	t.Parallel()
	tl := newTestTiler(t)
	boxes := map[string]Box{
		"60x60":     {RAMin: 0, RAMax: 60, DecMin: 0, DecMax: 60},
		"fov 60":    {RAMin: 330, RAMax: 30, DecMin: -30, DecMax: 30},
		"whole sky": {RAMin: 0, RAMax: 360, DecMin: -90, DecMax: 90},
	}
	for name, b := range boxes {
		t.Run(name, func(t *testing.T) {
			tiles, err := tl.TilesForBox(b)
			require.NoError(t, err)
			require.NotEmpty(t, tiles)
			assert.LessOrEqual(t, len(tiles), DefaultMaxTiles)
			assert.True(t, sort.SliceIsSorted(tiles, func(i, j int) bool { return tiles[i] < tiles[j] }))
			level := TileLevel(tiles[0])
			assert.Less(t, level, DefaultLevel)
			for _, tile := range tiles {
				assert.Equal(t, level, TileLevel(tile))
			}
			for _, c := range b.Corners() {
				assert.True(t, covered(tiles, c), "corner %+v", c)
			}
			mid := Position{RA: NormalizeRA(b.RAMin + 1), Dec: (b.DecMin + b.DecMax) / 2}
			assert.True(t, covered(tiles, mid), "inner %+v", mid)
		})
	}

	t.Run("whole sky at level 0", func(t *testing.T) {
		t.Parallel()
		small, err := NewTiler(DefaultLevel, 1)
		require.NoError(t, err)
		tiles, err := small.TilesForBox(Box{RAMin: 0, RAMax: 360, DecMin: -90, DecMax: 90})
		require.NoError(t, err)
		assert.Len(t, tiles, 6)
		assert.True(t, covered(tiles, Position{RA: 123, Dec: -45}))
	})

	t.Run("small region keeps level", func(t *testing.T) {
		t.Parallel()
		tiles, err := tl.TilesForBox(Box{RAMin: 9, RAMax: 11, DecMin: 9, DecMax: 11})
		require.NoError(t, err)
		for _, tile := range tiles {
			assert.Equal(t, DefaultLevel, TileLevel(tile))
		}
	})
}

func TestTilesForPolygonWide(t *testing.T) {
	t.Parallel()
	tl := newTestTiler(t)
	tiles, err := tl.TilesForPolygon([]Position{{RA: 0, Dec: 0}, {RA: 60, Dec: 0}, {RA: 60, Dec: 60}, {RA: 0, Dec: 60}})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(tiles), DefaultMaxTiles)
	assert.True(t, covered(tiles, Position{RA: 30, Dec: 30}))
	assert.False(t, covered(tiles, Position{RA: 200, Dec: -60}))
}

func TestTilesForPolygon(t *testing.T) {
	t.Parallel()
	tl := newTestTiler(t)
	ordered := []Position{{RA: 9, Dec: 9}, {RA: 11, Dec: 9}, {RA: 11, Dec: 11}, {RA: 9, Dec: 11}}
	shuffled := []Position{{RA: 11, Dec: 11}, {RA: 9, Dec: 9}, {RA: 9, Dec: 11}, {RA: 11, Dec: 9}}

	a, err := tl.TilesForPolygon(ordered)
	require.NoError(t, err)
	b, err := tl.TilesForPolygon(shuffled)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, covered(a, Position{RA: 10, Dec: 10}))
	assert.False(t, covered(a, Position{RA: 90, Dec: 10}))

	t.Run("wrap", func(t *testing.T) {
		tiles, err := tl.TilesForPolygon([]Position{{RA: 358, Dec: -1}, {RA: 2, Dec: -1}, {RA: 2, Dec: 1}, {RA: 358, Dec: 1}})
		require.NoError(t, err)
		assert.True(t, covered(tiles, Position{RA: 0.5, Dec: 0}))
		assert.False(t, covered(tiles, Position{RA: 180, Dec: 0}))
	})

	t.Run("too few distinct corners", func(t *testing.T) {
		_, err := tl.TilesForPolygon([]Position{{RA: 1, Dec: 1}, {RA: 2, Dec: 2}, {RA: 1, Dec: 1}})
		assert.ErrorIs(t, err, ErrInvalidRegion)
	})

	t.Run("corner out of range", func(t *testing.T) {
		_, err := tl.TilesForPolygon([]Position{{RA: 1, Dec: 1}, {RA: 2, Dec: 95}, {RA: 3, Dec: 1}})
		assert.ErrorIs(t, err, ErrInvalidRegion)
	})
}

func TestTileContainment(t *testing.T) {
	t.Parallel()
	tl := newTestTiler(t)
	box, err := NewBox([2]float64{40, 42}, [2]float64{-30, -28})
	require.NoError(t, err)
	tiles, err := tl.TilesForBox(box)
	require.NoError(t, err)
	for _, tile := range tiles {
		c := TileCenter(tile)
		assert.True(t, Contains(tile, PositionIndex(c)), "centre of %s", TileToken(tile))
		lo, hi := TileRange(tile)
		assert.Less(t, lo, hi)
	}
}

func TestBoxCorners(t *testing.T) {
	t.Parallel()
	b := Box{RAMin: 358, RAMax: 2, DecMin: -1, DecMax: 1}
	assert.Equal(t, []Position{{358, -1}, {2, -1}, {2, 1}, {358, 1}}, b.Corners())
	assert.True(t, b.Contains(Position{RA: 0.5, Dec: 0}))
	assert.False(t, b.Contains(Position{RA: 5, Dec: 0}))
}

func TestTileOf(t *testing.T) {
	t.Parallel()
	p, err := NewPosition(123.4, -56.7)
	require.NoError(t, err)
	tile := TileOf(p, DefaultLevel)
	assert.Equal(t, DefaultLevel, TileLevel(tile))
	assert.True(t, Contains(tile, PositionIndex(p)))

	tl := newTestTiler(t)
	box, err := NewBox([2]float64{123, 124}, [2]float64{-57, -56})
	require.NoError(t, err)
	tiles, err := tl.TilesForBox(box)
	require.NoError(t, err)
	assert.Contains(t, tiles, tile)
}
