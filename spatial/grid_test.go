package spatial

import (
	"testing"

	"github.com/aukilabs/teiwaz/geometry"
	"github.com/aukilabs/teiwaz/models"
	"github.com/stretchr/testify/require"
)

func TestGridCreation(t *testing.T) {
	grid := NewGridIndex(0)
	require.Equal(t, DefaultCellSize, grid.CellSize())
	require.Equal(t, 0, grid.Count())

	grid = NewGridIndex(-1)
	require.Equal(t, DefaultCellSize, grid.CellSize())

	grid = NewGridIndex(2.5)
	require.Equal(t, 2.5, grid.CellSize())
}

func TestGridInsertAndQuery(t *testing.T) {
	grid := NewGridIndex(5)

	a := &models.Obstacle{ID: "a", Bounds: geometry.NewRect(0, 1, 0, 1)}
	b := &models.Obstacle{ID: "b", Bounds: geometry.NewRect(12, 13, 12, 13)}
	grid.Insert(a)
	grid.Insert(b)
	require.Equal(t, 2, grid.Count())

	t.Run("query returns obstacles in the covered range", func(t *testing.T) {
		got := grid.Query(geometry.NewRect(0, 2, 0, 2))
		require.Len(t, got, 1)
		require.Equal(t, "a", got[0].ID)
	})

	t.Run("query covering all cells returns everything", func(t *testing.T) {
		got := grid.Query(geometry.NewRect(-1, 14, -1, 14))
		require.Len(t, got, 2)
	})

	t.Run("query far away returns nothing", func(t *testing.T) {
		require.Empty(t, grid.Query(geometry.NewRect(100, 101, 100, 101)))
	})
}

func TestGridQueryIsSuperset(t *testing.T) {
	// An obstacle spanning multiple cells must come back for a query range
	// touching any of them, even where the rectangles themselves are
	// disjoint. The broad phase over-approximates; exactness is the exact
	// test's job.
	grid := NewGridIndex(5)
	grid.Insert(&models.Obstacle{ID: "wide", Bounds: geometry.NewRect(0, 12, 0, 1)})

	got := grid.Query(geometry.NewRect(11, 11.5, 4, 4.5))
	require.Len(t, got, 1)
	require.Equal(t, "wide", got[0].ID)
}

func TestGridQueryDeduplicates(t *testing.T) {
	grid := NewGridIndex(5)
	grid.Insert(&models.Obstacle{ID: "wide", Bounds: geometry.NewRect(0, 22, 0, 22)})

	got := grid.Query(geometry.NewRect(0, 22, 0, 22))
	require.Len(t, got, 1)
}

func TestGridQueryOrderIsInsertionOrder(t *testing.T) {
	grid := NewGridIndex(5)
	bounds := geometry.NewRect(0, 3, 0, 3)
	grid.Insert(&models.Obstacle{ID: "first", Bounds: bounds})
	grid.Insert(&models.Obstacle{ID: "second", Bounds: bounds})
	grid.Insert(&models.Obstacle{ID: "third", Bounds: bounds})

	for i := 0; i < 10; i++ {
		got := grid.Query(bounds)
		require.Len(t, got, 3)
		require.Equal(t, "first", got[0].ID)
		require.Equal(t, "second", got[1].ID)
		require.Equal(t, "third", got[2].ID)
	}
}

func TestGridQueryNegativeCoordinates(t *testing.T) {
	grid := NewGridIndex(5)
	grid.Insert(&models.Obstacle{ID: "neg", Bounds: geometry.NewRect(-7, -6, -7, -6)})

	got := grid.Query(geometry.NewRect(-8, -5, -8, -5))
	require.Len(t, got, 1)
	require.Equal(t, "neg", got[0].ID)
}

func TestGridQueryRadius(t *testing.T) {
	grid := NewGridIndex(5)
	grid.Insert(&models.Obstacle{ID: "near", Bounds: geometry.NewRect(3, 4, 0, 1)})
	grid.Insert(&models.Obstacle{ID: "far", Bounds: geometry.NewRect(40, 41, 0, 1)})

	got := grid.QueryRadius(geometry.NewPoint(0, 0), 6)
	require.Len(t, got, 1)
	require.Equal(t, "near", got[0].ID)
}

func TestGridClear(t *testing.T) {
	grid := NewGridIndex(5)
	grid.Insert(&models.Obstacle{ID: "a", Bounds: geometry.NewRect(0, 1, 0, 1)})
	require.Equal(t, 1, grid.Count())

	grid.Clear()
	require.Equal(t, 0, grid.Count())
	require.Empty(t, grid.Query(geometry.NewRect(0, 1, 0, 1)))
}
