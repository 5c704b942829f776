package models

import (
	"testing"

	"github.com/aukilabs/teiwaz/geometry"
	"github.com/stretchr/testify/require"
)

func TestObstacleStore(t *testing.T) {
	var store ObstacleStore
	require.Equal(t, 0, store.Count())

	t.Run("set and remove", func(t *testing.T) {
		store.Set(Obstacle{ID: "a", Bounds: geometry.NewRect(0, 1, 0, 1)})
		store.Set(Obstacle{ID: "b", Bounds: geometry.NewRect(2, 3, 2, 3)})
		require.Equal(t, 2, store.Count())

		store.Remove("a")
		require.Equal(t, 1, store.Count())

		visible := store.VisibleObstacles()
		require.Len(t, visible, 1)
		require.Equal(t, "b", visible[0].ID)
	})

	t.Run("replace swaps the whole snapshot", func(t *testing.T) {
		store.Replace([]Obstacle{
			{ID: "c", Bounds: geometry.NewRect(0, 1, 0, 1)},
		})
		require.Equal(t, 1, store.Count())

		visible := store.VisibleObstacles()
		require.Len(t, visible, 1)
		require.Equal(t, "c", visible[0].ID)

		store.Replace(nil)
		require.Equal(t, 0, store.Count())
	})
}
