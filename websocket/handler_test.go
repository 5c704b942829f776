package websocket

import (
	"testing"

	"github.com/aukilabs/teiwaz/featureflag"
	"github.com/aukilabs/teiwaz/geometry"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func setTestView(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	sendTestMsg(t, conn, MsgTypeViewSetRequest, identityViewSetRequest(1))

	msg := receiveTestMsg(t, conn)
	require.Equal(t, MsgTypeViewSetResponse, msg.Type)

	var res ViewSetResponse
	require.NoError(t, msg.DataTo(&res))
	require.Equal(t, uint32(1), res.RequestID)
	require.NotEmpty(t, res.ViewUUID)
	return res.ViewUUID
}

func TestHandleViewSet(t *testing.T) {
	conn, close := NewTestingEnv(t, newTestHandler())
	defer close()

	setTestView(t, conn)
}

func TestHandlePlaceWithoutView(t *testing.T) {
	conn, close := NewTestingEnv(t, newTestHandler())
	defer close()

	sendTestMsg(t, conn, MsgTypePlaceRequest, PlaceRequest{
		RequestID: 7,
		Anchor:    PointPayload{},
		Intended:  PointPayload{X: 10},
	})

	msg := receiveTestMsg(t, conn)
	require.Equal(t, MsgTypeError, msg.Type)

	var res ErrorResponse
	require.NoError(t, msg.DataTo(&res))
	require.Equal(t, uint32(7), res.RequestID)
	require.Equal(t, ErrTypeViewNotSet, res.Code)
}

func TestHandlePlace(t *testing.T) {
	t.Run("uncontested placement returns the intended position", func(t *testing.T) {
		conn, close := NewTestingEnv(t, newTestHandler())
		defer close()

		setTestView(t, conn)
		sendTestMsg(t, conn, MsgTypeObstacleSnapshot, ObstacleSnapshot{})

		sendTestMsg(t, conn, MsgTypePlaceRequest, PlaceRequest{
			RequestID: 2,
			Intended:  PointPayload{X: 10},
		})

		msg := receiveTestMsg(t, conn)
		require.Equal(t, MsgTypePlaceResponse, msg.Type)

		var res PlaceResponse
		require.NoError(t, msg.DataTo(&res))
		require.Equal(t, uint32(2), res.RequestID)
		require.True(t, res.Found)
		require.False(t, res.Fallback)
		require.Equal(t, PointPayload{X: 10}, res.Position)
	})

	t.Run("blocked placement moves off the obstacle", func(t *testing.T) {
		conn, close := NewTestingEnv(t, newTestHandler())
		defer close()

		setTestView(t, conn)
		sendTestMsg(t, conn, MsgTypeObstacleSnapshot, ObstacleSnapshot{
			Obstacles: []ObstaclePayload{
				testObstacle("wall", geometry.NewRect(8, 12, -2, 2)),
			},
		})

		sendTestMsg(t, conn, MsgTypePlaceRequest, PlaceRequest{
			RequestID: 3,
			Intended:  PointPayload{X: 10},
		})

		var res PlaceResponse
		require.NoError(t, receiveTestMsg(t, conn).DataTo(&res))
		require.True(t, res.Found)
		require.NotEqual(t, PointPayload{X: 10}, res.Position)
	})

	t.Run("excluded obstacles are ignored", func(t *testing.T) {
		conn, close := NewTestingEnv(t, newTestHandler())
		defer close()

		setTestView(t, conn)
		sendTestMsg(t, conn, MsgTypeObstacleSnapshot, ObstacleSnapshot{
			Obstacles: []ObstaclePayload{
				testObstacle("wall", geometry.NewRect(8, 12, -2, 2)),
			},
			ExcludedIDs: []string{"wall"},
		})

		sendTestMsg(t, conn, MsgTypePlaceRequest, PlaceRequest{
			RequestID: 4,
			Intended:  PointPayload{X: 10},
		})

		var res PlaceResponse
		require.NoError(t, receiveTestMsg(t, conn).DataTo(&res))
		require.True(t, res.Found)
		require.Equal(t, PointPayload{X: 10}, res.Position)
	})

	t.Run("fully blocked placement falls back to least overlap", func(t *testing.T) {
		conn, close := NewTestingEnv(t, newTestHandler())
		defer close()

		setTestView(t, conn)
		sendTestMsg(t, conn, MsgTypeObstacleSnapshot, ObstacleSnapshot{
			Obstacles: []ObstaclePayload{
				testObstacle("everything", geometry.NewRect(-100, 100, -100, 100)),
			},
		})

		sendTestMsg(t, conn, MsgTypePlaceRequest, PlaceRequest{
			RequestID: 5,
			Intended:  PointPayload{X: 10, Y: 1},
		})

		var res PlaceResponse
		require.NoError(t, receiveTestMsg(t, conn).DataTo(&res))
		require.False(t, res.Found)
		require.True(t, res.Fallback)
		require.Greater(t, res.ResidualOverlap, 0.0)
	})
}

func TestHandleTagCommit(t *testing.T) {
	conn, close := NewTestingEnv(t, newTestHandler())
	defer close()

	setTestView(t, conn)
	sendTestMsg(t, conn, MsgTypeObstacleSnapshot, ObstacleSnapshot{})

	place := func(requestID uint32) PlaceResponse {
		sendTestMsg(t, conn, MsgTypePlaceRequest, PlaceRequest{
			RequestID: requestID,
			Intended:  PointPayload{X: 10},
		})

		var res PlaceResponse
		require.NoError(t, receiveTestMsg(t, conn).DataTo(&res))
		require.True(t, res.Found)
		return res
	}

	first := place(1)
	require.Equal(t, PointPayload{X: 10}, first.Position)

	sendTestMsg(t, conn, MsgTypeTagCommit, TagCommit{
		Bounds: RectToPayload(geometry.RectFromCenter(geometry.NewPoint(10, 0), 1, 0.5)),
	})

	second := place(2)
	require.NotEqual(t, first.Position, second.Position)
}

func TestHandleRefine(t *testing.T) {
	t.Run("measured size passes where the estimate failed", func(t *testing.T) {
		conn, close := NewTestingEnv(t, newTestHandler())
		defer close()

		setTestView(t, conn)
		sendTestMsg(t, conn, MsgTypeObstacleSnapshot, ObstacleSnapshot{
			Obstacles: []ObstaclePayload{
				testObstacle("edge", geometry.NewRect(10.4, 11, -1, 1)),
			},
		})

		sendTestMsg(t, conn, MsgTypeRefineRequest, RefineRequest{
			RequestID: 6,
			Intended:  PointPayload{X: 10},
			Bounds:    RectToPayload(geometry.RectFromCenter(geometry.NewPoint(10, 0), 0.2, 0.2)),
		})

		msg := receiveTestMsg(t, conn)
		require.Equal(t, MsgTypeRefineResponse, msg.Type)

		var res RefineResponse
		require.NoError(t, msg.DataTo(&res))
		require.True(t, res.Found)
		require.Equal(t, PointPayload{X: 10}, res.Position)
	})

	t.Run("disabled refine echoes the intended position", func(t *testing.T) {
		conn, close := NewTestingEnv(t, newTestHandler(string(featureflag.FlagDisableActualSizeRefine)))
		defer close()

		setTestView(t, conn)
		sendTestMsg(t, conn, MsgTypeObstacleSnapshot, ObstacleSnapshot{
			Obstacles: []ObstaclePayload{
				testObstacle("wall", geometry.NewRect(8, 12, -2, 2)),
			},
		})

		sendTestMsg(t, conn, MsgTypeRefineRequest, RefineRequest{
			RequestID: 7,
			Intended:  PointPayload{X: 10},
			Bounds:    RectToPayload(geometry.RectFromCenter(geometry.NewPoint(10, 0), 1, 0.5)),
		})

		var res RefineResponse
		require.NoError(t, receiveTestMsg(t, conn).DataTo(&res))
		require.True(t, res.Found)
		require.Equal(t, PointPayload{X: 10}, res.Position)
	})
}

func TestHandleRevalidate(t *testing.T) {
	slab := geometry.NewRect(0, 30, -1, 1)

	tag := TagPayload{
		ID:        "tag-1",
		ElementID: "element-1",
		Anchor:    PointPayload{X: 10, Y: -3},
		Head:      PointPayload{X: 10},
		Bounds:    RectToPayload(geometry.RectFromCenter(geometry.NewPoint(10, 0), 1, 0.5)),
		HasLeader: true,
	}

	t.Run("blocked tag gets a proposal", func(t *testing.T) {
		conn, close := NewTestingEnv(t, newTestHandler())
		defer close()

		setTestView(t, conn)
		sendTestMsg(t, conn, MsgTypeObstacleSnapshot, ObstacleSnapshot{
			Obstacles: []ObstaclePayload{
				testObstacle("slab", slab),
				testObstacle(tag.ID, tag.Bounds.Rect()),
			},
		})

		sendTestMsg(t, conn, MsgTypeRevalidateRequest, RevalidateRequest{
			RequestID: 8,
			Tags:      []TagPayload{tag},
		})

		msg := receiveTestMsg(t, conn)
		require.Equal(t, MsgTypeRevalidateResponse, msg.Type)

		var res RevalidateResponse
		require.NoError(t, msg.DataTo(&res))
		require.Equal(t, uint32(8), res.RequestID)
		require.Len(t, res.Proposals, 1)

		p := res.Proposals[0]
		require.Equal(t, tag.ID, p.TagID)
		require.False(t, p.Fallback)
		require.Equal(t, 0.0, geometry.RectFromCenter(p.Head.Point(), 1, 0.5).OverlapArea(slab))
	})

	t.Run("disabled revalidation is rejected", func(t *testing.T) {
		conn, close := NewTestingEnv(t, newTestHandler(string(featureflag.FlagDisableBatchRevalidation)))
		defer close()

		setTestView(t, conn)
		sendTestMsg(t, conn, MsgTypeRevalidateRequest, RevalidateRequest{RequestID: 9})

		msg := receiveTestMsg(t, conn)
		require.Equal(t, MsgTypeError, msg.Type)

		var res ErrorResponse
		require.NoError(t, msg.DataTo(&res))
		require.Equal(t, uint32(9), res.RequestID)
		require.Equal(t, ErrTypeDisabled, res.Code)
	})
}
