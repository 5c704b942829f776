package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/teiwaz/featureflag"
	"github.com/aukilabs/teiwaz/models"
	"github.com/aukilabs/teiwaz/placement"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// PlacementHandler serves one placement run: the connected client sets a
// view, uploads an obstacle snapshot, then issues place, refine, commit and
// revalidate requests. All engine state is scoped to the connection and
// discarded with it.
type PlacementHandler struct {
	ClientIdleTimeout time.Duration

	// Engine settings, already converted to the model's internal unit.
	Gap             float64
	EstimatedWidth  float64
	EstimatedHeight float64
	CellSize        float64
	MinLeaderLength float64

	FeatureFlags featureflag.FeatureFlag

	conn      *websocket.Conn
	view      *models.View
	detector  *placement.Detector
	obstacles models.ObstacleStore
}

func (h *PlacementHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn
}

func (h *PlacementHandler) HandleViewSet(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req ViewSetRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	basis := req.Basis()
	h.view = models.NewView(basis)
	h.detector = placement.NewDetector(h.detectorConfig())
	h.obstacles.Replace(nil)

	if basis.IsDegenerate() {
		logs.WithTag("view_uuid", h.view.UUID).
			Warn("view basis is degenerate, searches will be no-ops")
	}

	h.respond(respond, MsgTypeViewSetResponse, ViewSetResponse{
		RequestID: req.RequestID,
		ViewUUID:  h.view.UUID,
	})
	return nil
}

func (h *PlacementHandler) HandleObstacleSnapshot(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req ObstacleSnapshot
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.detector == nil {
		h.sendError(respond, 0, ErrTypeViewNotSet, "a view must be set before uploading obstacles")
		return nil
	}

	excluded := make(map[string]struct{}, len(req.ExcludedIDs))
	for _, id := range req.ExcludedIDs {
		excluded[id] = struct{}{}
	}

	// Exclusion is honored before the snapshot reaches the engine, so batch
	// revalidation detectors built from the store never see excluded
	// obstacles either.
	obstacles := make([]models.Obstacle, 0, len(req.Obstacles))
	for _, o := range req.Obstacles {
		if _, ok := excluded[o.ID]; ok {
			continue
		}
		obstacles = append(obstacles, o.Obstacle())
	}
	h.obstacles.Replace(obstacles)

	h.detector.CollectObstacles(&h.obstacles, nil)
	return nil
}

func (h *PlacementHandler) HandlePlace(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req PlaceRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.detector == nil {
		h.sendError(respond, req.RequestID, ErrTypeViewNotSet, "a view must be set before placing tags")
		return nil
	}

	anchor, intended := req.Anchor.Point(), req.Intended.Point()

	res := PlaceResponse{RequestID: req.RequestID}
	pos, found := h.detector.FindValidPosition(anchor, intended)
	res.Position = PointToPayload(pos)
	res.Found = found

	if !found && !h.view.Basis.IsDegenerate() &&
		!h.FeatureFlags.IsSet(featureflag.FlagDisableLeastOverlapFallback) {
		r0, rMax := placement.FallbackRadiusBounds(anchor, intended, 0)
		fallback, residual := h.detector.SelectLeastOverlapCandidate(anchor, h.EstimatedWidth, h.EstimatedHeight, r0, rMax)
		res.Position = PointToPayload(fallback)
		res.Fallback = true
		res.ResidualOverlap = residual
	}

	h.respond(respond, MsgTypePlaceResponse, res)
	return nil
}

func (h *PlacementHandler) HandleRefine(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req RefineRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.detector == nil {
		h.sendError(respond, req.RequestID, ErrTypeViewNotSet, "a view must be set before refining positions")
		return nil
	}

	anchor, intended := req.Anchor.Point(), req.Intended.Point()
	bounds := req.Bounds.Rect()

	res := RefineResponse{RequestID: req.RequestID}

	if h.FeatureFlags.IsSet(featureflag.FlagDisableActualSizeRefine) {
		res.Position = req.Intended
		res.Found = true
		h.respond(respond, MsgTypeRefineResponse, res)
		return nil
	}

	pos, found := h.detector.FindValidPositionWithActualSize(anchor, intended, bounds, req.MinDistanceFromAnchor)
	res.Position = PointToPayload(pos)
	res.Found = found

	if !found && !h.view.Basis.IsDegenerate() &&
		!h.FeatureFlags.IsSet(featureflag.FlagDisableLeastOverlapFallback) {
		r0, rMax := placement.FallbackRadiusBounds(anchor, intended, req.MinDistanceFromAnchor)
		fallback, residual := h.detector.SelectLeastOverlapCandidate(anchor, bounds.Width(), bounds.Height(), r0, rMax)
		res.Position = PointToPayload(fallback)
		res.Fallback = true
		res.ResidualOverlap = residual
	}

	h.respond(respond, MsgTypeRefineResponse, res)
	return nil
}

func (h *PlacementHandler) HandleTagCommit(ctx context.Context, msg Msg) error {
	var req TagCommit
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.detector == nil {
		return errors.New("tag committed before a view was set").
			WithType(ErrTypeViewNotSet)
	}

	h.detector.AddNewTag(req.Bounds.Rect())
	return nil
}

func (h *PlacementHandler) HandleRevalidate(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req RevalidateRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.view == nil {
		h.sendError(respond, req.RequestID, ErrTypeViewNotSet, "a view must be set before revalidating tags")
		return nil
	}

	if h.FeatureFlags.IsSet(featureflag.FlagDisableBatchRevalidation) {
		h.sendError(respond, req.RequestID, ErrTypeDisabled, "batch revalidation is disabled")
		return nil
	}

	tags := make([]models.Tag, 0, len(req.Tags))
	for _, t := range req.Tags {
		tags = append(tags, t.Tag())
	}

	revalidator := placement.Revalidator{
		Provider:        &h.obstacles,
		Config:          h.detectorConfig(),
		MinLeaderLength: h.MinLeaderLength,
		Flags:           h.FeatureFlags,
	}
	proposals := revalidator.Run(tags)

	payloads := make([]ProposalPayload, len(proposals))
	for i, p := range proposals {
		payloads[i] = ProposalToPayload(p)
	}

	h.respond(respond, MsgTypeRevalidateResponse, RevalidateResponse{
		RequestID: req.RequestID,
		Proposals: payloads,
	})
	return nil
}

func (h *PlacementHandler) HandleDisconnect(err error) {
}

func (h *PlacementHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		var b []byte
		if err := websocket.Message.Receive(h.conn, &b); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := json.Unmarshal(b, &msg); err != nil {
			return Msg{}, len(b), errors.New("decoding message failed").
				WithType(ErrTypeInvalidMsg).
				Wrap(err)
		}
		return msg, len(b), nil
	}
}

func (h *PlacementHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		b, err := json.Marshal(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(h.conn, b); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}

func (h *PlacementHandler) Close() {
}

func (h *PlacementHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *PlacementHandler) CurrentView() *models.View {
	return h.view
}

func (h *PlacementHandler) detectorConfig() placement.Config {
	return placement.Config{
		Gap:             h.Gap,
		EstimatedWidth:  h.EstimatedWidth,
		EstimatedHeight: h.EstimatedHeight,
		Basis:           h.view.Basis,
		CellSize:        h.CellSize,
	}
}

func (h *PlacementHandler) respond(respond ResponseSender, t MsgType, data any) {
	msg, err := NewMsg(t, data)
	if err != nil {
		logs.WithTag("msg_type", t).Error(err)
		return
	}
	respond.Send(msg)
}

func (h *PlacementHandler) sendError(respond ResponseSender, requestID uint32, code, reason string) {
	h.respond(respond, MsgTypeError, ErrorResponse{
		RequestID: requestID,
		Code:      code,
		Reason:    reason,
	})
}
