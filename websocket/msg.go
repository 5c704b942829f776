package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/teiwaz/geometry"
	"github.com/aukilabs/teiwaz/models"
	"github.com/aukilabs/teiwaz/placement"
	"github.com/segmentio/encoding/json"
)

// MsgType identifies a message exchanged with a placement client.
type MsgType string

const (
	MsgTypeError              MsgType = "error"
	MsgTypeViewSetRequest     MsgType = "view_set_request"
	MsgTypeViewSetResponse    MsgType = "view_set_response"
	MsgTypeObstacleSnapshot   MsgType = "obstacle_snapshot"
	MsgTypePlaceRequest       MsgType = "place_request"
	MsgTypePlaceResponse      MsgType = "place_response"
	MsgTypeRefineRequest      MsgType = "refine_request"
	MsgTypeRefineResponse     MsgType = "refine_response"
	MsgTypeTagCommit          MsgType = "tag_commit"
	MsgTypeRevalidateRequest  MsgType = "revalidate_request"
	MsgTypeRevalidateResponse MsgType = "revalidate_response"
)

// Msg is the JSON envelope carried on the wire.
type Msg struct {
	Type MsgType         `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (m Msg) TypeString() string {
	return string(m.Type)
}

// DataTo unmarshals the message payload into v.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message data failed").
			WithType(ErrTypeInvalidMsg).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

// NewMsg returns a message of the given type carrying the marshaled
// payload.
func NewMsg(t MsgType, data any) (Msg, error) {
	if data == nil {
		return Msg{Type: t}, nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return Msg{}, errors.New("encoding message data failed").
			WithTag("msg_type", t).
			Wrap(err)
	}
	return Msg{Type: t, Data: b}, nil
}

// PointPayload is a view-plane position on the wire.
type PointPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func PointToPayload(p geometry.Point) PointPayload {
	return PointPayload{X: p.X, Y: p.Y}
}

func (p PointPayload) Point() geometry.Point {
	return geometry.Point{X: p.X, Y: p.Y}
}

// RectPayload is an axis-aligned view-plane rectangle on the wire.
type RectPayload struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

func RectToPayload(r geometry.Rect) RectPayload {
	return RectPayload{MinX: r.MinX, MaxX: r.MaxX, MinY: r.MinY, MaxY: r.MaxY}
}

func (r RectPayload) Rect() geometry.Rect {
	return geometry.NewRect(r.MinX, r.MaxX, r.MinY, r.MaxY)
}

type ViewSetRequest struct {
	RequestID uint32     `json:"request_id"`
	Right     [3]float64 `json:"right"`
	Up        [3]float64 `json:"up"`
	Scale     float64    `json:"scale"`
}

func (r ViewSetRequest) Basis() geometry.Basis {
	return geometry.Basis{
		Right: geometry.NewVec3(r.Right[0], r.Right[1], r.Right[2]),
		Up:    geometry.NewVec3(r.Up[0], r.Up[1], r.Up[2]),
		Scale: r.Scale,
	}
}

type ViewSetResponse struct {
	RequestID uint32 `json:"request_id"`
	ViewUUID  string `json:"view_uuid"`
}

type ObstaclePayload struct {
	ID     string      `json:"id"`
	Bounds RectPayload `json:"bounds"`
}

func (o ObstaclePayload) Obstacle() models.Obstacle {
	return models.Obstacle{ID: o.ID, Bounds: o.Bounds.Rect()}
}

// ObstacleSnapshot replaces the run's obstacle set. ExcludedIDs are
// filtered out before the snapshot reaches the engine.
type ObstacleSnapshot struct {
	Obstacles   []ObstaclePayload `json:"obstacles"`
	ExcludedIDs []string          `json:"excluded_ids,omitempty"`
}

type PlaceRequest struct {
	RequestID uint32       `json:"request_id"`
	Anchor    PointPayload `json:"anchor"`
	Intended  PointPayload `json:"intended"`
}

type PlaceResponse struct {
	RequestID uint32       `json:"request_id"`
	Position  PointPayload `json:"position"`
	Found     bool         `json:"found"`

	// Set when Found is false and the position is the least-overlap
	// fallback candidate.
	Fallback        bool    `json:"fallback,omitempty"`
	ResidualOverlap float64 `json:"residual_overlap,omitempty"`
}

type RefineRequest struct {
	RequestID             uint32       `json:"request_id"`
	Anchor                PointPayload `json:"anchor"`
	Intended              PointPayload `json:"intended"`
	Bounds                RectPayload  `json:"bounds"`
	MinDistanceFromAnchor float64      `json:"min_distance_from_anchor,omitempty"`
}

type RefineResponse struct {
	RequestID       uint32       `json:"request_id"`
	Position        PointPayload `json:"position"`
	Found           bool         `json:"found"`
	Fallback        bool         `json:"fallback,omitempty"`
	ResidualOverlap float64      `json:"residual_overlap,omitempty"`
}

// TagCommit registers a created tag's measured rectangle so later
// placements in the run avoid it. No response is sent.
type TagCommit struct {
	TagID  string      `json:"tag_id,omitempty"`
	Bounds RectPayload `json:"bounds"`
}

type TagPayload struct {
	ID        string       `json:"id"`
	ElementID string       `json:"element_id,omitempty"`
	Anchor    PointPayload `json:"anchor"`
	Head      PointPayload `json:"head"`
	Bounds    RectPayload  `json:"bounds"`
	HasLeader bool         `json:"has_leader"`
}

func (t TagPayload) Tag() models.Tag {
	return models.Tag{
		ID:        t.ID,
		ElementID: t.ElementID,
		Anchor:    t.Anchor.Point(),
		Head:      t.Head.Point(),
		Bounds:    t.Bounds.Rect(),
		HasLeader: t.HasLeader,
	}
}

type RevalidateRequest struct {
	RequestID uint32       `json:"request_id"`
	Tags      []TagPayload `json:"tags"`
}

type ProposalPayload struct {
	TagID           string       `json:"tag_id"`
	Head            PointPayload `json:"head"`
	HasLeader       bool         `json:"has_leader"`
	Fallback        bool         `json:"fallback,omitempty"`
	ResidualOverlap float64      `json:"residual_overlap,omitempty"`
}

func ProposalToPayload(p placement.Proposal) ProposalPayload {
	return ProposalPayload{
		TagID:           p.TagID,
		Head:            PointToPayload(p.Head),
		HasLeader:       p.HasLeader,
		Fallback:        p.Fallback,
		ResidualOverlap: p.ResidualOverlap,
	}
}

type RevalidateResponse struct {
	RequestID uint32            `json:"request_id"`
	Proposals []ProposalPayload `json:"proposals"`
}

type ErrorResponse struct {
	RequestID uint32 `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
}
