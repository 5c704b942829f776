package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/teiwaz/models"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize = 512

	ErrTypeInvalidMsg = "invalid_msg"
	ErrTypeViewNotSet = "view_not_set"
	ErrTypeDisabled   = "feature_disabled"
)

// Receiver receives one incoming message and its size in bytes.
type Receiver func() (Msg, int, error)

// Sender sends one message and reports its size in bytes.
type Sender func(Msg) (int, error)

// ResponseSender is passed to handler methods in order to send responses.
type ResponseSender interface {
	Send(Msg)
}

// Handler represents a teiwaz placement handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a request to set the run's view basis.
	HandleViewSet(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles an obstacle snapshot upload.
	HandleObstacleSnapshot(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a placement request with the conservative estimated footprint.
	HandlePlace(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles the corrective pass with a tag's measured size.
	HandleRefine(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles the registration of a created tag's rectangle.
	HandleTagCommit(ctx context.Context, msg Msg) error

	// Handles a batch revalidation request.
	HandleRevalidate(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles the client's disconnection.
	HandleDisconnect(error)

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the handler and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// The run's current view. Nil until a view is set.
	CurrentView() *models.View
}

// Handle serves one connection with the given handler.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The placement handler.
	Handler Handler

	sendChan       chan Msg
	sender         Sender
	receiver       Receiver
	msgChan        chan Msg
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.msgChan = make(chan Msg, 1)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	responder := responseSender{sendMsg: h.sendMsg}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").
				WithTag("duration", idleTimeout))

		case msg := <-h.msgChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) sendMsg(msg Msg) {
	h.sendChan <- msg
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		default:
			msg, _, err := h.receiver()
			if err != nil {
				h.disconnect(errors.New("receiving message failed").Wrap(err))
				return
			}

			select {
			case h.msgChan <- msg:

			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	switch msg.Type {
	case MsgTypeViewSetRequest:
		return h.Handler.HandleViewSet(ctx, responder, msg)

	case MsgTypeObstacleSnapshot:
		return h.Handler.HandleObstacleSnapshot(ctx, responder, msg)

	case MsgTypePlaceRequest:
		return h.Handler.HandlePlace(ctx, responder, msg)

	case MsgTypeRefineRequest:
		return h.Handler.HandleRefine(ctx, responder, msg)

	case MsgTypeTagCommit:
		return h.Handler.HandleTagCommit(ctx, msg)

	case MsgTypeRevalidateRequest:
		return h.Handler.HandleRevalidate(ctx, responder, msg)
	}

	return nil
}

func (h *handler) disconnect(err error) {
	h.disconnectChan <- err
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	sendMsg func(Msg)
}

func (r responseSender) Send(msg Msg) {
	r.sendMsg(msg)
}
