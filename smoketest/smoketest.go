// Package smoketest runs an end to end check against a placement server: it
// dials the WebSocket endpoint, sets a view, uploads an empty obstacle
// snapshot and verifies that an uncontested placement request comes back on
// the intended position.
package smoketest

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	teiwazws "github.com/aukilabs/teiwaz/websocket"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const defaultTimeout = time.Second * 10

type Request struct {
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

type Results struct {
	Endpoint string        `json:"endpoint"`
	ViewUUID string        `json:"view_uuid,omitempty"`
	Found    bool          `json:"found"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

type RunOptions struct {
	Endpoint string
	Timeout  time.Duration
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

// ContextWithTestCancel tags a context so HandleSmokeTest signals its
// asynchronous completion by calling cancel.
func ContextWithTestCancel(ctx context.Context, cancel func()) context.Context {
	return context.WithValue(ctx, testCtxKeyValue, testContext{
		Context: ctx,
		Cancel:  cancel,
	})
}

// RunSmokeTest exercises one full placement round trip against the given
// endpoint.
func RunSmokeTest(ctx context.Context, opts RunOptions) (Results, error) {
	start := time.Now()

	res := Results{Endpoint: opts.Endpoint}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	fail := func(err error) (Results, error) {
		res.Latency = time.Since(start)
		res.Error = err.Error()
		return res, err
	}

	config, err := websocket.NewConfig(opts.Endpoint, "http://localhost")
	if err != nil {
		return fail(errors.New("initializing web socket failed").
			WithTag("endpoint", opts.Endpoint).
			Wrap(err))
	}

	conn, err := websocket.DialConfig(config)
	if err != nil {
		return fail(errors.New("dialing web socket failed").
			WithTag("endpoint", opts.Endpoint).
			Wrap(err))
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	viewRes, err := roundTrip[teiwazws.ViewSetResponse](conn, teiwazws.MsgTypeViewSetRequest, teiwazws.ViewSetRequest{
		RequestID: 1,
		Right:     [3]float64{1, 0, 0},
		Up:        [3]float64{0, 1, 0},
		Scale:     96,
	}, teiwazws.MsgTypeViewSetResponse)
	if err != nil {
		return fail(errors.New("setting view failed").Wrap(err))
	}
	res.ViewUUID = viewRes.ViewUUID

	if err := send(conn, teiwazws.MsgTypeObstacleSnapshot, teiwazws.ObstacleSnapshot{}); err != nil {
		return fail(errors.New("uploading obstacle snapshot failed").Wrap(err))
	}

	placeRes, err := roundTrip[teiwazws.PlaceResponse](conn, teiwazws.MsgTypePlaceRequest, teiwazws.PlaceRequest{
		RequestID: 2,
		Anchor:    teiwazws.PointPayload{X: 0, Y: 0},
		Intended:  teiwazws.PointPayload{X: 10, Y: 0},
	}, teiwazws.MsgTypePlaceResponse)
	if err != nil {
		return fail(errors.New("placing tag failed").Wrap(err))
	}

	res.Found = placeRes.Found
	res.Latency = time.Since(start)

	if !placeRes.Found {
		return fail(errors.New("uncontested placement was not found"))
	}
	if placeRes.Position.X != 10 || placeRes.Position.Y != 0 {
		return fail(errors.New("uncontested placement moved from the intended position").
			WithTag("x", placeRes.Position.X).
			WithTag("y", placeRes.Position.Y))
	}

	return res, nil
}

// HandleSmokeTest triggers an asynchronous smoke test run and reports its
// results through opts.SendResult.
func HandleSmokeTest(ctx context.Context, sendResult func(context.Context, Results) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "reading body failed", http.StatusInternalServerError)
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		go func() {
			defer func() {
				// if context is of testContext
				// cancel context on exit to signal function exited
				// this is used for testing
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			res, err := RunSmokeTest(ctx, RunOptions{
				Endpoint: req.Endpoint,
				Timeout:  req.Timeout,
			})
			if err != nil {
				logs.Warn(err)
			}

			if sendResult == nil {
				return
			}
			if err := sendResult(ctx, res); err != nil {
				logs.WithTag("endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

func send(conn *websocket.Conn, msgType teiwazws.MsgType, data any) error {
	msg, err := teiwazws.NewMsg(msgType, data)
	if err != nil {
		return err
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.New("encoding message failed").
			WithTag("msg_type", msgType).
			Wrap(err)
	}
	return websocket.Message.Send(conn, b)
}

func roundTrip[T any](conn *websocket.Conn, reqType teiwazws.MsgType, req any, resType teiwazws.MsgType) (T, error) {
	var res T

	if err := send(conn, reqType, req); err != nil {
		return res, err
	}

	var b []byte
	if err := websocket.Message.Receive(conn, &b); err != nil {
		return res, errors.New("receiving message failed").Wrap(err)
	}

	var msg teiwazws.Msg
	if err := json.Unmarshal(b, &msg); err != nil {
		return res, errors.New("decoding message failed").Wrap(err)
	}
	if msg.Type != resType {
		return res, errors.New("unexpected message type").
			WithTag("expected", resType).
			WithTag("got", msg.Type)
	}

	return res, msg.DataTo(&res)
}
