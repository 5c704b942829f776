package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/teiwaz/featureflag"
	"github.com/aukilabs/teiwaz/geometry"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// Creates a testing environment to unit test handlers: an in-process server
// running the given handler and a connected client.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	client, close := newTestingEnv(t, newHandler)
	return client, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	config, err := websocket.NewConfig(
		strings.ReplaceAll(server.URL, "http://", "ws://"),
		"http://localhost",
	)
	if err != nil {
		t.Fatalf("error initializing web socket: %s", err)
	}

	conn, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("error dialing web socket: %s", err)
	}

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func newTestHandler(flags ...string) func() Handler {
	return func() Handler {
		var h Handler = &PlacementHandler{
			ClientIdleTimeout: time.Minute,
			Gap:               0.1,
			EstimatedWidth:    1,
			EstimatedHeight:   0.5,
			MinLeaderLength:   0.25,
			FeatureFlags:      featureflag.New(flags),
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://teiwaz-test.com")
		return h
	}
}

func sendTestMsg(t *testing.T, conn *websocket.Conn, msgType MsgType, data any) {
	msg, err := NewMsg(msgType, data)
	if err != nil {
		t.Fatalf("error encoding %s: %s", msgType, err)
	}

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("error marshaling %s: %s", msgType, err)
	}

	if err := websocket.Message.Send(conn, b); err != nil {
		t.Fatalf("error sending %s: %s", msgType, err)
	}
}

func receiveTestMsg(t *testing.T, conn *websocket.Conn) Msg {
	var b []byte
	if err := websocket.Message.Receive(conn, &b); err != nil {
		t.Fatalf("error receiving message: %s", err)
	}

	var msg Msg
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("error decoding message: %s", err)
	}
	return msg
}

func identityViewSetRequest(requestID uint32) ViewSetRequest {
	return ViewSetRequest{
		RequestID: requestID,
		Right:     [3]float64{1, 0, 0},
		Up:        [3]float64{0, 1, 0},
		Scale:     96,
	}
}

func testObstacle(id string, bounds geometry.Rect) ObstaclePayload {
	return ObstaclePayload{ID: id, Bounds: RectToPayload(bounds)}
}
