package perfprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newWSServer starts a websocket server running fn for every connection and
// returns its ws:// URL.
func newWSServer(t *testing.T, fn func(*websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		fn(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/page/A"
}

func TestConnRoundTrip(t *testing.T) {
	t.Parallel()

	urlstr := newWSServer(t, func(c *websocket.Conn) {
		_, buf, err := c.ReadMessage()
		if err != nil {
			return
		}
		// echo the command id back with a result and follow with an event.
		var req cdproto.Message
		if err := easyjson.Unmarshal(buf, &req); err != nil {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"id":`+strconv.FormatInt(req.ID, 10)+`,"result":{"method":"`+string(req.Method)+`"}}`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"method":"Page.loadEventFired","params":{"timestamp":1.5}}`))
	})

	conn, err := DialContext(context.Background(), urlstr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Write(&cdproto.Message{
		ID:     7,
		Method: "Page.enable",
		Params: easyjson.RawMessage(`{}`),
	}))

	res, err := conn.Read()
	require.NoError(t, err)
	assert.EqualValues(t, 7, res.ID)
	assert.JSONEq(t, `{"method":"Page.enable"}`, string(res.Result))

	ev, err := conn.Read()
	require.NoError(t, err)
	assert.EqualValues(t, 0, ev.ID)
	assert.EqualValues(t, cdproto.EventPageLoadEventFired, ev.Method)
	assert.JSONEq(t, `{"timestamp":1.5}`, string(ev.Params))
}

func TestConnRejectsBinaryFrames(t *testing.T) {
	t.Parallel()

	urlstr := newWSServer(t, func(c *websocket.Conn) {
		_ = c.WriteMessage(websocket.BinaryMessage, []byte{0x1, 0x2})
		_, _, _ = c.ReadMessage()
	})

	conn, err := DialContext(context.Background(), urlstr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Read()
	assert.ErrorIs(t, err, ErrInvalidWebsocketMessage)
}

func TestConnRejectsMalformedFrames(t *testing.T) {
	t.Parallel()

	urlstr := newWSServer(t, func(c *websocket.Conn) {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"id":`))
		_, _, _ = c.ReadMessage()
	})

	conn, err := DialContext(context.Background(), urlstr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Read()
	assert.Error(t, err)
}

func TestForceIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, exp string
	}{
		{"ws://127.0.0.1:9222/devtools/page/A", "ws://127.0.0.1:9222/devtools/page/A"},
		{"ws://127.0.0.1/devtools/browser", "ws://127.0.0.1/devtools/browser"},
		{"not a url", "not a url"},
	}
	for _, test := range tests {
		assert.Equal(t, test.exp, ForceIP(test.in), test.in)
	}
}
