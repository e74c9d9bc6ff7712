package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narevent/REA/engine"
)

func newTestServer(t *testing.T, config Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(config)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/pitch" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func sineBytes(freq float64, sampleRate, n int) []byte {
	buf := make([]byte, n*4)
	for i := range n {
		v := float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func TestPitchStreamLocksAndReleases(t *testing.T) {
	config := DefaultConfig()
	_, ts := newTestServer(t, config)
	conn := dial(t, ts, "")

	hello := readMessage(t, conn)
	assert.Equal(t, MessageHello, hello.Type)
	assert.NotEmpty(t, hello.SessionID)
	require.NotNil(t, hello.Config)
	assert.Equal(t, config.Engine.CaptureSize, hello.Config.CaptureSize)

	tone := sineBytes(440, config.Engine.SampleRate, config.Engine.CaptureSize)
	for range config.Engine.BufferSize {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, tone))
	}

	msg := readMessage(t, conn)
	require.Equal(t, MessageEvent, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, engine.EventLocked, msg.Event.Type)
	assert.Equal(t, "A4", msg.Event.Label)
	assert.Equal(t, uint64(config.Engine.BufferSize-1), msg.Event.Frame)

	silent := make([]byte, config.Engine.CaptureSize*4)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, silent))

	msg = readMessage(t, conn)
	require.Equal(t, MessageEvent, msg.Type)
	require.NotNil(t, msg.Event)
	assert.True(t, msg.Event.IsSilence())
}

func TestPitchStreamFrames(t *testing.T) {
	config := DefaultConfig()
	_, ts := newTestServer(t, config)
	conn := dial(t, ts, "?frames=true")
	readMessage(t, conn)

	tone := sineBytes(330, config.Engine.SampleRate, config.Engine.CaptureSize)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, tone))

	msg := readMessage(t, conn)
	require.Equal(t, MessageFrame, msg.Type)
	require.NotNil(t, msg.Frame)
	assert.Equal(t, uint64(0), msg.Frame.Index)
	assert.Equal(t, "E4", msg.Frame.Reading)
	assert.InDelta(t, 330, msg.Frame.Frequency, 3)
	assert.Equal(t, "accumulating", msg.Frame.State)
}

func TestPitchStreamReportsBadBuffers(t *testing.T) {
	config := DefaultConfig()
	_, ts := newTestServer(t, config)
	conn := dial(t, ts, "")
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Error, "float32")

	short := sineBytes(440, config.Engine.SampleRate, 128)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, short))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Error, engine.ErrShortBuffer.Error())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)
}

func TestPitchStreamReset(t *testing.T) {
	config := DefaultConfig()
	_, ts := newTestServer(t, config)
	conn := dial(t, ts, "?frames=true")
	hello := readMessage(t, conn)

	tone := sineBytes(440, config.Engine.SampleRate, config.Engine.CaptureSize)
	for range 3 {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, tone))
		readMessage(t, conn)
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"reset"}`)))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageReset, msg.Type)
	assert.Equal(t, hello.SessionID, msg.SessionID)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, tone))
	msg = readMessage(t, conn)
	require.NotNil(t, msg.Frame)
	assert.Equal(t, uint64(0), msg.Frame.Index)
}

func TestHealth(t *testing.T) {
	s, ts := newTestServer(t, DefaultConfig())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, int64(0), body.Connections)
	assert.Equal(t, int64(0), s.Active())
	assert.Equal(t, 4096, body.WindowSize)
}

func TestCORSOrigins(t *testing.T) {
	config := DefaultConfig()
	config.AllowedOrigins = []string{"http://allowed.test"}
	_, ts := newTestServer(t, config)

	get := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, "http://allowed.test", get("http://allowed.test").Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, get("http://other.test").Header.Get("Access-Control-Allow-Origin"))
}

func TestNewRejectsBadEngineConfig(t *testing.T) {
	cases := map[string]func(c *engine.Config){
		"short window":   func(c *engine.Config) { c.WindowSize = 512 },
		"yin threshold":  func(c *engine.Config) { c.YINThreshold = 0 },
		"history depth":  func(c *engine.Config) { c.HistoryDepth = 0 },
		"smoothing jump": func(c *engine.Config) { c.SmoothingJumpHz = -1 },
	}
	for name, mutate := range cases {
		config := DefaultConfig()
		mutate(&config.Engine)

		_, err := New(config)
		assert.ErrorIs(t, err, engine.ErrConfiguration, name)
	}
}

func TestServeClosesWebsocketsOnShutdown(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/pitch", nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)
	assert.Eventually(t, func() bool { return s.Active() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	// closed by the server, not left open until the deadline
	assert.False(t, isTimeout(err), err.Error())
	assert.Eventually(t, func() bool { return s.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
