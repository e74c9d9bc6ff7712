package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/narevent/REA/algorithms/common"
	"github.com/narevent/REA/engine"
	"github.com/narevent/REA/logging"
)

// MessageType tags every JSON message sent to a client
type MessageType string

const (
	MessageHello MessageType = "hello"
	MessageEvent MessageType = "event"
	MessageFrame MessageType = "frame"
	MessageReset MessageType = "reset"
	MessageError MessageType = "error"
)

// Message is the JSON envelope written to clients
type Message struct {
	Type      MessageType    `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Config    *engine.Config `json:"config,omitempty"`
	Event     *engine.Event  `json:"event,omitempty"`
	Frame     *FrameSummary  `json:"frame,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// FrameSummary is the per-buffer reading sent when a client asks for frames
type FrameSummary struct {
	Index      uint64  `json:"index"`
	LevelDB    float64 `json:"level_db"`
	Frequency  float64 `json:"frequency_hz"`
	Confidence float64 `json:"confidence"`
	Reading    string  `json:"reading"`
	Cents      int     `json:"cents"`
	State      string  `json:"state"`
}

type controlMessage struct {
	Type MessageType `json:"type"`
}

func summarize(frame engine.Frame) *FrameSummary {
	return &FrameSummary{
		Index:      frame.Index,
		LevelDB:    frame.LevelDB,
		Frequency:  frame.Smoothed.Frequency,
		Confidence: frame.Smoothed.Confidence,
		Reading:    frame.Reading.Label(),
		Cents:      frame.Reading.Cents,
		State:      frame.State.String(),
	}
}

// connection is one websocket client; only its read loop writes to conn
type connection struct {
	id     string
	conn   *websocket.Conn
	engine *engine.Engine
	frames bool
	logger logging.Logger

	samples []float32
	raw     []float64
}

func (s *Server) handlePitch(w http.ResponseWriter, r *http.Request) {
	eng, err := engine.New(s.config.Engine)
	if err != nil {
		s.logger.Error(err, "Failed to create engine")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", logging.Fields{"error": err.Error()})
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.config.ReadLimit)

	id := uuid.New().String()
	ctx := logging.ContextWithFields(r.Context(), logging.Fields{"session_id": id})

	c := &connection{
		id:     id,
		conn:   conn,
		engine: eng,
		frames: r.URL.Query().Get("frames") == "true",
		logger: s.logger.WithContext(ctx),
	}

	s.track(conn)
	defer s.untrack(conn)

	c.logger.Info("Client connected", logging.Fields{"remote": r.RemoteAddr})
	c.run()
	c.logger.Info("Client disconnected", logging.Fields{"frames": eng.Frames()})
}

func (c *connection) run() {
	cfg := c.engine.Config()
	if err := c.write(Message{Type: MessageHello, SessionID: c.id, Config: &cfg}); err != nil {
		return
	}

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Websocket read failed", logging.Fields{"error": err.Error()})
			}
			return
		}

		switch typ {
		case websocket.BinaryMessage:
			err = c.handleAudio(data)
		case websocket.TextMessage:
			err = c.handleControl(data)
		}
		if err != nil {
			c.logger.Warn("Websocket write failed", logging.Fields{"error": err.Error()})
			return
		}
	}
}

// handleAudio runs one capture buffer through the engine. Only write failures are returned;
// bad buffers are reported to the client and the connection stays open.
func (c *connection) handleAudio(data []byte) error {
	if len(data)%4 != 0 {
		return c.writeError(fmt.Errorf("audio message of %d bytes is not float32 aligned", len(data)))
	}

	c.samples = common.Float32FromLE(data, c.samples)
	c.raw = common.ToFloat64(c.samples, c.raw)

	frame, err := c.engine.Process(c.raw)
	if err != nil {
		if !errors.Is(err, engine.ErrShortBuffer) {
			c.logger.Error(err, "Failed to process buffer")
		}
		return c.writeError(err)
	}

	if c.frames {
		if err := c.write(Message{Type: MessageFrame, Frame: summarize(frame)}); err != nil {
			return err
		}
	}
	if frame.Event != nil {
		return c.write(Message{Type: MessageEvent, Event: frame.Event})
	}
	return nil
}

func (c *connection) handleControl(data []byte) error {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return c.writeError(fmt.Errorf("invalid control message: %w", err))
	}

	switch msg.Type {
	case MessageReset:
		c.engine.Reset()
		c.logger.Debug("Engine reset")
		return c.write(Message{Type: MessageReset, SessionID: c.id})
	default:
		return c.writeError(fmt.Errorf("unknown control message %q", msg.Type))
	}
}

func (c *connection) write(msg Message) error {
	return c.conn.WriteJSON(msg)
}

func (c *connection) writeError(err error) error {
	return c.write(Message{Type: MessageError, Error: err.Error()})
}
