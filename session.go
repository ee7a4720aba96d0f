package ipcam

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// StatusConnected first message of every healthy session
const StatusConnected = "Connected to camera stream"

// closeGrace bounds the close handshake write
const closeGrace = time.Second

// MessageSender pushes one JSON message to a client
type MessageSender interface {
	Send(msg interface{}) error
}

// Session one websocket client. Writes are serialised; Close is idempotent.
type Session struct {
	ID string

	conn         *websocket.Conn
	writeTimeout time.Duration
	log          *log.Entry

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newSession(conn *websocket.Conn, writeTimeout time.Duration, logger *log.Entry) *Session {
	id := uuid.NewString()
	return &Session{
		ID:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
		log:          moduleLogger(logger, "session").WithField("session", id),
	}
}

// Send writes msg as a JSON text frame. Any failure means the peer is gone.
func (s *Session) Send(msg interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return errors.Wrap(ErrTransportClosed, err.Error())
	}
	return nil
}

// watch drains inbound frames so close frames and pings are processed.
// When the peer goes away the relay context is cancelled with ErrTransportClosed.
func (s *Session) watch(cancel context.CancelCauseFunc) {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Debug("Client connection lost")
			} else {
				s.log.Debug("WebSocket connection closed")
			}
			cancel(ErrTransportClosed)
			return
		}
	}
}

// Close sends a normal close frame and drops the connection
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// SocketSink pushes frames to one client as JSON messages
type SocketSink struct {
	Encoder FrameEncoder
	Out     MessageSender
}

// Start announces the stream
func (s *SocketSink) Start(ctx context.Context) error {
	return s.Out.Send(NewStatusMessage(StatusConnected))
}

// Deliver encodes and sends one frame message
func (s *SocketSink) Deliver(ctx context.Context, frame *FrameData, detections []Detection) error {
	jpeg, err := s.Encoder.Encode(frame.Scaled)
	if err != nil {
		if !errors.Is(err, ErrEncode) {
			err = errors.Wrap(ErrEncode, err.Error())
		}
		return err
	}
	return s.Out.Send(NewFrameMessage(jpeg, detections, frame.CapturedAt))
}

// ReportError sends an error message, best effort
func (s *SocketSink) ReportError(err error) {
	_ = s.Out.Send(NewErrorMessage(Describe(err)))
}

// Close closes the transport when it supports it
func (s *SocketSink) Close() error {
	if closer, ok := s.Out.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
