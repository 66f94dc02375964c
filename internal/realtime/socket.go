package realtime

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lalith-99/strangersmeet/internal/apperr"
	"go.uber.org/zap"
)

// maxCloseReason is the room left for the reason in a close frame once the
// two-byte code is written.
const maxCloseReason = 123

// closeFrameWait caps how long teardown waits to write the close frame.
const closeFrameWait = time.Second

type SocketConfig struct {
	SendQueueSize  int
	MaxMessageSize int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		SendQueueSize:  256,
		MaxMessageSize: 8192,
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

// WSSocket is a Socket over a gorilla websocket connection. Outbound frames
// go through a bounded queue drained by one writer goroutine, which also
// sends the keepalive pings.
type WSSocket struct {
	conn   *websocket.Conn
	cfg    SocketConfig
	logger *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewWSSocket(conn *websocket.Conn, cfg SocketConfig, logger *zap.Logger) *WSSocket {
	s := &WSSocket{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		send:   make(chan []byte, cfg.SendQueueSize),
		done:   make(chan struct{}),
	}

	conn.SetReadLimit(cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	go s.writePump()
	return s
}

func (s *WSSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	return data, nil
}

func (s *WSSocket) Send(payload []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("socket closed: %w", apperr.ErrTransportFailure)
	default:
	}

	select {
	case s.send <- payload:
		return nil
	default:
		return fmt.Errorf("send queue full: %w", apperr.ErrTransportFailure)
	}
}

// Close returns at once. The close frame and the teardown of the network
// connection happen on another goroutine, so a caller never waits behind a
// writer stuck on a peer that stopped reading.
func (s *WSSocket) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		go s.teardown(websocket.FormatCloseMessage(code, reason))
	})
}

// teardown sends the close frame if the write lock frees up within
// closeFrameWait, then closes the connection, which also unblocks any
// pending read or write.
func (s *WSSocket) teardown(msg []byte) {
	wait := min(s.cfg.WriteWait, closeFrameWait)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait))
	_ = s.conn.Close()
}

func (s *WSSocket) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !IsExpectedClose(err) {
					s.logger.Debug("websocket write failed", zap.Error(err))
				}
				s.Close(websocket.CloseGoingAway, "write failed")
				return
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				s.Close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}

// IsExpectedClose reports whether err is an ordinary end of a connection
// rather than a fault worth logging.
func IsExpectedClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
