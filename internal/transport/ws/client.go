package ws

import (
	"sync"
	"time"

	"home-services-api/internal/presence"

	"github.com/gorilla/websocket"
)

// client is one socket plus its outbound queue. Only the write pump writes
// to conn.
type client struct {
	handle presence.Handle
	conn   *websocket.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(handle presence.Handle, conn *websocket.Conn, buffer int) *client {
	if buffer <= 0 {
		buffer = 1
	}
	return &client{
		handle: handle,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks.
func (c *client) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// abort asks the write pump to flush what is queued and close the socket.
func (c *client) abort() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := s.write(c, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				return
			}
		case <-c.done:
			s.flush(c)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.cfg.WriteWait))
			return
		}
	}
}

func (s *Server) flush(c *client) {
	for {
		select {
		case frame := <-c.send:
			if err := s.write(c, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) write(c *client, frame []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}
