package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/quotient-code/collab-service/internal/collab"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("connection closed")

// wsConn — collab.Conn поверх gorilla-соединения. Запись сериализуется
// каналом-семафором: WriteJSON нельзя звать конкурентно.
type wsConn struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	sendMu    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(c *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           uuid.NewString(),
		conn:         c,
		writeTimeout: writeTimeout,
		sendMu:       make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Alive() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

func (c *wsConn) Send(env collab.Envelope) error {
	if !c.Alive() {
		return errConnClosed
	}
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(env)
}

// Close сходится из нескольких горутин: teardown самого соединения,
// broadcast-путь чужого обработчика и супервизор. Once защищает от
// повторного close канала.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.conn.Close()
	})

	return c.closeErr
}
