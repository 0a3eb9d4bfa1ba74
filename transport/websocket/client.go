package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxMessageSize = 4096
)

// client is one upgraded connection. Only the read loop touches session.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	session *subscription
}

// subscription is the client's attachment to one session's event stream.
// ended is set once the stream is closed; left marks a close the client asked for.
type subscription struct {
	sessionID   string
	unsubscribe func()

	left  atomic.Bool
	ended atomic.Bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn}
}

func (that *client) send(action string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err = that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err = that.conn.WriteJSON(Message{Action: action, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *client) ping() error {
	return that.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// sessionID - returns the attached session, or "" when the stream is gone.
func (that *client) sessionID() string {
	if that.session == nil || that.session.ended.Load() {
		return ""
	}

	return that.session.sessionID
}

// leave - drops the current session subscription, if any.
func (that *client) leave() {
	if that.session != nil {
		that.session.left.Store(true)
		that.session.unsubscribe()
	}

	that.session = nil
}
