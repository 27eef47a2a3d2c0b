package mcp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// writeWait is time allowed to write a message
const writeWait = 10 * time.Second

// WebSocketTransport exchanges JSON-RPC messages as websocket text frames
type WebSocketTransport struct {
	conn     *websocket.Conn
	messages chan []byte
	readErr  error
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialWebSocket connects to url, sending header on the handshake
func DialWebSocket(ctx context.Context, url string, header http.Header) (*WebSocketTransport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial failed with status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dial failed")
	}

	t := &WebSocketTransport{
		conn:     conn,
		messages: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *WebSocketTransport) readLoop() {
	defer close(t.messages)
	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			t.readErr = err
			return
		}
		select {
		case t.messages <- message:
		case <-t.done:
			return
		}
	}
}

func (t *WebSocketTransport) write(msg []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return errors.Wrap(err, "write failed")
	}
	return nil
}

func (t *WebSocketTransport) Call(ctx context.Context, id int64, req []byte) ([]byte, error) {
	if err := t.write(req); err != nil {
		return nil, err
	}
	for {
		select {
		case msg, ok := <-t.messages:
			if !ok {
				if t.readErr != nil {
					return nil, errors.Wrap(t.readErr, "read failed")
				}
				return nil, errClosed
			}
			if got, isResp := responseID(msg); isResp && got == id {
				return msg, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (t *WebSocketTransport) Notify(_ context.Context, msg []byte) error {
	return t.write(msg)
}

// Close sends a close frame and closes the connection
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		t.writeMu.Unlock()
		err = t.conn.Close()
		close(t.done)
	})
	return err
}
