// Package wsclient is the client end of the signal socket, used by the
// headless participant.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var ErrClosed = errors.New("client closed")

type Handler func(data json.RawMessage)

// Client writes events from any goroutine and delivers inbound events to
// handlers one at a time, in arrival order.
type Client struct {
	conn *websocket.Conn

	wmu    sync.Mutex
	closed bool

	hmu      sync.RWMutex
	handlers map[string]Handler
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Info().Str("module", "wsclient").Str("url", url).Msg("connected")
	return &Client{conn: conn, handlers: make(map[string]Handler)}, nil
}

// On replaces the handler for event.
func (c *Client) On(event string, h Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[event] = h
}

func (c *Client) Emit(event string, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Run reads until ctx is done or the connection drops.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("bad frame")
			continue
		}
		c.hmu.RLock()
		h, ok := c.handlers[env.Type]
		c.hmu.RUnlock()
		if !ok {
			log.Debug().Str("module", "wsclient").Str("type", env.Type).Msg("unhandled event")
			continue
		}
		h(env.Data)
	}
}

// Close sends a close frame and closes the socket. Idempotent.
func (c *Client) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.conn.Close()
}
