// Package transport carries envelopes over gorilla WebSocket connections.
// Writes go through a buffered channel drained by one goroutine per
// connection, so Send never blocks the caller.
package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pefman/seabattle/internal/metrics"
	"github.com/pefman/seabattle/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Client struct {
	ID    string
	conn  *websocket.Conn
	codec Codec
	log   zerolog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Upgrade switches the request to a WebSocket and wraps it.
func Upgrade(w http.ResponseWriter, r *http.Request, id string, codec Codec, log zerolog.Logger) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ws upgrade")
	}
	return NewClient(id, conn, codec, log), nil
}

func NewClient(id string, conn *websocket.Conn, codec Codec, log zerolog.Logger) *Client {
	metrics.Connections.Inc()
	return &Client{
		ID:    id,
		conn:  conn,
		codec: codec,
		log:   log.With().Str("user", id).Str("codec", codec.Name()).Logger(),
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
}

// Send queues msg. A client whose buffer is full is too slow to keep up and
// gets disconnected.
func (c *Client) Send(msg models.WsMsg) {
	frame, err := c.codec.Encode(msg)
	if err != nil {
		c.log.Error().Err(err).Str("type", msg.Type).Msg("ws: encode failed")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.log.Warn().Str("type", msg.Type).Msg("ws: send buffer full, closing")
		c.Close()
	}
}

// Done is closed once the connection is shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		metrics.Connections.Dec()
	})
}

// WritePump drains the send buffer and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), frame); err != nil {
				c.log.Debug().Err(err).Msg("ws: write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// flush what is already queued, best effort
			for {
				select {
				case frame := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if c.conn.WriteMessage(c.codec.FrameType(), frame) != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// ReadPump decodes frames and hands them to handle until the connection
// fails. Undecodable frames are logged and skipped.
func (c *Client) ReadPump(handle func(Inbound)) error {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return errors.Wrap(err, "ws read")
			}
			return nil
		}
		in, err := c.codec.Decode(frame)
		if err != nil {
			c.log.Debug().Err(err).Msg("ws: dropping bad frame")
			continue
		}
		c.log.Trace().Str("type", in.Type).Msg("ws: recv")
		handle(in)
	}
}
