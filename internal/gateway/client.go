package gateway

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/openlot/bidwire/internal/types"
)

// client is one terminated connection: a read pump (this goroutine) and a
// write pump feeding the socket from a buffered send channel. It implements
// hub.Subscriber; Send never blocks, so a stalled socket gets this client
// evicted from the fan-out instead of stalling the auctioneer.
type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	closing chan []byte
	quit    chan struct{}
	bidder  types.BidderContext
	authed  bool

	// limiter bounds place_bid frames so one connection cannot flood an
	// auctioneer.
	limiter *rate.Limiter

	gw     *Gateway
	logger zerolog.Logger
}

func (c *client) ID() string { return c.id }

// Send enqueues a frame for the write pump. Returns false when the buffer is
// full or the connection is shutting down.
func (c *client) Send(frame []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeWith hands the close frame to the write pump, which drains any queued
// frames first so a preceding error frame reaches the peer before the close.
func (c *client) closeWith(code int, reason string) {
	select {
	case c.closing <- websocket.FormatCloseMessage(code, reason):
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.gw.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			if !c.write(frame) {
				return
			}
		case msg := <-c.closing:
			c.drainAndClose(msg)
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			// The read pump is gone; flush a pending close frame if one was
			// requested before tearing the socket down.
			select {
			case msg := <-c.closing:
				c.drainAndClose(msg)
			default:
			}
			return
		}
	}
}

func (c *client) write(frame []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame) == nil
}

// drainAndClose writes every queued frame, then the close frame. All writes
// happen on the pump goroutine, keeping the single-writer contract.
func (c *client) drainAndClose(msg []byte) {
	for {
		select {
		case frame := <-c.send:
			if !c.write(frame) {
				return
			}
		default:
			deadline := time.Now().Add(c.gw.cfg.WriteWait)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

func (c *client) sendError(code string) {
	c.Send(types.Frame(types.ErrorMsg{Type: types.MsgError, Code: code}))
}
