package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/openlot/bidwire/internal/auction"
	"github.com/openlot/bidwire/internal/config"
	"github.com/openlot/bidwire/internal/hub"
	"github.com/openlot/bidwire/internal/types"
	"github.com/openlot/bidwire/pkg/response"
)

// TokenResolver is the external auth collaborator resolving a token into a
// bidder context.
type TokenResolver interface {
	Resolve(token string) (types.BidderContext, error)
}

// Gateway terminates client connections and routes frames to the right
// auctioneer. It holds no auction business state.
type Gateway struct {
	registry *auction.Registry
	hub      *hub.Hub
	auth     TokenResolver
	cfg      config.GatewayConfig
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func New(registry *auction.Registry, h *hub.Hub, auth TokenResolver, cfg config.GatewayConfig, logger zerolog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		hub:      h,
		auth:     auth,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

// Handler upgrades the HTTP request and runs the connection's read pump.
// Joining as an observer may be anonymous; a presented token must resolve.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var bidder types.BidderContext
		authed := false
		if token := bearerToken(c); token != "" {
			resolved, err := g.auth.Resolve(token)
			if err != nil {
				response.Unauthorized(c, "Invalid token")
				return
			}
			bidder = resolved
			authed = true
		}

		conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		cl := &client{
			id:      uuid.New().String(),
			conn:    conn,
			send:    make(chan []byte, g.cfg.SendBuffer),
			closing: make(chan []byte, 1),
			quit:    make(chan struct{}),
			bidder:  bidder,
			authed:  authed,
			limiter: rate.NewLimiter(rate.Limit(g.cfg.BidsPerMinute/60.0), g.cfg.BidBurst),
			gw:      g,
		}
		cl.logger = g.logger.With().Str("connection_id", cl.id).Logger()

		go cl.writePump()
		g.readPump(cl)
	}
}

func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

func (g *Gateway) readPump(cl *client) {
	// The write pump owns the socket teardown: signalling quit lets it flush a
	// pending close frame before it closes the connection.
	defer func() {
		close(cl.quit)
		g.hub.UnsubscribeAll(cl)
		cl.logger.Debug().Msg("connection closed")
	}()

	cl.conn.SetReadLimit(g.cfg.ReadLimit)
	_ = cl.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg types.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			cl.sendError(types.ErrCodeProtocolError)
			cl.closeWith(websocket.CloseProtocolError, types.ErrCodeProtocolError)
			return
		}

		switch msg.Type {
		case types.MsgPing:
			cl.Send(types.Frame(types.PongMsg{Type: types.MsgPong}))
		case types.MsgJoin:
			if !g.handleJoin(cl, msg) {
				return
			}
		case types.MsgPlaceBid:
			if !g.handleBid(cl, msg) {
				return
			}
		default:
			cl.sendError(types.ErrCodeProtocolError)
			cl.closeWith(websocket.CloseProtocolError, types.ErrCodeProtocolError)
			return
		}
	}
}

// handleJoin subscribes the connection to an auction and streams the
// authoritative snapshot back. Returns false when the connection must close.
func (g *Gateway) handleJoin(cl *client, msg types.ClientMessage) bool {
	if msg.AuctionID == "" {
		cl.sendError(types.ErrCodeProtocolError)
		cl.closeWith(websocket.CloseProtocolError, types.ErrCodeProtocolError)
		return false
	}

	frame, ok := g.hub.Subscribe(msg.AuctionID, cl)
	if !ok {
		cl.sendError(types.ErrCodeAuctionNotFound)
		return true
	}
	cl.Send(frame)
	return true
}

// handleBid routes a bid to its auctioneer and relays the synchronous
// outcome. The asynchronous broadcast triggered by the same accepted bid
// reaches the sender through its subscription; clients deduplicate on
// sequence. Returns false when the connection must close.
func (g *Gateway) handleBid(cl *client, msg types.ClientMessage) bool {
	if msg.AuctionID == "" || msg.Amount == nil {
		cl.sendError(types.ErrCodeProtocolError)
		cl.closeWith(websocket.CloseProtocolError, types.ErrCodeProtocolError)
		return false
	}

	// Bidding requires identity; observing does not.
	if !cl.authed {
		cl.sendError(types.ErrCodeUnauthorized)
		cl.closeWith(websocket.ClosePolicyViolation, types.ErrCodeUnauthorized)
		return false
	}

	if !cl.limiter.Allow() {
		cl.sendError(types.ErrCodeRateLimited)
		return true
	}

	amount := *msg.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		cl.Send(types.Frame(types.BidRejectedMsg{
			Type:      types.MsgBidRejected,
			AuctionID: msg.AuctionID,
			Reason:    types.ReasonMalformedAmount,
			ClientID:  msg.ClientID,
		}))
		return true
	}

	req := auction.BidRequest{
		AuctionID:        msg.AuctionID,
		Bidder:           cl.bidder,
		Amount:           decimal.NewFromFloat(amount),
		ExpectedSequence: msg.Sequence,
		ClientRef:        msg.ClientID,
		Notify:           cl,
	}
	if msg.MaxBid != nil && !math.IsNaN(*msg.MaxBid) && !math.IsInf(*msg.MaxBid, 0) {
		req.MaxProxy = decimal.NewNullDecimal(decimal.NewFromFloat(*msg.MaxBid))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := g.registry.Get(ctx, msg.AuctionID)
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		cl.sendError(types.ErrCodeAuctionNotFound)
		return true
	case errors.Is(err, auction.ErrAuctionFinished):
		cl.Send(types.Frame(types.BidRejectedMsg{
			Type:      types.MsgBidRejected,
			AuctionID: msg.AuctionID,
			Reason:    types.ReasonAuctionInactive,
			ClientID:  msg.ClientID,
		}))
		return true
	case err != nil:
		cl.logger.Error().Err(err).Str("auction_id", msg.AuctionID).Msg("failed to resolve auctioneer")
		cl.Send(types.Frame(types.BidRejectedMsg{
			Type:      types.MsgBidRejected,
			AuctionID: msg.AuctionID,
			Reason:    types.ReasonPersistenceUnavailable,
			ClientID:  msg.ClientID,
		}))
		return true
	}

	outcome := a.SubmitBid(ctx, req)
	if outcome.Accepted {
		// The ack was already delivered from the auctioneer's post-commit
		// point, ahead of the matching broadcast.
		return true
	}

	rejected := types.BidRejectedMsg{
		Type:      types.MsgBidRejected,
		AuctionID: msg.AuctionID,
		Reason:    outcome.Reason,
		ClientID:  msg.ClientID,
	}
	if outcome.MinimumRequired != nil {
		min := outcome.MinimumRequired.InexactFloat64()
		rejected.MinimumRequired = &min
	}
	if outcome.Snapshot != nil {
		snap := types.NewAuctionState(*outcome.Snapshot, g.hub.Count(msg.AuctionID))
		rejected.Snapshot = &snap
	}
	cl.Send(types.Frame(rejected))
	return true
}
