package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/openlot/bidwire/internal/auth"
	"github.com/openlot/bidwire/internal/types"
	"github.com/openlot/bidwire/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.Mutex

	// Limits per endpoint family.
	authLimit     = rate.Limit(10.0 / 60.0)  // 10 requests per minute
	auctionLimit  = rate.Limit(100.0 / 60.0) // 100 requests per minute
	internalLimit = rate.Limit(300.0 / 60.0) // 300 requests per minute
)

func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientKey string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientKey + ":" + path
	v, exists := visitors[key]
	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/internal"):
			limit = internalLimit
		case strings.HasPrefix(path, "/api/v1/auctions"):
			limit = auctionLimit
		default:
			limit = rate.Inf
		}
		v = &visitor{limiter: rate.NewLimiter(limit, 5), lastSeen: time.Now()}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit bounds REST request rates per client and endpoint family. The
// WebSocket bid path carries its own per-connection token bucket in the
// gateway.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetString("userID")
		if clientKey == "" {
			clientKey = c.ClientIP()
		}

		if !getLimiter(c.FullPath(), clientKey).Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth requires a valid bidder token and stores the resolved context.
func JWTAuth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bidder, ok := resolveBearer(c, svc)
		if !ok {
			return
		}
		c.Set("bidder", bidder)
		c.Set("userID", bidder.UserID)
		c.Next()
	}
}

// InternalAuth protects the collaborator endpoints (listing workflow seed,
// scheduler activation). These sit on an internal network; the token check is
// a second fence.
func InternalAuth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bidder, ok := resolveBearer(c, svc)
		if !ok {
			return
		}
		if !bidder.Verified {
			response.Forbidden(c, "Internal endpoints require a verified identity")
			c.Abort()
			return
		}
		c.Set("bidder", bidder)
		c.Set("userID", bidder.UserID)
		c.Next()
	}
}

func resolveBearer(c *gin.Context, svc *auth.Service) (types.BidderContext, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		response.Unauthorized(c, "Authorization header required")
		c.Abort()
		return types.BidderContext{}, false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		response.Unauthorized(c, "Invalid authorization header format")
		c.Abort()
		return types.BidderContext{}, false
	}

	bidder, err := svc.Resolve(parts[1])
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return types.BidderContext{}, false
	}
	return bidder, true
}

// Bidder extracts the resolved bidder context from the request context.
func Bidder(c *gin.Context) (types.BidderContext, bool) {
	v, exists := c.Get("bidder")
	if !exists {
		return types.BidderContext{}, false
	}
	bidder, ok := v.(types.BidderContext)
	return bidder, ok
}
