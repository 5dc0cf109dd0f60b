package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/openlot/bidwire/internal/types"
	"github.com/openlot/bidwire/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
	ErrInvalidToken       = errors.New("invalid token")
)

// Credentials are the API credentials exchanged for a bidder token.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// TokenResponse is returned from the token endpoint.
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims is the JWT claims structure carried by bidder tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Verified bool   `json:"is_verified"`
}

type account struct {
	secret   string
	userID   string
	verified bool
}

// Service issues and resolves bidder tokens. Credential storage is an
// in-memory registry; a production deployment would back it with the user
// service this core treats as an external collaborator.
type Service struct {
	jwtSecret  []byte
	expiration time.Duration
	accounts   map[string]account
}

func NewService(jwtSecret string, expiration time.Duration) *Service {
	return &Service{
		jwtSecret:  []byte(jwtSecret),
		expiration: expiration,
		accounts:   make(map[string]account),
	}
}

// RegisterAccount registers API credentials for a user. Verified controls
// whether tokens minted for it may place bids.
func (s *Service) RegisterAccount(apiKey, apiSecret, userID string, verified bool) {
	s.accounts[apiKey] = account{secret: apiSecret, userID: userID, verified: verified}
}

// GenerateToken exchanges valid credentials for a signed bidder token.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	acct, ok := s.accounts[creds.APIKey]
	if !ok || acct.secret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(s.expiration)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		UserID:   acct.userID,
		Verified: acct.verified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{Token: signed, Expiration: expiration}, nil
}

// Resolve validates a bidder token and returns the identity it carries.
// This is the resolve(token) -> bidder_context contract the gateway consumes.
func (s *Service) Resolve(tokenString string) (types.BidderContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return types.BidderContext{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return types.BidderContext{}, ErrInvalidToken
	}

	return types.BidderContext{UserID: claims.UserID, Verified: claims.Verified}, nil
}

// GinHandlers contains HTTP handlers for authentication endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GenerateTokenHandler handles POST requests to exchange credentials for a
// bidder token.
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
