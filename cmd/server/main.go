package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/openlot/bidwire/internal/auction"
	"github.com/openlot/bidwire/internal/auth"
	"github.com/openlot/bidwire/internal/config"
	"github.com/openlot/bidwire/internal/gateway"
	"github.com/openlot/bidwire/internal/hub"
	"github.com/openlot/bidwire/internal/notify"
	"github.com/openlot/bidwire/internal/storage"
	"github.com/openlot/bidwire/pkg/middleware"
)

// init configures application logging. In development mode it enables pretty
// printing; debug logging via the DEBUG environment variable.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}
	store := storage.NewRetrying(db, cfg.Storage.RetryAttempts, cfg.Storage.RetryBackoff, zlog.Logger)

	notifier := notify.NewPublisher(cfg.Redis, zlog.Logger)
	defer notifier.Close()

	registry := auction.NewRegistry(store, notifier, zlog.Logger, cfg.Auction.HistoryWindow)
	broadcastHub := hub.New(registry, zlog.Logger)
	registry.SetBroadcaster(broadcastHub)

	authService := auth.NewService(cfg.JWT.Secret, cfg.JWT.Expiration)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials for local development.
	authService.RegisterAccount("test-api-key", "test-api-secret", "user-test", true)

	auctionHandlers := auction.NewGinHandlers(registry)
	gw := gateway.New(registry, broadcastHub, authService, cfg.Gateway, zlog.Logger)

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	router.Use(middleware.RateLimit())
	setupRoutes(router, authService, authHandlers, auctionHandlers, gw)

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		zlog.Info().Str("addr", srv.Addr).Msg("starting bidwire server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Server forced to shutdown")
	}
	registry.Shutdown(shutdownCtx)

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures the API surface:
// - Auth routes: public token issuance
// - Auction routes: observer snapshot reads
// - Internal routes: listing-workflow seeding and the scheduler signal
// - /ws: the bidding gateway
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	auctionHandlers *auction.GinHandlers,
	gw *gateway.Gateway,
) {
	router.GET("/ws", gw.Handler())

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		auctions := v1.Group("/auctions")
		{
			auctions.GET("/:auction_id", auctionHandlers.GetAuctionHandler())
			auctions.GET("/:auction_id/bids", middleware.JWTAuth(authService), auctionHandlers.ListMyBidsHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(authService))
		{
			internal.POST("/auctions", auctionHandlers.CreateAuctionHandler())
			internal.POST("/auctions/:auction_id/activate", auctionHandlers.ActivateAuctionHandler())
		}
	}
}
