package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/openlot/bidwire/internal/auction"
	"github.com/openlot/bidwire/internal/types"
)

// Simulation driver: seeds an auction through the internal API, activates it,
// then races several WebSocket bidders against each other and prints what the
// hub broadcasts.

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func main() {
	server := flag.String("server", "localhost:8080", "server host:port")
	bidders := flag.Int("bidders", 3, "number of concurrent bidders")
	bidsEach := flag.Int("bids", 5, "bids per bidder")
	flag.Parse()

	base := "http://" + *server

	token, err := fetchToken(base, "test-api-key", "test-api-secret")
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to fetch token")
	}

	auctionID, err := seedAuction(base, token)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to seed auction")
	}
	zlog.Info().Str("auction_id", auctionID).Msg("auction seeded")

	if err := activateAuction(base, token, auctionID); err != nil {
		zlog.Fatal().Err(err).Msg("failed to activate auction")
	}
	zlog.Info().Str("auction_id", auctionID).Msg("auction activated")

	var wg sync.WaitGroup
	for i := 0; i < *bidders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runBidder(*server, token, auctionID, n, *bidsEach)
		}(i)
	}
	wg.Wait()
	zlog.Info().Msg("simulation complete")
}

func fetchToken(base, apiKey, apiSecret string) (string, error) {
	body, _ := json.Marshal(map[string]string{"api_key": apiKey, "api_secret": apiSecret})
	resp, err := http.Post(base+"/api/v1/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}
	var data struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", fmt.Errorf("no token in response (status %d)", resp.StatusCode)
	}
	return data.Token, nil
}

func seedAuction(base, token string) (string, error) {
	params := auction.CreateAuctionParams{
		SellerID:           "seller-sim",
		Title:              "Simulation lot",
		DurationSeconds:    60,
		AutoExtend:         true,
		ExtensionThreshold: 10,
		ExtensionDuration:  10,
		MaxExtensions:      3,
	}
	body, _ := json.Marshal(params)

	req, _ := http.NewRequest(http.MethodPost, base+"/api/v1/internal/auctions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}
	var data struct {
		AuctionID string `json:"auction_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", err
	}
	if data.AuctionID == "" {
		return "", fmt.Errorf("no auction in response (status %d)", resp.StatusCode)
	}
	return data.AuctionID, nil
}

func activateAuction(base, token, auctionID string) error {
	req, _ := http.NewRequest(http.MethodPost, base+"/api/v1/internal/auctions/"+auctionID+"/activate", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("activation failed with status %d", resp.StatusCode)
	}
	return nil
}

func runBidder(server, token, auctionID string, n, bids int) {
	logger := zlog.With().Int("bidder", n).Logger()

	url := fmt.Sprintf("ws://%s/ws?token=%s", server, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		logger.Error().Err(err).Msg("dial failed")
		return
	}
	defer conn.Close()

	join, _ := json.Marshal(types.ClientMessage{Type: types.MsgJoin, AuctionID: auctionID})
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		logger.Error().Err(err).Msg("join failed")
		return
	}

	// Reader: track the broadcast price so the next bid clears the floor.
	var mu sync.Mutex
	currentPrice := 0.0
	minIncrement := 1.0
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame struct {
				Type            string   `json:"type"`
				CurrentPrice    *float64 `json:"current_price"`
				MinIncrement    *float64 `json:"min_increment"`
				Amount          *float64 `json:"amount"`
				Sequence        *int64   `json:"sequence"`
				Reason          string   `json:"reason"`
				MinimumRequired *float64 `json:"minimum_required"`
			}
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			switch frame.Type {
			case types.MsgAuctionState:
				mu.Lock()
				if frame.CurrentPrice != nil {
					currentPrice = *frame.CurrentPrice
				}
				if frame.MinIncrement != nil && *frame.MinIncrement > 0 {
					minIncrement = *frame.MinIncrement
				}
				mu.Unlock()
			case types.MsgBidAccepted:
				logger.Info().Float64("amount", *frame.Amount).Int64("sequence", *frame.Sequence).Msg("bid accepted")
			case types.MsgBidRejected:
				ev := logger.Info().Str("reason", frame.Reason)
				if frame.MinimumRequired != nil {
					ev = ev.Float64("minimum_required", *frame.MinimumRequired)
				}
				ev.Msg("bid rejected")
			}
		}
	}()

	for i := 0; i < bids; i++ {
		time.Sleep(time.Duration(100+50*n) * time.Millisecond)

		mu.Lock()
		amount := currentPrice + minIncrement + float64(n)
		mu.Unlock()

		bid, _ := json.Marshal(types.ClientMessage{
			Type:      types.MsgPlaceBid,
			AuctionID: auctionID,
			Amount:    &amount,
			ClientID:  fmt.Sprintf("sim-%d-%d", n, i),
		})
		if err := conn.WriteMessage(websocket.TextMessage, bid); err != nil {
			logger.Error().Err(err).Msg("write failed")
			return
		}
	}

	time.Sleep(time.Second)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
