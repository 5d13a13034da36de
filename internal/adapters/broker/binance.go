package broker

// binance.go — live execution against the Binance spot and USD-M
// futures REST APIs. Requests are HMAC-SHA256 signed; reads retry with
// exponential backoff, order placement never does (a timed-out order
// may still have been accepted, reconciliation happens on the next
// balance refresh).

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

const (
	defaultSpotBase    = "https://api.binance.com"
	defaultFuturesBase = "https://fapi.binance.com"

	// Order endpoints weigh heavier than reads; stay well under the
	// 1200 weight/min account limit.
	requestsPerSec = 8

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Binance implements ports.Broker against the real exchange.
type Binance struct {
	http          *http.Client
	spotBase      string
	futuresBase   string
	apiKey        string
	apiSecret     string
	symbol        string
	futuresSymbol string
	limiter       *rate.Limiter
}

// NewBinance builds a live broker. An empty base URL selects production.
func NewBinance(spotBase, apiKey, apiSecret, symbol, futuresSymbol string) *Binance {
	if spotBase == "" {
		spotBase = defaultSpotBase
	}
	return &Binance{
		http:          &http.Client{Timeout: 10 * time.Second},
		spotBase:      spotBase,
		futuresBase:   defaultFuturesBase,
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		symbol:        symbol,
		futuresSymbol: futuresSymbol,
		limiter:       rate.NewLimiter(requestsPerSec, 4),
	}
}

type orderResponse struct {
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	QuoteQty    string `json:"cummulativeQuoteQty"`
	AvgPrice    string `json:"avgPrice"`
}

// PlaceSpotBuy submits a limit buy at the grid price.
func (b *Binance) PlaceSpotBuy(ctx context.Context, timestampMs int64, price, qty float64, gridID string) (domain.OrderRecord, error) {
	params := url.Values{}
	params.Set("symbol", b.symbol)
	params.Set("side", "BUY")
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("price", formatFloat(price))
	params.Set("quantity", formatFloat(qty))

	var resp orderResponse
	if err := b.signedRequest(ctx, http.MethodPost, b.spotBase+"/api/v3/order", params, &resp); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("broker.PlaceSpotBuy: %w", err)
	}

	return domain.OrderRecord{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol:      b.symbol,
		Side:        domain.SideBuy,
		Type:        "LIMIT",
		Status:      resp.Status,
		Price:       price,
		Qty:         qty,
		ExecutedQty: parseFloat(resp.ExecutedQty),
		QuoteQty:    parseFloat(resp.QuoteQty),
		GridID:      gridID,
		Timestamp:   timestampMs,
	}, nil
}

// PlaceSpotSell submits a limit sell for the whole lot.
func (b *Binance) PlaceSpotSell(ctx context.Context, timestampMs int64, position domain.Position, sellPrice float64) (domain.OrderRecord, error) {
	params := url.Values{}
	params.Set("symbol", b.symbol)
	params.Set("side", "SELL")
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("price", formatFloat(sellPrice))
	params.Set("quantity", formatFloat(position.Qty))

	var resp orderResponse
	if err := b.signedRequest(ctx, http.MethodPost, b.spotBase+"/api/v3/order", params, &resp); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("broker.PlaceSpotSell: %w", err)
	}

	return domain.OrderRecord{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol:      b.symbol,
		Side:        domain.SideSell,
		Type:        "LIMIT",
		Status:      resp.Status,
		Price:       sellPrice,
		Qty:         position.Qty,
		ExecutedQty: parseFloat(resp.ExecutedQty),
		QuoteQty:    parseFloat(resp.QuoteQty),
		GridID:      position.GroupID,
		Timestamp:   timestampMs,
	}, nil
}

// OpenHedgeShort submits a futures market sell and returns the average
// fill price (the requested price when the exchange omits it).
func (b *Binance) OpenHedgeShort(ctx context.Context, _ int64, qty, price float64, reason string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", b.futuresSymbol)
	params.Set("side", "SELL")
	params.Set("type", "MARKET")
	params.Set("quantity", formatFloat(qty))

	var resp orderResponse
	if err := b.signedRequest(ctx, http.MethodPost, b.futuresBase+"/fapi/v1/order", params, &resp); err != nil {
		return 0, fmt.Errorf("broker.OpenHedgeShort: %w", err)
	}

	slog.Info("broker: hedge short placed",
		"symbol", b.futuresSymbol, "qty", qty, "reason", reason)

	if avg := parseFloat(resp.AvgPrice); avg > 0 {
		return avg, nil
	}
	return price, nil
}

// CloseHedge buys back qty of the short with a reduce-only market order.
func (b *Binance) CloseHedge(ctx context.Context, _ int64, qty, _ float64, reason string) error {
	params := url.Values{}
	params.Set("symbol", b.futuresSymbol)
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("reduceOnly", "true")
	params.Set("quantity", formatFloat(qty))

	var resp orderResponse
	if err := b.signedRequest(ctx, http.MethodPost, b.futuresBase+"/fapi/v1/order", params, &resp); err != nil {
		return fmt.Errorf("broker.CloseHedge: %w", err)
	}

	slog.Info("broker: hedge closed",
		"symbol", b.futuresSymbol, "qty", qty, "reason", reason)
	return nil
}

// RefreshBalances overwrites the ledger's spendable sides from the
// exchange: spot USDT free balance and futures available margin.
func (b *Binance) RefreshBalances(ctx context.Context, ledger *domain.CapitalLedger) error {
	var account struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := b.signedRequest(ctx, http.MethodGet, b.spotBase+"/api/v3/account", url.Values{}, &account); err != nil {
		return fmt.Errorf("broker.RefreshBalances: spot account: %w", err)
	}
	for _, bal := range account.Balances {
		if bal.Asset == "USDT" {
			ledger.AvailableCapital = parseFloat(bal.Free)
			break
		}
	}

	var futures []struct {
		Asset     string `json:"asset"`
		Available string `json:"availableBalance"`
	}
	if err := b.signedRequest(ctx, http.MethodGet, b.futuresBase+"/fapi/v2/balance", url.Values{}, &futures); err != nil {
		return fmt.Errorf("broker.RefreshBalances: futures balance: %w", err)
	}
	for _, bal := range futures {
		if bal.Asset == "USDT" {
			ledger.FuturesAvailableMargin = parseFloat(bal.Available)
			break
		}
	}

	return nil
}

// signedRequest signs the query, sends it, and decodes the JSON reply.
// Only GETs retry on 429/5xx.
func (b *Binance) signedRequest(ctx context.Context, method, endpoint string, params url.Values, out any) error {
	attempts := 1
	if method == http.MethodGet {
		attempts = maxRetries + 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		query := params.Encode()
		query += "&signature=" + b.sign(query)

		var req *http.Request
		var err error
		if method == http.MethodGet {
			req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+query, nil)
		} else {
			req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(query))
			if req != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
		}
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("X-MBX-APIKEY", b.apiKey)

		resp, err := b.http.Do(req)
		if err != nil {
			if attempt == attempts-1 {
				return fmt.Errorf("request failed: %w", err)
			}
			b.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == attempts-1 {
				return fmt.Errorf("server error %d", resp.StatusCode)
			}
			slog.Warn("broker: retrying request", "status", resp.StatusCode, "attempt", attempt+1)
			b.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (b *Binance) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Binance) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
