package binance

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	appconfig "tradersentiment/config"
	"tradersentiment/internal/metrics"
	"tradersentiment/logger"
	"tradersentiment/models"
)

const (
	// LiveAccount labels every live trade row.
	LiveAccount = "Live_Market_User"
	maxLimit    = 1000
)

// RecentTradesReader fetches the latest public futures trades for a symbol.
// Failures are logged and surface as an empty result.
type RecentTradesReader struct {
	client  *futures.Client
	limiter *rate.Limiter
	cfg     appconfig.LiveConfig
	log     *logger.Log
}

// NewRecentTradesReader builds a reader from the live feed config. An empty
// BaseURL keeps the client's default futures endpoint.
func NewRecentTradesReader(cfg appconfig.LiveConfig) *RecentTradesReader {
	log := logger.GetLogger()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: timeout}
	if cfg.BaseURL != "" {
		client.SetApiEndpoint(strings.TrimRight(cfg.BaseURL, "/"))
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}

	log.WithComponent("live_reader").WithFields(logger.Fields{
		"base_url": client.BaseURL,
		"rps":      rps,
		"burst":    burst,
		"timeout":  timeout,
	}).Info("live trade reader initialized")

	return &RecentTradesReader{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		cfg:     cfg,
		log:     log,
	}
}

// Fetch returns up to limit recent trades for symbol, newest last as the
// exchange returns them. Empty symbol and non-positive limit fall back to
// the configured defaults.
func (r *RecentTradesReader) Fetch(ctx context.Context, symbol string, limit int) []models.LiveTrade {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		symbol = r.cfg.Symbol
	}
	if limit <= 0 {
		limit = r.cfg.Limit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	log := r.log.WithComponent("live_reader").WithFields(logger.Fields{
		"symbol":    symbol,
		"limit":     limit,
		"operation": "fetch_recent_trades",
	})

	if err := r.limiter.Wait(ctx); err != nil {
		log.WithError(err).Warn("rate limiter wait aborted")
		r.record(false, 0)
		return []models.LiveTrade{}
	}

	start := time.Now()
	trades, err := r.client.NewRecentTradesService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch recent trades")
		r.record(false, 0)
		return []models.LiveTrade{}
	}
	logger.LogPerformanceEntry(log, "live_reader", "api_request", time.Since(start), logger.Fields{"symbol": symbol})

	out := make([]models.LiveTrade, 0, len(trades))
	for _, t := range trades {
		lt, err := convertTrade(t)
		if err != nil {
			log.WithError(err).Warn("failed to parse trade")
			r.record(false, 0)
			return []models.LiveTrade{}
		}
		out = append(out, lt)
	}

	logger.LogDataFlowEntry(log, "binance_api", "live_feed", len(out), "trades")
	r.record(true, len(out))
	return out
}

func (r *RecentTradesReader) record(ok bool, rows int) {
	metrics.IncrementLiveFetch(ok)
	if ok {
		logger.IncrementLiveFetch(rows)
	}
}

func convertTrade(t *futures.Trade) (models.LiveTrade, error) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return models.LiveTrade{}, err
	}
	size, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil {
		return models.LiveTrade{}, err
	}
	side := "Buy"
	if t.IsBuyerMaker {
		side = "Sell"
	}
	ts := time.UnixMilli(t.Time).UTC()
	return models.LiveTrade{
		Time:        ts,
		Side:        side,
		Price:       price,
		Size:        size,
		VolumeUSD:   price * size,
		Account:     LiveAccount,
		TotalPnL:    0,
		AvgLeverage: 1,
		Date:        models.DateOf(ts),
	}, nil
}

// Summary is the headline of a live trade sample.
type Summary struct {
	Symbol     string  `json:"symbol"`
	Trades     int     `json:"trades"`
	LastPrice  float64 `json:"last_price"`
	VolumeUSD  float64 `json:"volume_usd"`
	LatestSide string  `json:"latest_side"`
}

// Summarize reports the last price, total notional and latest side of
// trades. An empty sample yields a zero summary.
func Summarize(symbol string, trades []models.LiveTrade) Summary {
	s := Summary{Symbol: symbol, Trades: len(trades)}
	if len(trades) == 0 {
		return s
	}
	latest := trades[0]
	for _, t := range trades {
		s.VolumeUSD += t.VolumeUSD
		if !t.Time.Before(latest.Time) {
			latest = t
		}
	}
	s.LastPrice = latest.Price
	s.LatestSide = latest.Side
	return s
}
