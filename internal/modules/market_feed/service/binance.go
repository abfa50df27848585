package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

const (
	binanceName      = "binance"
	binancePageLimit = 1000
)

type BinanceOptions struct {
	BaseURL   string
	WSURL     string
	PerSecond float64
	Burst     int
	Account   BalanceSource
}

type Binance struct {
	rest    *restClient
	wsURL   string
	dialer  *websocket.Dialer
	account BalanceSource
}

func NewBinance(opts BinanceOptions) *Binance {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.binance.com"
	}
	if opts.WSURL == "" {
		opts.WSURL = "wss://stream.binance.com:9443/ws"
	}
	return &Binance{
		rest:    newRESTClient(binanceName, opts.BaseURL, opts.PerSecond, opts.Burst),
		wsURL:   strings.TrimRight(opts.WSURL, "/"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		account: opts.Account,
	}
}

func (b *Binance) Name() string { return binanceName }

func (b *Binance) Balance(ctx context.Context) (float64, error) {
	if b.account == nil {
		return 0, ErrNoCredentials
	}
	return b.account.Balance(ctx, "USDT")
}

// Candles reads /api/v3/klines. The last kline is usually still open and is
// dropped unless its close time has passed.
func (b *Binance) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("symbol", binanceSymbol(symbol))
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(min(limit+1, binancePageLimit)))

	var rows [][]any
	if err := b.rest.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, err
	}
	out := b.rows(symbol, timeframe, rows, time.Now())
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// CandlesBetween pages forward with startTime/endTime.
func (b *Binance) CandlesBetween(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	var out []models.Candle
	cursor := from
	for cursor.Before(to) {
		q := url.Values{}
		q.Set("symbol", binanceSymbol(symbol))
		q.Set("interval", timeframe)
		q.Set("limit", strconv.Itoa(binancePageLimit))
		q.Set("startTime", strconv.FormatInt(cursor.UnixMilli(), 10))
		q.Set("endTime", strconv.FormatInt(to.UnixMilli()-1, 10))

		var rows [][]any
		if err := b.rest.get(ctx, "/api/v3/klines", q, &rows); err != nil {
			return nil, err
		}
		page := b.rows(symbol, timeframe, rows, time.Now())
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			if !c.Start.Before(cursor) && c.Start.Before(to) {
				out = append(out, c)
			}
		}
		next := page[len(page)-1].Start.Add(time.Millisecond)
		if !next.After(cursor) {
			break
		}
		cursor = next
	}
	return out, nil
}

// rows converts [openTime, o, h, l, c, v, closeTime, ...] klines.
func (b *Binance) rows(symbol, timeframe string, rows [][]any, now time.Time) []models.Candle {
	out := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		openMs, ok1 := row[0].(float64)
		closeMs, ok2 := row[6].(float64)
		if !ok1 || !ok2 {
			continue
		}
		if time.UnixMilli(int64(closeMs)).After(now) {
			continue
		}
		c, ok := binanceCandle(symbol, timeframe, int64(openMs), str(row[1]), str(row[2]), str(row[3]), str(row[4]), str(row[5]))
		if !ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func binanceCandle(symbol, timeframe string, openMs int64, o, h, l, c, v string) (models.Candle, bool) {
	open, err1 := strconv.ParseFloat(o, 64)
	high, err2 := strconv.ParseFloat(h, 64)
	low, err3 := strconv.ParseFloat(l, 64)
	closep, err4 := strconv.ParseFloat(c, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || closep <= 0 {
		return models.Candle{}, false
	}
	vol, _ := strconv.ParseFloat(v, 64)
	return models.Candle{
		Symbol:    symbol,
		Exchange:  binanceName,
		Timeframe: timeframe,
		Start:     time.UnixMilli(openMs).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closep,
		Volume:    vol,
	}, true
}

type binanceKlineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		Start    int64  `json:"t"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// Stream reads <symbol>@kline_<tf>. Binance pings the client; gorilla's
// default ping handler answers.
func (b *Binance) Stream(ctx context.Context, symbol, timeframe string, sink Sink) error {
	u := fmt.Sprintf("%s/%s@kline_%s", b.wsURL, strings.ToLower(binanceSymbol(symbol)), timeframe)
	conn, _, err := b.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return &models.TransientFeedError{Exchange: binanceName, Op: "dial", Err: err}
	}
	logger.Info("[WS] binance connected %s", u)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &models.TransientFeedError{Exchange: binanceName, Op: "read", Err: err}
		}
		sink.Heartbeat(time.Now())

		var ev binanceKlineEvent
		if err := sonic.Unmarshal(msg, &ev); err != nil || ev.Event != "kline" || !ev.Kline.Closed {
			continue
		}
		k := ev.Kline
		c, ok := binanceCandle(symbol, timeframe, k.Start, k.Open, k.High, k.Low, k.Close, k.Volume)
		if !ok {
			continue
		}
		sink.Candle(c)
	}
}

// binanceSymbol accepts both BTC-USDT and BTCUSDT.
func binanceSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}
