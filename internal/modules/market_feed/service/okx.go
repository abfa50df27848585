package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

const (
	okxName      = "okx"
	okxPageLimit = 100
	// OKX drops idle connections with 4004 after 30s
	okxPingEvery = 20 * time.Second
)

var ErrNoCredentials = errors.New("account credentials are not configured")

type OKXOptions struct {
	BaseURL   string
	WSURL     string
	PerSecond float64
	Burst     int
	Account   BalanceSource
}

type OKX struct {
	rest      *restClient
	wsURL     string
	dialer    *websocket.Dialer
	pingEvery time.Duration
	account   BalanceSource
}

func NewOKX(opts OKXOptions) *OKX {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.okx.com"
	}
	if opts.WSURL == "" {
		opts.WSURL = "wss://ws.okx.com:8443/ws/v5/business"
	}
	return &OKX{
		rest:      newRESTClient(okxName, opts.BaseURL, opts.PerSecond, opts.Burst),
		wsURL:     opts.WSURL,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pingEvery: okxPingEvery,
		account:   opts.Account,
	}
}

func (o *OKX) Name() string { return okxName }

func (o *OKX) Balance(ctx context.Context) (float64, error) {
	if o.account == nil {
		return 0, ErrNoCredentials
	}
	return o.account.Balance(ctx, "USDT")
}

type okxCandlesResp struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// Candles reads /api/v5/market/candles. Rows come newest first and the
// newest row may still be open (confirm = "0").
func (o *OKX) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = okxPageLimit
	}
	bar, err := okxBar(timeframe)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("instId", symbol)
	q.Set("bar", bar)
	q.Set("limit", strconv.Itoa(min(limit, 300)))

	var r okxCandlesResp
	if err := o.rest.get(ctx, "/api/v5/market/candles", q, &r); err != nil {
		return nil, err
	}
	if r.Code != "0" {
		return nil, fmt.Errorf("okx candles error: code=%s msg=%s", r.Code, r.Msg)
	}
	return o.rows(symbol, timeframe, r.Data), nil
}

// CandlesBetween walks /api/v5/market/history-candles backwards from to.
func (o *OKX) CandlesBetween(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	bar, err := okxBar(timeframe)
	if err != nil {
		return nil, err
	}
	var pages [][]models.Candle
	cursor := to
	for cursor.After(from) {
		q := url.Values{}
		q.Set("instId", symbol)
		q.Set("bar", bar)
		q.Set("limit", strconv.Itoa(okxPageLimit))
		q.Set("after", strconv.FormatInt(cursor.UnixMilli(), 10))

		var r okxCandlesResp
		if err := o.rest.get(ctx, "/api/v5/market/history-candles", q, &r); err != nil {
			return nil, err
		}
		if r.Code != "0" {
			return nil, fmt.Errorf("okx history error: code=%s msg=%s", r.Code, r.Msg)
		}
		page := o.rows(symbol, timeframe, r.Data)
		if len(page) == 0 {
			break
		}
		pages = append(pages, page)
		if !page[0].Start.Before(cursor) {
			break
		}
		cursor = page[0].Start
	}

	var out []models.Candle
	for i := len(pages) - 1; i >= 0; i-- {
		for _, c := range pages[i] {
			if c.Start.Before(from) || !c.Start.Before(to) {
				continue
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// rows converts [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm] rows to
// oldest-first closed candles.
func (o *OKX) rows(symbol, timeframe string, data [][]string) []models.Candle {
	out := make([]models.Candle, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		c, closed, ok := parseOKXRow(symbol, timeframe, data[i])
		if !ok || !closed {
			continue
		}
		out = append(out, c)
	}
	return out
}

func parseOKXRow(symbol, timeframe string, row []string) (c models.Candle, closed, ok bool) {
	if len(row) < 5 {
		return c, false, false
	}
	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return c, false, false
	}
	open, err1 := strconv.ParseFloat(row[1], 64)
	high, err2 := strconv.ParseFloat(row[2], 64)
	low, err3 := strconv.ParseFloat(row[3], 64)
	closep, err4 := strconv.ParseFloat(row[4], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || closep <= 0 {
		return c, false, false
	}
	var vol float64
	if len(row) >= 6 {
		vol, _ = strconv.ParseFloat(row[5], 64)
	}
	// confirm is always the last element
	closed = len(row) < 9 || row[len(row)-1] == "1"
	return models.Candle{
		Symbol:    symbol,
		Exchange:  okxName,
		Timeframe: timeframe,
		Start:     time.UnixMilli(tsMs).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closep,
		Volume:    vol,
	}, closed, true
}

type okxFrame struct {
	Event string `json:"event"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data [][]string `json:"data"`
}

// Stream subscribes to the candle<tf> channel on the business endpoint.
func (o *OKX) Stream(ctx context.Context, symbol, timeframe string, sink Sink) error {
	bar, err := okxBar(timeframe)
	if err != nil {
		return err
	}
	channel := "candle" + bar

	conn, _, err := o.dialer.DialContext(ctx, o.wsURL, nil)
	if err != nil {
		return &models.TransientFeedError{Exchange: okxName, Op: "dial", Err: err}
	}
	logger.Info("[WS] okx connected %s %s", channel, symbol)

	var writeMu sync.Mutex
	write := func(v any) error {
		b, err := sonic.Marshal(v)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	sub := map[string]any{
		"op":   "subscribe",
		"args": []map[string]string{{"channel": channel, "instId": symbol}},
	}
	if err := write(sub); err != nil {
		_ = conn.Close()
		return &models.TransientFeedError{Exchange: okxName, Op: "subscribe", Err: err}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(o.pingEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-stop:
				_ = conn.Close()
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				writeMu.Unlock()
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &models.TransientFeedError{Exchange: okxName, Op: "read", Err: err}
		}
		sink.Heartbeat(time.Now())
		if strings.TrimSpace(string(msg)) == "pong" {
			continue
		}

		var frame okxFrame
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Event == "error" {
			return fmt.Errorf("okx subscribe %s %s: %s", channel, symbol, frame.Msg)
		}
		if frame.Arg.Channel != channel || len(frame.Data) == 0 {
			continue
		}
		for _, row := range frame.Data {
			c, closed, ok := parseOKXRow(frame.Arg.InstID, timeframe, row)
			if !ok || !closed {
				continue
			}
			sink.Candle(c)
		}
	}
}

func okxBar(tf string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(tf)) {
	case "1m", "3m", "5m", "15m", "30m":
		return strings.ToLower(tf), nil
	case "60m", "1h":
		return "1H", nil
	case "2h":
		return "2H", nil
	case "4h":
		return "4H", nil
	case "6h":
		return "6H", nil
	case "12h":
		return "12H", nil
	case "1d":
		return "1D", nil
	case "1w":
		return "1W", nil
	}
	return "", fmt.Errorf("unsupported timeframe for OKX bar: %q", tf)
}
