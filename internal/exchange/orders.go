package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"trade_engine/pkg/logger"
)

type OrderState string

const (
	OrderLive            OrderState = "live"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderFilled          OrderState = "filled"
	OrderCanceled        OrderState = "canceled"
)

func (s OrderState) Final() bool {
	return s == OrderFilled || s == OrderCanceled
}

type Fill struct {
	OrderID  string
	State    OrderState
	Filled   float64
	AvgPrice float64
	Fee      float64
}

func formatSize(size float64) string {
	return decimal.NewFromFloat(size).Round(8).String()
}

// PlaceMarket submits a spot market order in base currency units.
func (c *Client) PlaceMarket(ctx context.Context, instID, side string, size float64) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("PlaceMarket: size <= 0")
	}
	if side != "buy" && side != "sell" {
		return "", fmt.Errorf("PlaceMarket: unsupported side=%q", side)
	}
	body := map[string]string{
		"instId":  instID,
		"tdMode":  "cash",
		"side":    side,
		"ordType": "market",
		"sz":      formatSize(size),
		"tgtCcy":  "base_ccy",
	}

	var r struct {
		Data []struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v5/trade/order", body, &r); err != nil {
		return "", err
	}
	if len(r.Data) == 0 || r.Data[0].OrdID == "" {
		return "", fmt.Errorf("PlaceMarket: empty ordId")
	}
	if r.Data[0].SCode != "" && r.Data[0].SCode != "0" {
		return "", fmt.Errorf("PlaceMarket rejected: sCode=%s sMsg=%s", r.Data[0].SCode, r.Data[0].SMsg)
	}
	return r.Data[0].OrdID, nil
}

func (c *Client) Order(ctx context.Context, instID, ordID string) (Fill, error) {
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("ordId", ordID)

	var r struct {
		Data []struct {
			OrdID     string `json:"ordId"`
			State     string `json:"state"`
			AccFillSz string `json:"accFillSz"`
			AvgPx     string `json:"avgPx"`
			Fee       string `json:"fee"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v5/trade/order?"+q.Encode(), nil, &r); err != nil {
		return Fill{}, err
	}
	if len(r.Data) == 0 {
		return Fill{}, fmt.Errorf("order %s not found", ordID)
	}
	d := r.Data[0]
	fill := Fill{OrderID: d.OrdID, State: OrderState(d.State)}
	fill.Filled = parseDecimal(d.AccFillSz)
	fill.AvgPrice = parseDecimal(d.AvgPx)
	// okx reports fees as negative amounts
	fill.Fee = -parseDecimal(d.Fee)
	return fill, nil
}

// SubmitAndPoll places a market order and polls it until a final state.
func (c *Client) SubmitAndPoll(ctx context.Context, instID, side string, size float64) (Fill, error) {
	ordID, err := c.PlaceMarket(ctx, instID, side, size)
	if err != nil {
		return Fill{}, err
	}
	logger.Info("[OKX] order %s placed: %s %s %s", ordID, side, formatSize(size), instID)

	var last Fill
	for i := 0; i < c.pollAttempts; i++ {
		last, err = c.Order(ctx, instID, ordID)
		if err == nil && last.State.Final() {
			if last.State == OrderCanceled && last.Filled == 0 {
				return last, fmt.Errorf("order %s canceled without fill", ordID)
			}
			return last, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(c.pollEvery):
		}
	}
	return last, fmt.Errorf("order %s still %s after %d polls", ordID, last.State, c.pollAttempts)
}

func parseDecimal(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
