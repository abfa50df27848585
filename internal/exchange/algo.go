package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// PlaceProtection attaches a one-cancels-other stop-loss/take-profit algo
// that sells size of a spot holding. Either trigger may be zero.
func (c *Client) PlaceProtection(ctx context.Context, inst Instrument, size, stopLoss, takeProfit float64) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("PlaceProtection: size <= 0")
	}
	if stopLoss <= 0 && takeProfit <= 0 {
		return "", fmt.Errorf("PlaceProtection: no trigger")
	}

	body := map[string]string{
		"instId":  inst.InstID,
		"tdMode":  "cash",
		"side":    "sell",
		"ordType": "conditional",
		"sz":      formatSize(size),
	}
	if stopLoss > 0 && takeProfit > 0 {
		body["ordType"] = "oco"
	}
	if takeProfit > 0 {
		body["tpTriggerPx"] = formatPrice(inst.RoundPrice(takeProfit))
		body["tpOrdPx"] = "-1"
		body["tpTriggerPxType"] = "last"
	}
	if stopLoss > 0 {
		body["slTriggerPx"] = formatPrice(inst.RoundPrice(stopLoss))
		body["slOrdPx"] = "-1"
		body["slTriggerPxType"] = "last"
	}

	var r struct {
		Data []struct {
			AlgoID string `json:"algoId"`
			SCode  string `json:"sCode"`
			SMsg   string `json:"sMsg"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v5/trade/order-algo", body, &r); err != nil {
		return "", err
	}
	if len(r.Data) > 0 && r.Data[0].SCode != "" && r.Data[0].SCode != "0" {
		return "", fmt.Errorf("PlaceProtection rejected: sCode=%s sMsg=%s", r.Data[0].SCode, r.Data[0].SMsg)
	}
	if len(r.Data) == 0 || r.Data[0].AlgoID == "" {
		return "", fmt.Errorf("PlaceProtection: empty algoId")
	}
	return r.Data[0].AlgoID, nil
}

// CancelProtection removes a pending algo before the position is sold.
func (c *Client) CancelProtection(ctx context.Context, instID, algoID string) error {
	body := []map[string]string{{"instId": instID, "algoId": algoID}}
	return c.do(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", body, nil)
}
