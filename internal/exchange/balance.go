package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Balance returns the available trading balance for ccy.
func (c *Client) Balance(ctx context.Context, ccy string) (float64, error) {
	ccy = strings.ToUpper(strings.TrimSpace(ccy))
	q := url.Values{}
	q.Set("ccy", ccy)

	var r struct {
		Data []struct {
			Details []struct {
				Ccy      string `json:"ccy"`
				AvailBal string `json:"availBal"`
				CashBal  string `json:"cashBal"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v5/account/balance?"+q.Encode(), nil, &r); err != nil {
		return 0, err
	}
	for _, acc := range r.Data {
		for _, d := range acc.Details {
			if d.Ccy != ccy {
				continue
			}
			if d.AvailBal != "" {
				return parseDecimal(d.AvailBal), nil
			}
			return parseDecimal(d.CashBal), nil
		}
	}
	return 0, fmt.Errorf("balance for %s not found", ccy)
}
