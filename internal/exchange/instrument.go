package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// Instrument holds the spot trading rules needed to shape an order.
type Instrument struct {
	InstID string
	LotSz  float64
	MinSz  float64
	TickSz float64
}

// RoundSize floors size to the lot step.
func (i Instrument) RoundSize(size float64) float64 {
	return roundDown(size, i.LotSz)
}

// RoundPrice rounds price to the tick step.
func (i Instrument) RoundPrice(price float64) float64 {
	if i.TickSz <= 0 {
		return price
	}
	step := decimal.NewFromFloat(i.TickSz)
	return decimal.NewFromFloat(price).Div(step).Round(0).Mul(step).InexactFloat64()
}

func roundDown(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(v).Div(s).Floor().Mul(s).InexactFloat64()
}

func (c *Client) Instrument(ctx context.Context, instID string) (Instrument, error) {
	q := url.Values{}
	q.Set("instType", "SPOT")
	q.Set("instId", instID)

	var r struct {
		Data []struct {
			InstID string `json:"instId"`
			State  string `json:"state"`
			LotSz  string `json:"lotSz"`
			MinSz  string `json:"minSz"`
			TickSz string `json:"tickSz"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v5/public/instruments?"+q.Encode(), nil, &r); err != nil {
		return Instrument{}, err
	}
	if len(r.Data) == 0 {
		return Instrument{}, fmt.Errorf("instrument %s not found", instID)
	}
	d := r.Data[0]
	if d.State != "" && d.State != "live" {
		return Instrument{}, fmt.Errorf("instrument %s not live: state=%s", instID, d.State)
	}
	inst := Instrument{
		InstID: d.InstID,
		LotSz:  parseDecimal(d.LotSz),
		MinSz:  parseDecimal(d.MinSz),
		TickSz: parseDecimal(d.TickSz),
	}
	if inst.LotSz <= 0 || inst.TickSz <= 0 {
		return Instrument{}, fmt.Errorf("instrument %s: bad lotSz=%q tickSz=%q", instID, d.LotSz, d.TickSz)
	}
	return inst, nil
}
