package exchange

import (
	"context"
	"fmt"
	"sync"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

// OrderConsumer turns dispatched OKX signals into market orders and keeps a
// stop-loss/take-profit algo attached to each bought holding.
type OrderConsumer struct {
	client *Client

	mu         sync.Mutex
	protection map[string]string
}

func NewOrderConsumer(client *Client) *OrderConsumer {
	return &OrderConsumer{client: client, protection: make(map[string]string)}
}

func (o *OrderConsumer) Name() string { return "okx_orders" }

func (o *OrderConsumer) Deliver(ctx context.Context, s models.Signal) error {
	if s.Exchange != "okx" || s.Action == models.ActionNone {
		return nil
	}
	if s.SuggestedQuantity <= 0 {
		return fmt.Errorf("signal %s has no quantity", s.ID)
	}
	inst, err := o.client.Instrument(ctx, s.Symbol)
	if err != nil {
		return err
	}
	size := inst.RoundSize(s.SuggestedQuantity)
	if size < inst.MinSz || size <= 0 {
		logger.Warn("[OKX] signal %s: size %s below minimum %s, skipped", s.ID, formatSize(s.SuggestedQuantity), formatSize(inst.MinSz))
		return nil
	}

	if s.Action == models.ActionSell {
		o.cancelProtection(ctx, s.Symbol)
	}

	fill, err := o.client.SubmitAndPoll(ctx, s.Symbol, string(s.Action), size)
	if err != nil {
		return err
	}
	logger.Info("[OKX] signal %s filled %s @ %.8f fee %.8f", s.ID, formatSize(fill.Filled), fill.AvgPrice, fill.Fee)

	if s.Action == models.ActionBuy && (s.StopLoss > 0 || s.TakeProfit > 0) {
		algoID, err := o.client.PlaceProtection(ctx, inst, inst.RoundSize(fill.Filled), s.StopLoss, s.TakeProfit)
		if err != nil {
			// the market order is done; retrying the signal would buy twice
			logger.Error("[OKX] signal %s: protection not placed: %v", s.ID, err)
			return nil
		}
		o.mu.Lock()
		o.protection[s.Symbol] = algoID
		o.mu.Unlock()
	}
	return nil
}

func (o *OrderConsumer) cancelProtection(ctx context.Context, symbol string) {
	o.mu.Lock()
	algoID, ok := o.protection[symbol]
	delete(o.protection, symbol)
	o.mu.Unlock()
	if !ok {
		return
	}
	if err := o.client.CancelProtection(ctx, symbol, algoID); err != nil {
		logger.Warn("[OKX] cancel algo %s on %s: %v", algoID, symbol, err)
	}
}
