package apihttp

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradepilot/internal/types"
)

func (b submitOrderRequest) toOrderRequest() (types.OrderRequest, error) {
	var req types.OrderRequest

	req.Symbol = strings.ToUpper(strings.TrimSpace(b.Symbol))
	if req.Symbol == "" {
		return req, fmt.Errorf("symbol is required")
	}

	switch types.OrderSide(strings.ToLower(b.Side)) {
	case types.Buy:
		req.Side = types.Buy
	case types.Sell:
		req.Side = types.Sell
	default:
		return req, fmt.Errorf("side must be buy or sell, got %q", b.Side)
	}

	switch t := types.OrderType(strings.ToLower(b.Type)); t {
	case "", types.Market:
		req.Type = types.Market
	case types.Limit, types.Stop, types.StopLimit, types.TrailingStop:
		req.Type = t
	default:
		return req, fmt.Errorf("unsupported order type %q", b.Type)
	}

	qty, err := decimal.NewFromString(strings.TrimSpace(b.Qty))
	if err != nil {
		return req, fmt.Errorf("invalid qty %q: %w", b.Qty, err)
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return req, fmt.Errorf("qty must be positive")
	}
	req.Qty = qty

	if b.LimitPrice != nil {
		price, err := decimal.NewFromString(strings.TrimSpace(*b.LimitPrice))
		if err != nil {
			return req, fmt.Errorf("invalid limit_price %q: %w", *b.LimitPrice, err)
		}
		req.LimitPrice = &price
	} else if req.Type == types.Limit || req.Type == types.StopLimit {
		return req, fmt.Errorf("limit_price is required for %s orders", req.Type)
	}
	return req, nil
}
