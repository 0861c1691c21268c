// Package binance adapts the futures REST API to the Submitter contract.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"riptide/internal/exchange"
	"riptide/internal/logger"
	"riptide/internal/order"
)

type Config struct {
	APIKey      string
	APISecret   string
	Testnet     bool
	HTTPTimeout time.Duration
}

type Adapter struct {
	cfg    Config
	client *futures.Client

	mu     sync.Mutex
	closed bool
	fills  chan exchange.Fill
}

func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, fmt.Errorf("binance api credentials are required")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	futures.UseTestnet = cfg.Testnet
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	client.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	return &Adapter{
		cfg:    cfg,
		client: client,
		fills:  make(chan exchange.Fill, 256),
	}, nil
}

// PlaceOrder submits a market or limit order. Market orders use the RESULT
// response type so the execution report arrives in the same round trip and
// can be forwarded on the fill channel.
func (a *Adapter) PlaceOrder(ctx context.Context, o order.Order) error {
	svc := a.client.NewCreateOrderService().
		Symbol(o.Symbol).
		Side(sideOf(o.Side)).
		Quantity(formatQty(o.Remaining()))

	switch o.Type {
	case order.TypeLimit:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatQty(o.Price))
	default:
		svc = svc.Type(futures.OrderTypeMarket).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return fmt.Errorf("binance create order: %w", err)
	}
	logger.Infof("binance order accepted: %s %s %s id=%d status=%s",
		o.Symbol, o.Side, formatQty(o.Remaining()), res.OrderID, res.Status)

	executed := parseFloat(res.ExecutedQuantity)
	avgPrice := parseFloat(res.AvgPrice)
	if executed <= 0 || avgPrice <= 0 {
		return nil
	}
	fill := exchange.Fill{
		OrderID: o.ID,
		FillID:  fmt.Sprintf("binance-%d", res.OrderID),
		Symbol:  o.Symbol,
		Size:    executed,
		Price:   avgPrice,
		At:      time.Now(),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	select {
	case a.fills <- fill:
	default:
		logger.Warnf("binance fill channel full, dropping fill for order %s", o.ID)
	}
	return nil
}

func (a *Adapter) Fills() <-chan exchange.Fill { return a.fills }

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	close(a.fills)
	return nil
}

func sideOf(s order.Side) futures.SideType {
	if s == order.SideBuy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
