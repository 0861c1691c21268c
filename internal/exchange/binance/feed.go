package binance

import (
	"context"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"riptide/internal/feed"
	"riptide/internal/logger"
)

// Feed streams aggregate trades over the futures websocket as ticks,
// merged with the best bid/ask from the book ticker stream.
type Feed struct{}

func NewFeed(testnet bool) *Feed {
	futures.UseTestnet = testnet
	return &Feed{}
}

type bookQuote struct {
	bid, ask float64
}

func (f *Feed) Subscribe(ctx context.Context, symbols []string) (<-chan feed.Tick, error) {
	out := make(chan feed.Tick, 1024)

	var mu sync.RWMutex
	quotes := make(map[string]bookQuote, len(symbols))

	emit := func(t feed.Tick) {
		select {
		case out <- t:
		default:
			// a slow consumer sheds ticks rather than backing up the socket
		}
	}

	tradeHandler := func(event *futures.WsAggTradeEvent) {
		if event == nil {
			return
		}
		tick := feed.Tick{
			Symbol: event.Symbol,
			Price:  parseFloat(event.Price),
			Volume: parseFloat(event.Quantity),
			At:     time.UnixMilli(event.Time),
		}
		if tick.Price <= 0 {
			return
		}
		mu.RLock()
		q := quotes[event.Symbol]
		mu.RUnlock()
		tick.Bid, tick.Ask = q.bid, q.ask
		emit(tick)
	}
	bookHandler := func(event *futures.WsBookTickerEvent) {
		if event == nil {
			return
		}
		bid, ask := parseFloat(event.BestBidPrice), parseFloat(event.BestAskPrice)
		if bid <= 0 || ask <= bid {
			return
		}
		mu.Lock()
		quotes[event.Symbol] = bookQuote{bid: bid, ask: ask}
		mu.Unlock()
		emit(feed.Tick{
			Symbol: event.Symbol,
			Price:  (bid + ask) / 2,
			Bid:    bid,
			Ask:    ask,
			At:     time.UnixMilli(event.Time),
		})
	}
	errHandler := func(err error) {
		logger.Errorf("binance tick stream: %v", err)
	}

	tradeDoneC, tradeStopC, err := futures.WsCombinedAggTradeServe(symbols, tradeHandler, errHandler)
	if err != nil {
		return nil, err
	}
	bookDoneC, bookStopC, err := futures.WsCombinedBookTickerServe(symbols, bookHandler, errHandler)
	if err != nil {
		close(tradeStopC)
		<-tradeDoneC
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			close(tradeStopC)
			close(bookStopC)
			<-tradeDoneC
			<-bookDoneC
		case <-tradeDoneC:
			close(bookStopC)
			<-bookDoneC
		case <-bookDoneC:
			close(tradeStopC)
			<-tradeDoneC
		}
		close(out)
	}()
	return out, nil
}
