package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"tickerplant/internal/schema"
)

const _binanceBaseWsUrl = "wss://stream.binance.com:9443/ws"

// Binance streams trades and book tickers for every registry instrument
// over the public market data websocket.
type Binance struct {
	reg *schema.Registry
	url string
}

// NewBinance creates a binance feed adapter.
func NewBinance(reg *schema.Registry) *Binance {
	return &Binance{reg: reg, url: _binanceBaseWsUrl}
}

// Name identifies the adapter.
func (b *Binance) Name() string {
	return "binance"
}

type binanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type binanceSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

type binanceTrade struct {
	EventType string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	Price     decimal.Decimal `json:"p"`
	Quantity  decimal.Decimal `json:"q"`
	TradeTime int64           `json:"T"`
}

type binanceBookTicker struct {
	UpdateID int64           `json:"u"`
	Symbol   string          `json:"s"`
	BidPrice decimal.Decimal `json:"b"`
	BidQty   decimal.Decimal `json:"B"`
	AskPrice decimal.Decimal `json:"a"`
	AskQty   decimal.Decimal `json:"A"`
}

// Run connects, subscribes every instrument, and emits raw events until
// the context is done or the stream dies.
func (b *Binance) Run(ctx context.Context, emit func(RawEvent)) error {
	wss := ws.New(ctx, b.url)
	defer wss.Close()

	if err := wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}

	params := make([]string, 0, b.reg.Count()*2)
	for i := 0; i < b.reg.Count(); i++ {
		inst, ok := b.reg.At(i)
		if !ok {
			continue
		}
		lower := strings.ToLower(inst.Symbol)
		params = append(params,
			fmt.Sprintf("%s@trade", lower),
			fmt.Sprintf("%s@bookTicker", lower),
		)
	}

	if err := wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			payload := binanceSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: params,
				ID:     1,
			}
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp binanceSubscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != 1 {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, true); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	ch, cancel := wss.Subscribe()
	defer cancel()

	for {
		select {
		case <-sys.Shutdown():
			return ctx.Err()
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return ErrFeedDisconnected
			}
			b.dispatch(m, emit)
		}
	}
}

func (b *Binance) dispatch(m ws.Message, emit func(RawEvent)) {
	now := time.Now().UTC().UnixNano()

	if trade, ok := ws.ReadMessage[binanceTrade](m); ok && trade.EventType == "trade" {
		inst, ok := b.instrument(trade.Symbol)
		if !ok {
			return
		}
		price, err1 := schema.ParseScaled(trade.Price.String(), int(inst.PriceScale))
		size, err2 := schema.ParseScaled(trade.Quantity.String(), int(inst.QtyScale))
		if err1 != nil || err2 != nil {
			logs.Errorf("parse trade fields, errs: %v %v", err1, err2)
			return
		}
		emit(RawEvent{
			Symbol:  inst.Symbol,
			Kind:    RawTrade,
			TsEvent: trade.TradeTime * int64(time.Millisecond),
			TsRecv:  now,
			Price:   schema.Price(price),
			Size:    schema.Quantity(size),
		})
		return
	}

	if book, ok := ws.ReadMessage[binanceBookTicker](m); ok && book.Symbol != "" && book.UpdateID != 0 {
		inst, ok := b.instrument(book.Symbol)
		if !ok {
			return
		}
		bid, err1 := schema.ParseScaled(book.BidPrice.String(), int(inst.PriceScale))
		bidSize, err2 := schema.ParseScaled(book.BidQty.String(), int(inst.QtyScale))
		ask, err3 := schema.ParseScaled(book.AskPrice.String(), int(inst.PriceScale))
		askSize, err4 := schema.ParseScaled(book.AskQty.String(), int(inst.QtyScale))
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			logs.Errorf("parse book ticker fields, errs: %v %v %v %v", err1, err2, err3, err4)
			return
		}
		emit(RawEvent{
			Symbol:   inst.Symbol,
			Kind:     RawQuote,
			TsRecv:   now,
			BidPrice: schema.Price(bid),
			BidSize:  schema.Quantity(bidSize),
			AskPrice: schema.Price(ask),
			AskSize:  schema.Quantity(askSize),
		})
	}
}

func (b *Binance) instrument(symbol string) (schema.Instrument, bool) {
	id, ok := b.reg.IDBySymbol(symbol)
	if !ok {
		return schema.Instrument{}, false
	}
	return b.reg.Instrument(id)
}
