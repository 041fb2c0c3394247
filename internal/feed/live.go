package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"tradecore/internal/schema"
)

const _reconnectBackoff = 5 * time.Second

// LiveFeed streams ticks from a websocket endpoint. On disconnect it
// reconnects with a fixed backoff; ticks lost during the gap are gone.
type LiveFeed struct {
	url         string
	instruments []string
}

// NewLive creates a live feed subscribing the given instruments.
func NewLive(url string, instruments []string) *LiveFeed {
	return &LiveFeed{url: url, instruments: instruments}
}

type subscribeRequest struct {
	Type        string   `json:"type"`
	Instruments []string `json:"instruments"`
	ID          int64    `json:"id"`
}

type subscribeResponse struct {
	ID    int64  `json:"id"`
	Error string `json:"error,omitempty"`
}

type tickMessage struct {
	Type       string  `json:"type"`
	Instrument string  `json:"instrument_token"`
	Price      float64 `json:"last_traded_price"`
	Timestamp  int64   `json:"timestamp"`
}

// Run connects and consumes until the context is cancelled.
func (f *LiveFeed) Run(ctx context.Context, emit Emit) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.session(ctx, emit); err != nil {
			logs.Errorf("live feed session ended: %+v", err)
		}

		select {
		case <-time.After(_reconnectBackoff):
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session runs one connect-subscribe-consume cycle.
func (f *LiveFeed) session(ctx context.Context, emit Emit) error {
	wss := ws.New(ctx, f.url)
	defer wss.Close()

	if err := wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	if err := f.subscribe(ctx, wss); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	logs.Infof("live feed connected to %s, %d instruments", f.url, len(f.instruments))

	ch, cancel := wss.Subscribe()
	defer cancel()

	for {
		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return errors.New("stream closed")
			}

			tick, ok := ws.ReadMessage[tickMessage](m)
			if !ok || tick.Type != "tick" || tick.Instrument == "" {
				continue
			}
			emit(schema.MarketTick{
				Instrument: tick.Instrument,
				Price:      decimal.NewFromFloat(tick.Price),
				At:         time.UnixMilli(tick.Timestamp),
			})
		}
	}
}

func (f *LiveFeed) subscribe(ctx context.Context, wss *ws.WebSocket) error {
	appendIntoRegister := true
	return wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, wss *ws.WebSocket) error {
			payload := subscribeRequest{
				Type:        "subscribe",
				Instruments: f.instruments,
				ID:          1,
			}
			if err := wss.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp subscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != 1 {
				return false, nil
			}
			if resp.Error != "" {
				return false, errors.Errorf("subscribe rejected: %s", resp.Error)
			}
			return true, nil
		},
	}, appendIntoRegister)
}
