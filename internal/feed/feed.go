// Package feed produces market ticks, either replayed from a CSV file or
// streamed from a live websocket endpoint.
package feed

import (
	"context"

	"tradecore/internal/schema"
)

// Emit delivers one tick to the engine.
type Emit func(schema.MarketTick)

// Source runs until its data is exhausted or the context is cancelled.
type Source interface {
	Run(ctx context.Context, emit Emit) error
}
