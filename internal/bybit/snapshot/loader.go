package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SymbolLister lists the USDT-quoted trading symbols of a market category.
// *bybit.RESTClient implements it.
type SymbolLister interface {
	GetUSDTSymbols(ctx context.Context, category string) ([]string, error)
}

type SymbolLoader struct {
	Lister   SymbolLister
	Category string
	Timeout  time.Duration // bound on the listing request, 0 for none
	Logger   *zap.Logger
}

// LoadSymbols fetches the USDT-quoted trading symbols and streams them into
// ch. ch is always closed on return.
func (l *SymbolLoader) LoadSymbols(ctx context.Context, ch chan<- string) error {
	defer close(ch) // Ensure downstream consumers can exit cleanly

	listCtx := ctx
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		listCtx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	symbols, err := l.Lister.GetUSDTSymbols(listCtx, l.Category)
	if err != nil {
		l.Logger.Error("failed to load USDT symbols", zap.String("category", l.Category), zap.Error(err))
		return err
	}
	l.Logger.Info("loaded symbols", zap.String("category", l.Category), zap.Int("count", len(symbols)))

	for _, symbol := range symbols {
		select {
		case ch <- symbol:
		case <-ctx.Done():
			l.Logger.Warn("symbol streaming interrupted", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}

	return nil
}
