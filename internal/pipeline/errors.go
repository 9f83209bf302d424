package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/breaker"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/cache"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/logger"
)

// Feature names. They key breakers, cached results and metrics.
const (
	FeatureIndicators = cache.FeatureIndicators
	FeatureCompass    = cache.FeatureCompass
	FeatureOptions    = cache.FeatureOptions
)

// ComputationError is a failure inside one feature for one symbol. It never
// halts processing of other symbols.
type ComputationError struct {
	Feature string
	Symbol  string
	Err     error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("pipeline: %s/%s: %v", e.Feature, e.Symbol, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// guard runs fn for (feature, symbol) through the feature's breaker. A panic
// is recovered into a ComputationError. While the breaker is open fn is not
// called and breaker.ErrOpen is returned.
func (e *Engine) guard(ctx context.Context, feature, symbol string, fn func() error) (err error) {
	b := e.breakers.For(feature)
	if err := b.Allow(); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &ComputationError{Feature: feature, Symbol: symbol, Err: fmt.Errorf("panic: %v", r)}
		}
		b.Record(err)
		if e.OnComputeDuration != nil {
			e.OnComputeDuration(feature, time.Since(start))
		}
		if err != nil {
			e.computeFailed(ctx, feature, symbol, err)
		}
	}()

	if err := fn(); err != nil {
		var ce *ComputationError
		if !errors.As(err, &ce) {
			err = &ComputationError{Feature: feature, Symbol: symbol, Err: err}
		}
		return err
	}
	return nil
}

func (e *Engine) computeFailed(ctx context.Context, feature, symbol string, err error) {
	if e.OnComputeError != nil {
		e.OnComputeError(feature, symbol, err)
	}
	attrs := append([]any{
		slog.String("feature", feature),
		slog.String("symbol", symbol),
		slog.String("error", err.Error()),
		slog.String("breaker", e.breakers.For(feature).State().String()),
	}, logger.LogWithTrace(ctx)...)
	slog.Warn("computation failed", attrs...)
}

// skipped reports whether err only means the feature's breaker is open.
func skipped(err error) bool { return errors.Is(err, breaker.ErrOpen) }
