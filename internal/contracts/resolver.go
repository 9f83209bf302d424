// Package contracts resolves the near, next and far futures contracts of
// each index in the universe. Contracts only feed premium and fair-value
// inputs, so a failed refresh keeps the last good set.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Source lists the listed futures contracts of one index.
type Source interface {
	Futures(ctx context.Context, inst model.Instrument) ([]model.Contract, error)
}

// Select picks near, next and far from candidates: contracts expiring at or
// after now, ordered by expiry, one per expiry date.
func Select(underlying string, candidates []model.Contract, now time.Time) model.ContractSet {
	live := make([]model.Contract, 0, len(candidates))
	for _, c := range candidates {
		if c.Expiry.Before(now) {
			continue
		}
		live = append(live, c)
	}
	sort.SliceStable(live, func(i, j int) bool {
		if !live[i].Expiry.Equal(live[j].Expiry) {
			return live[i].Expiry.Before(live[j].Expiry)
		}
		return live[i].TradingSymbol < live[j].TradingSymbol
	})

	set := model.ContractSet{Underlying: underlying, ResolvedAt: now}
	slots := []**model.Contract{&set.Near, &set.Next, &set.Far}
	n := 0
	for i := range live {
		if i > 0 && live[i].Expiry.Equal(live[i-1].Expiry) {
			continue
		}
		c := live[i]
		c.Underlying = underlying
		*slots[n] = &c
		n++
		if n == len(slots) {
			break
		}
	}
	return set
}

// Resolver keeps the current contract set per index.
type Resolver struct {
	src      Source
	universe []model.Instrument
	now      func() time.Time

	mu   sync.RWMutex
	sets map[string]model.ContractSet
}

// NewResolver creates a resolver for the index instruments of universe that
// name a futures prefix.
func NewResolver(src Source, universe []model.Instrument) *Resolver {
	var indices []model.Instrument
	for _, inst := range universe {
		if inst.Kind == model.KindIndex && inst.FuturesName != "" {
			indices = append(indices, inst)
		}
	}
	return &Resolver{
		src:      src,
		universe: indices,
		now:      time.Now,
		sets:     make(map[string]model.ContractSet),
	}
}

// Current returns the last resolved set for underlying.
func (r *Resolver) Current(underlying string) (model.ContractSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sets[underlying]
	return s, ok
}

// All returns every resolved set ordered by underlying.
func (r *Resolver) All() []model.ContractSet {
	r.mu.RLock()
	out := make([]model.ContractSet, 0, len(r.sets))
	for _, s := range r.sets {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Underlying < out[j].Underlying })
	return out
}

// Refresh re-resolves every index and returns the sets that changed. An
// index whose lookup fails keeps its previous set.
func (r *Resolver) Refresh(ctx context.Context) ([]model.ContractSet, error) {
	now := r.now()
	var changed []model.ContractSet
	var errs []error
	for _, inst := range r.universe {
		cands, err := r.src.Futures(ctx, inst)
		if err != nil {
			errs = append(errs, fmt.Errorf("contracts: %s: %w", inst.Symbol, err))
			continue
		}
		set := Select(inst.Symbol, cands, now)
		if set.Near == nil {
			errs = append(errs, fmt.Errorf("contracts: %s: no live futures among %d", inst.Symbol, len(cands)))
			continue
		}

		r.mu.Lock()
		prev, ok := r.sets[inst.Symbol]
		r.sets[inst.Symbol] = set
		r.mu.Unlock()
		if !ok || !sameContracts(prev, set) {
			changed = append(changed, set)
		}
	}
	return changed, errors.Join(errs...)
}

// Run refreshes immediately and then every interval, delivering changed
// sets on out. It also refreshes as soon as a near contract expires.
func (r *Resolver) Run(ctx context.Context, every time.Duration, out chan<- model.ContractSet) {
	if every <= 0 {
		every = 6 * time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	expiry := time.NewTimer(time.Hour)
	defer expiry.Stop()

	for {
		changed, err := r.Refresh(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("[contracts] refresh: %v", err)
		}
		for _, set := range changed {
			log.Printf("[contracts] %s near=%s", set.Underlying, set.Near.TradingSymbol)
			select {
			case out <- set:
			case <-ctx.Done():
				return
			}
		}

		if !expiry.Stop() {
			select {
			case <-expiry.C:
			default:
			}
		}
		expiry.Reset(r.untilNearExpiry(every))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-expiry.C:
		}
	}
}

func (r *Resolver) untilNearExpiry(max time.Duration) time.Duration {
	now := r.now()
	d := max
	for _, s := range r.All() {
		if s.Near == nil {
			continue
		}
		if until := s.Near.Expiry.Sub(now) + time.Second; until > 0 && until < d {
			d = until
		}
	}
	return d
}

func sameContracts(a, b model.ContractSet) bool {
	return token(a.Near) == token(b.Near) && token(a.Next) == token(b.Next) && token(a.Far) == token(b.Far)
}

func token(c *model.Contract) string {
	if c == nil {
		return ""
	}
	return c.Token
}
