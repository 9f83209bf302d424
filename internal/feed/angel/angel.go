// Package angel adapts the SmartAPI client to the session and pipeline
// ports: a TOTP authenticator, the streaming feed, the degraded-mode
// poller, the option-chain source and the futures contract source.
package angel

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/marketdata/ingest"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	"github.com/hchalla2021/mytradingSignal-sub000/pkg/smartconnect"
)

// API is the subset of *smartconnect.Client the adapters use.
type API interface {
	APIKey() string
	HasSession() bool
	Session() smartconnect.Session
	Login(ctx context.Context, clientCode, password, totp string) (smartconnect.Session, error)
	Quote(ctx context.Context, mode string, exchangeTokens map[string][]string) ([]smartconnect.MarketQuote, error)
	SearchScrip(ctx context.Context, exchange, query string) ([]smartconnect.Scrip, error)
	OptionGreek(ctx context.Context, name, expiry string) ([]smartconnect.OptionGreekRow, error)
}

// DefaultRESTRate is the shared request budget in requests per second.
const DefaultRESTRate = 3

// NewLimiter returns the REST limiter shared by every adapter of one client.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = DefaultRESTRate
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// classify maps a client error onto the session error taxonomy. During
// login any client-side rejection means the credential was refused.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, smartconnect.ErrSession) {
		return session.Credential(op, err)
	}
	var apiErr *smartconnect.APIError
	if op == "login" && errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return session.Credential(op, err)
	}
	return session.Network(op, err)
}

// QuoteFromPacket converts a stream frame (paise) to a provider quote.
func QuoteFromPacket(p smartconnect.Packet) model.Quote {
	q := model.Quote{
		Token:    p.Token,
		Exchange: smartconnect.ExchangeName[p.ExchangeType],
		LTP:      ingest.FromPaise(p.LTP),
		TS:       p.Time(),
		Source:   "stream",
	}
	if q.TS.IsZero() {
		q.TS = time.Now().UTC()
	}
	if p.HasQuote {
		q.Open = paisePtr(p.Open)
		q.High = paisePtr(p.High)
		q.Low = paisePtr(p.Low)
		q.DayClose = paisePtr(p.Close)
		vol := p.Volume
		q.Volume = &vol
	}
	if p.HasSnap {
		oi := p.OpenInterest
		q.OI = &oi
	}
	return q
}

// QuoteFromMarket converts a REST quote row (rupees) to a provider quote.
func QuoteFromMarket(m smartconnect.MarketQuote, source string) model.Quote {
	q := model.Quote{
		Token:    m.SymbolToken,
		Exchange: m.Exchange,
		LTP:      m.LTP,
		Open:     rupeePtr(m.Open),
		High:     rupeePtr(m.High),
		Low:      rupeePtr(m.Low),
		DayClose: rupeePtr(m.Close),
		Source:   source,
	}
	vol, oi := m.TradeVolume, m.OpenInterest
	q.Volume = &vol
	q.OI = &oi
	if ts, ok := m.FeedTime(markethours.IST); ok {
		q.TS = ts.UTC()
	} else {
		q.TS = time.Now().UTC()
	}
	return q
}

func paisePtr(p int64) *float64 {
	if p <= 0 {
		return nil
	}
	v := ingest.FromPaise(p)
	return &v
}

func rupeePtr(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// tokenLists groups the universe by stream segment.
func tokenLists(universe []model.Instrument) []smartconnect.TokenList {
	groups := map[int][]string{}
	for _, inst := range universe {
		groups[inst.ExchangeType] = append(groups[inst.ExchangeType], inst.Token)
	}
	out := make([]smartconnect.TokenList, 0, len(groups))
	for ex, tokens := range groups {
		out = append(out, smartconnect.TokenList{ExchangeType: ex, Tokens: tokens})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExchangeType < out[j].ExchangeType })
	return out
}

// exchangeTokens groups the universe by REST exchange name.
func exchangeTokens(universe []model.Instrument) map[string][]string {
	out := map[string][]string{}
	for _, inst := range universe {
		out[inst.Exchange] = append(out[inst.Exchange], inst.Token)
	}
	return out
}
