package angel

import (
	"context"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	"github.com/hchalla2021/mytradingSignal-sub000/pkg/smartconnect"
)

// Feed streams snap quotes for the universe over smart-stream.
type Feed struct {
	api        API
	clientCode string
	universe   []model.Instrument

	// URL overrides the stream endpoint (tests).
	URL string
}

// NewFeed creates a feed for universe.
func NewFeed(api API, clientCode string, universe []model.Instrument) *Feed {
	return &Feed{api: api, clientCode: clientCode, universe: universe}
}

// Stream implements session.Feed.
func (f *Feed) Stream(ctx context.Context, creds session.Credentials, out chan<- model.Quote) error {
	st, err := smartconnect.NewStream(smartconnect.StreamConfig{
		URL:        f.URL,
		APIKey:     f.api.APIKey(),
		ClientCode: f.clientCode,
		AuthToken:  creds.AuthToken,
		FeedToken:  creds.FeedToken,
	})
	if err != nil {
		return classify("stream", err)
	}

	err = st.Run(ctx, smartconnect.ModeSnapQuote, tokenLists(f.universe), func(p smartconnect.Packet) {
		select {
		case out <- QuoteFromPacket(p):
		case <-ctx.Done():
		}
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return classify("stream", err)
}
