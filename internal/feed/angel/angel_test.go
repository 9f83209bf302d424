package angel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/indicator"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	"github.com/hchalla2021/mytradingSignal-sub000/pkg/smartconnect"
)

type fakeAPI struct {
	mu        sync.Mutex
	loginErr  error
	lastTOTP  string
	session   bool
	scrips    []smartconnect.Scrip
	oi        map[string]int64
	greeks    []smartconnect.OptionGreekRow
	quoteReqs int
}

func (f *fakeAPI) APIKey() string { return "key" }

func (f *fakeAPI) HasSession() bool { return f.session }

func (f *fakeAPI) Session() smartconnect.Session { return smartconnect.Session{JWT: "jwt"} }

func (f *fakeAPI) Login(_ context.Context, _, _, code string) (smartconnect.Session, error) {
	f.lastTOTP = code
	if f.loginErr != nil {
		return smartconnect.Session{}, f.loginErr
	}
	f.session = true
	return smartconnect.Session{JWT: "jwt", FeedToken: "feed", IssuedAt: time.Now()}, nil
}

func (f *fakeAPI) Quote(_ context.Context, _ string, ex map[string][]string) ([]smartconnect.MarketQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteReqs++
	var out []smartconnect.MarketQuote
	for exchange, tokens := range ex {
		for _, tok := range tokens {
			out = append(out, smartconnect.MarketQuote{
				Exchange: exchange, SymbolToken: tok, LTP: 100, Close: 95,
				OpenInterest: f.oi[tok], TradeVolume: 10,
			})
		}
	}
	return out, nil
}

func (f *fakeAPI) SearchScrip(context.Context, string, string) ([]smartconnect.Scrip, error) {
	return f.scrips, nil
}

func (f *fakeAPI) OptionGreek(context.Context, string, string) ([]smartconnect.OptionGreekRow, error) {
	return f.greeks, nil
}

func TestQuoteFromPacketConvertsPaise(t *testing.T) {
	p := smartconnect.Packet{
		Mode: smartconnect.ModeSnapQuote, ExchangeType: smartconnect.NSECM, Token: "26000",
		ExchangeTS: 1773117000000, LTP: 2412345,
		HasQuote: true, Open: 2400000, High: 2420000, Low: 0, Close: 2398000, Volume: 7,
		HasSnap: true, OpenInterest: 55,
	}
	q := QuoteFromPacket(p)
	if q.Exchange != "NSE" || q.LTP != 24123.45 || q.Source != "stream" {
		t.Errorf("quote = %+v", q)
	}
	if q.Open == nil || *q.Open != 24000 || q.DayClose == nil || *q.DayClose != 23980 {
		t.Errorf("open/close = %v/%v", q.Open, q.DayClose)
	}
	if q.Low != nil {
		t.Error("zero low should stay unset")
	}
	if q.Volume == nil || *q.Volume != 7 || q.OI == nil || *q.OI != 55 {
		t.Errorf("volume/oi = %v/%v", q.Volume, q.OI)
	}
	if !q.TS.Equal(time.UnixMilli(1773117000000)) {
		t.Errorf("ts = %v", q.TS)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		op   string
		err  error
		cred bool
	}{
		{"login", &smartconnect.APIError{Status: http.StatusOK, Code: "AB1050"}, true},
		{"login", &smartconnect.APIError{Status: http.StatusBadGateway}, false},
		{"poll", &smartconnect.APIError{Status: http.StatusOK, Code: "AB2001"}, false},
		{"stream", &smartconnect.APIError{Status: http.StatusForbidden}, true},
		{"stream", fmt.Errorf("read: %w", errors.New("reset")), false},
	}
	for _, tt := range tests {
		got := errors.Is(classify(tt.op, tt.err), session.ErrCredential)
		if got != tt.cred {
			t.Errorf("classify(%s, %v) credential=%v, want %v", tt.op, tt.err, got, tt.cred)
		}
	}
}

func TestAuthenticatorUsesFreshTOTP(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	api := &fakeAPI{}
	a := NewAuthenticator(api, Credentials{ClientCode: "C1", Password: "pw", TOTPSecret: secret})
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return at }

	creds, err := a.Login(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if creds.AuthToken != "jwt" || creds.FeedToken != "feed" {
		t.Errorf("creds = %+v", creds)
	}
	want, _ := totp.GenerateCode(secret, at)
	if api.lastTOTP != want {
		t.Errorf("totp = %q, want %q", api.lastTOTP, want)
	}

	api.loginErr = &smartconnect.APIError{Status: http.StatusOK, Code: "AB1050", Message: "Invalid totp"}
	if _, err := a.Login(context.Background()); !errors.Is(err, session.ErrCredential) {
		t.Errorf("rejected login err = %v", err)
	}

	bad := NewAuthenticator(api, Credentials{TOTPSecret: "not base32!"})
	if _, err := bad.Login(context.Background()); !errors.Is(err, session.ErrCredential) {
		t.Errorf("bad secret err = %v", err)
	}
}

func TestPollerNeedsSession(t *testing.T) {
	api := &fakeAPI{}
	universe := []model.Instrument{{Symbol: "NIFTY", Exchange: "NSE", Token: "26000"}}
	p := NewPoller(api, universe, NewLimiter(100))
	if _, err := p.Poll(context.Background()); !errors.Is(err, session.ErrCredential) {
		t.Fatalf("err = %v", err)
	}
	api.session = true
	quotes, err := p.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 1 || quotes[0].Source != "poll" || *quotes[0].DayClose != 95 {
		t.Errorf("quotes = %+v", quotes)
	}
}

func TestParseSymbols(t *testing.T) {
	parts, ok := parseOptionSymbol("NIFTY26MAR2624000CE")
	if !ok || parts.Name != "NIFTY" || parts.Strike != 24000 || parts.Type != indicator.Call {
		t.Fatalf("parts = %+v ok=%v", parts, ok)
	}
	wantExp := time.Date(2026, 3, 26, 15, 30, 0, 0, markethours.IST)
	if !parts.Expiry.Equal(wantExp) {
		t.Errorf("expiry = %v, want %v", parts.Expiry, wantExp)
	}
	if _, ok := parseOptionSymbol("NIFTY26MAR26FUT"); ok {
		t.Error("futures symbol parsed as option")
	}
	name, exp, ok := parseFuturesSymbol("BANKNIFTY28APR26FUT")
	if !ok || name != "BANKNIFTY" || exp.Month() != time.April {
		t.Errorf("futures = %s %v %v", name, exp, ok)
	}
	if got := greekExpiry(wantExp); got != "26MAR2026" {
		t.Errorf("greekExpiry = %s", got)
	}
}

func chainAPI() *fakeAPI {
	api := &fakeAPI{session: true, oi: map[string]int64{}}
	tok := 1000
	for _, exp := range []string{"26MAR26", "02APR26"} {
		for strike := 23500; strike <= 24500; strike += 50 {
			for _, typ := range []string{"CE", "PE"} {
				tok++
				token := fmt.Sprint(tok)
				api.scrips = append(api.scrips, smartconnect.Scrip{
					Exchange: "NFO", SymbolToken: token,
					TradingSymbol: fmt.Sprintf("NIFTY%s%d%s", exp, strike, typ),
				})
				api.oi[token] = 1000
			}
		}
	}
	api.scrips = append(api.scrips, smartconnect.Scrip{TradingSymbol: "NIFTY26MAR26FUT", SymbolToken: "9"})
	api.greeks = []smartconnect.OptionGreekRow{{StrikePrice: "24000.000000", OptionType: "CE", ImpliedVolatility: "14.5"}}
	return api
}

func TestChainSourceFetch(t *testing.T) {
	api := chainAPI()
	src := NewChainSource(api, NewLimiter(1000))
	src.Window = 2
	inst := model.Instrument{Symbol: "NIFTY", OptionName: "NIFTY", StrikeStep: 50}
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, markethours.IST)

	chain, err := src.Fetch(context.Background(), inst, 24010, now)
	if err != nil {
		t.Fatal(err)
	}
	if chain.Expiry.Day() != 26 || len(chain.Strikes) != 5 {
		t.Fatalf("expiry=%v strikes=%d, want 26th and 5", chain.Expiry, len(chain.Strikes))
	}
	if chain.Strikes[0].Strike != 23900 || chain.Strikes[4].Strike != 24100 {
		t.Errorf("window = %v..%v", chain.Strikes[0].Strike, chain.Strikes[4].Strike)
	}
	atm := chain.Strikes[2]
	if atm.CE == nil || atm.PE == nil || atm.CE.IV != 0.145 || atm.PE.IV != 0 {
		t.Errorf("atm = %+v / %+v", atm.CE, atm.PE)
	}
	if atm.CE.OIChange != 0 {
		t.Errorf("first fetch OIChange = %d", atm.CE.OIChange)
	}

	for tok := range api.oi {
		api.oi[tok] = 1300
	}
	chain, err = src.Fetch(context.Background(), inst, 24010, now)
	if err != nil {
		t.Fatal(err)
	}
	if got := chain.Strikes[2].CE.OIChange; got != 300 {
		t.Errorf("second fetch OIChange = %d, want 300", got)
	}
}

func TestChainSourceSkipsExpired(t *testing.T) {
	src := NewChainSource(chainAPI(), NewLimiter(1000))
	inst := model.Instrument{Symbol: "NIFTY", OptionName: "NIFTY", StrikeStep: 50}
	after := time.Date(2026, 3, 27, 11, 0, 0, 0, markethours.IST)
	chain, err := src.Fetch(context.Background(), inst, 24000, after)
	if err != nil {
		t.Fatal(err)
	}
	if chain.Expiry.Month() != time.April {
		t.Errorf("expiry = %v, want the April contract", chain.Expiry)
	}

	gone := time.Date(2026, 5, 1, 11, 0, 0, 0, markethours.IST)
	if _, err := src.Fetch(context.Background(), inst, 24000, gone); !errors.Is(err, ErrNoExpiry) {
		t.Errorf("err = %v, want ErrNoExpiry", err)
	}
}

func TestFuturesSource(t *testing.T) {
	api := chainAPI()
	api.scrips = append(api.scrips, smartconnect.Scrip{TradingSymbol: "NIFTYNXT5026MAR26FUT", SymbolToken: "10"})
	got, err := NewFuturesSource(api, NewLimiter(1000)).Futures(context.Background(),
		model.Instrument{Symbol: "NIFTY", FuturesName: "NIFTY"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Token != "9" || got[0].Underlying != "NIFTY" {
		t.Errorf("futures = %+v", got)
	}
}
