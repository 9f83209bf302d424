// Package smartconnect is a client for the Angel One SmartAPI: REST login,
// market quotes, option Greeks and scrip search, plus the binary
// smart-stream market feed.
//
//	sc := smartconnect.New(smartconnect.Config{APIKey: key})
//	sess, err := sc.Login(ctx, clientCode, password, totpCode)
//	quotes, err := sc.Quote(ctx, smartconnect.QuoteFull, map[string][]string{"NSE": {"26000"}})
package smartconnect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrSession matches errors caused by a missing, expired or rejected
// session (TokenException, AG8001-style codes, HTTP 401/403).
var ErrSession = errors.New("smartconnect: session rejected")

// APIError is a failed SmartAPI call.
type APIError struct {
	Route   string
	Status  int
	Code    string // errorcode or error_type
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smartconnect: %s: status=%d code=%s: %s", e.Route, e.Status, e.Code, e.Message)
}

// Is makes errors.Is(err, ErrSession) hold for session failures.
func (e *APIError) Is(target error) bool {
	return target == ErrSession && e.sessionFailure()
}

func (e *APIError) sessionFailure() bool {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return true
	}
	switch e.Code {
	case "TokenException", "AG8001", "AG8002", "AG8003", "AB1010", "AB1004", "AB7001":
		return true
	}
	return false
}

// Config configures a Client.
type Config struct {
	APIKey         string
	RootURL        string        // default https://apiconnect.angelone.in
	Timeout        time.Duration // default 7s
	ClientLocalIP  string        // default first non-loopback IPv4, else 127.0.0.1
	ClientPublicIP string        // default 106.193.147.98
	ClientMAC      string        // default first interface MAC
	HTTPClient     *http.Client  // optional
	Debug          bool
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.market.data":  "/rest/secure/angelbroking/market/v1/quote",
	"api.search.scrip": "/rest/secure/angelbroking/order/v1/searchScrip",
	"api.optionGreek":  "/rest/secure/angelbroking/marketData/v1/optionGreek",
}

// Session holds the tokens of one login.
type Session struct {
	JWT          string
	RefreshToken string
	FeedToken    string
	ClientCode   string
	IssuedAt     time.Time
}

// Client is a SmartAPI REST client. Safe for concurrent use.
type Client struct {
	apiKey     string
	rootURL    string
	debug      bool
	httpClient *http.Client

	localIP, publicIP, mac string

	mu      sync.RWMutex
	session Session
}

// New creates a client. No network I/O happens here.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = localIP()
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = "106.193.147.98"
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		debug:      cfg.Debug,
		httpClient: hc,
		localIP:    cfg.ClientLocalIP,
		publicIP:   cfg.ClientPublicIP,
		mac:        cfg.ClientMAC,
	}
}

// APIKey returns the configured key.
func (c *Client) APIKey() string { return c.apiKey }

// Session returns the current session tokens.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// HasSession reports whether a login has succeeded.
func (c *Client) HasSession() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.JWT != ""
}

// Login authenticates with client code, password and a current TOTP.
func (c *Client) Login(ctx context.Context, clientCode, password, totp string) (Session, error) {
	var data struct {
		JWT          string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	}
	params := map[string]any{"clientcode": clientCode, "password": password, "totp": totp}
	if err := c.call(ctx, http.MethodPost, "api.login", params, &data); err != nil {
		return Session{}, err
	}
	if data.JWT == "" || data.FeedToken == "" {
		return Session{}, &APIError{Route: "api.login", Status: http.StatusOK, Code: "AG8001", Message: "empty tokens in login response"}
	}
	s := Session{
		JWT:          strings.TrimPrefix(data.JWT, "Bearer "),
		RefreshToken: data.RefreshToken,
		FeedToken:    data.FeedToken,
		ClientCode:   clientCode,
		IssuedAt:     time.Now(),
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s, nil
}

// Logout terminates the session and forgets its tokens.
func (c *Client) Logout(ctx context.Context) error {
	sess := c.Session()
	if sess.JWT == "" {
		return nil
	}
	err := c.call(ctx, http.MethodPost, "api.logout", map[string]any{"clientcode": sess.ClientCode}, nil)
	c.mu.Lock()
	c.session = Session{}
	c.mu.Unlock()
	return err
}

// Quote modes for the market data endpoint.
const (
	QuoteLTP  = "LTP"
	QuoteOHLC = "OHLC"
	QuoteFull = "FULL"
)

// MarketQuote is one row of a market data response. Prices are rupees.
type MarketQuote struct {
	Exchange      string  `json:"exchange"`
	TradingSymbol string  `json:"tradingSymbol"`
	SymbolToken   string  `json:"symbolToken"`
	LTP           float64 `json:"ltp"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"` // previous session close
	NetChange     float64 `json:"netChange"`
	PercentChange float64 `json:"percentChange"`
	TradeVolume   int64   `json:"tradeVolume"`
	OpenInterest  int64   `json:"opnInterest"`
	ExchFeedTime  string  `json:"exchFeedTime"`
}

// FeedTime parses ExchFeedTime ("02-Jan-2006 15:04:05", IST).
func (q MarketQuote) FeedTime(loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation("02-Jan-2006 15:04:05", q.ExchFeedTime, loc)
	return t, err == nil
}

// Quote fetches quotes for exchange → tokens.
func (c *Client) Quote(ctx context.Context, mode string, exchangeTokens map[string][]string) ([]MarketQuote, error) {
	var data struct {
		Fetched   []MarketQuote `json:"fetched"`
		Unfetched []struct {
			Token   string `json:"symbolToken"`
			Message string `json:"message"`
		} `json:"unfetched"`
	}
	params := map[string]any{"mode": mode, "exchangeTokens": exchangeTokens}
	if err := c.call(ctx, http.MethodPost, "api.market.data", params, &data); err != nil {
		return nil, err
	}
	for _, u := range data.Unfetched {
		log.Printf("[smartconnect] quote unfetched token=%s: %s", u.Token, u.Message)
	}
	return data.Fetched, nil
}

// Scrip is one search result.
type Scrip struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
}

// SearchScrip looks up instruments whose trading symbol matches query.
func (c *Client) SearchScrip(ctx context.Context, exchange, query string) ([]Scrip, error) {
	var data []Scrip
	params := map[string]any{"exchange": exchange, "searchscrip": query}
	if err := c.call(ctx, http.MethodPost, "api.search.scrip", params, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// OptionGreekRow is one strike/type of the option Greek endpoint. The API
// sends numbers as strings; Float parses them.
type OptionGreekRow struct {
	Name              string `json:"name"`
	Expiry            string `json:"expiry"`
	StrikePrice       string `json:"strikePrice"`
	OptionType        string `json:"optionType"` // CE | PE
	Delta             string `json:"delta"`
	Gamma             string `json:"gamma"`
	Theta             string `json:"theta"`
	Vega              string `json:"vega"`
	ImpliedVolatility string `json:"impliedVolatility"` // percent
	TradeVolume       string `json:"tradeVolume"`
}

// Float parses one of the row's string fields, 0 when blank or malformed.
func Float(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// OptionGreek fetches Greeks and IV for every strike of name at expiry
// ("02JAN2006").
func (c *Client) OptionGreek(ctx context.Context, name, expiry string) ([]OptionGreekRow, error) {
	var data []OptionGreekRow
	params := map[string]any{"name": name, "expirydate": expiry}
	if err := c.call(ctx, http.MethodPost, "api.optionGreek", params, &data); err != nil {
		return nil, err
	}
	return data, nil
}

type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// call performs one request and decodes the "data" member into out.
func (c *Client) call(ctx context.Context, method, route string, params map[string]any, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("smartconnect: unknown route %s", route)
	}

	var body io.Reader
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("smartconnect: %s: encode: %w", route, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.rootURL+uri, body)
	if err != nil {
		return fmt.Errorf("smartconnect: %s: %w", route, err)
	}
	c.setHeaders(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("smartconnect: %s: %w", route, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("smartconnect: %s: read: %w", route, err)
	}
	if c.debug {
		log.Printf("[smartconnect] %s %s -> %d %s", method, route, resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Route: route, Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("smartconnect: %s: decode: %w", route, err)
	}
	if resp.StatusCode >= 400 || !env.Status || env.ErrorType != "" {
		code := env.ErrorCode
		if code == "" {
			code = env.ErrorType
		}
		return &APIError{Route: route, Status: resp.StatusCode, Code: code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("smartconnect: %s: decode data: %w", route, err)
	}
	return nil
}

func (c *Client) setHeaders(h http.Header) {
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.localIP)
	h.Set("X-ClientPublicIP", c.publicIP)
	h.Set("X-MACAddress", c.mac)
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if jwt := c.Session().JWT; jwt != "" {
		h.Set("Authorization", "Bearer "+jwt)
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return "127.0.0.1"
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}
