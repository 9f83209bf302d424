package angel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/indicator"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
)

// NFO trading symbols: NAME + DDMMMYY + strike + CE|PE, or NAME + DDMMMYY + FUT.
var (
	optionSymbol  = regexp.MustCompile(`^([A-Z&]+)(\d{2}[A-Z]{3}\d{2})(\d+(?:\.\d+)?)(CE|PE)$`)
	futuresSymbol = regexp.MustCompile(`^([A-Z&]+)(\d{2}[A-Z]{3}\d{2})FUT$`)
)

// expiryClose is when a contract stops trading on its expiry day (IST).
const expiryClose = 15*time.Hour + 30*time.Minute

type optionSymbolParts struct {
	Name   string
	Expiry time.Time
	Strike float64
	Type   indicator.OptionType
}

func parseExpiry(s string) (time.Time, error) {
	d, err := time.ParseInLocation("02Jan06", s, markethours.IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("angel: expiry %q: %w", s, err)
	}
	return d.Add(expiryClose), nil
}

func parseOptionSymbol(sym string) (optionSymbolParts, bool) {
	m := optionSymbol.FindStringSubmatch(sym)
	if m == nil {
		return optionSymbolParts{}, false
	}
	exp, err := parseExpiry(m[2])
	if err != nil {
		return optionSymbolParts{}, false
	}
	strike, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return optionSymbolParts{}, false
	}
	typ := indicator.Call
	if m[4] == "PE" {
		typ = indicator.Put
	}
	return optionSymbolParts{Name: m[1], Expiry: exp, Strike: strike, Type: typ}, true
}

func parseFuturesSymbol(sym string) (name string, expiry time.Time, ok bool) {
	m := futuresSymbol.FindStringSubmatch(sym)
	if m == nil {
		return "", time.Time{}, false
	}
	exp, err := parseExpiry(m[2])
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], exp, true
}

// greekExpiry formats an expiry the way the option Greek endpoint wants it.
func greekExpiry(t time.Time) string {
	return strings.ToUpper(t.In(markethours.IST).Format("02Jan2006"))
}
