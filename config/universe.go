package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Universe is the subscribed instrument set and the holiday calendar.
type Universe struct {
	Instruments []model.Instrument `yaml:"instruments"`
	Holidays    []string           `yaml:"holidays"`
}

// Calendar builds the holiday calendar.
func (u Universe) Calendar() (*markethours.Calendar, error) {
	return markethours.NewCalendar(u.Holidays)
}

// Symbols returns the index symbols in universe order.
func (u Universe) Symbols() []string {
	out := make([]string, 0, len(u.Instruments))
	for _, inst := range u.Instruments {
		if inst.Kind == model.KindIndex {
			out = append(out, inst.Symbol)
		}
	}
	return out
}

// DefaultUniverse is NIFTY, BANKNIFTY and FINNIFTY on NSE with the
// built-in holiday list.
func DefaultUniverse() Universe {
	return Universe{
		Instruments: []model.Instrument{
			{Symbol: "NIFTY", Exchange: "NSE", ExchangeType: 1, Token: "99926000", Kind: model.KindIndex,
				StrikeStep: 50, OptionName: "NIFTY", FuturesName: "NIFTY"},
			{Symbol: "BANKNIFTY", Exchange: "NSE", ExchangeType: 1, Token: "99926009", Kind: model.KindIndex,
				StrikeStep: 100, OptionName: "BANKNIFTY", FuturesName: "BANKNIFTY"},
			{Symbol: "FINNIFTY", Exchange: "NSE", ExchangeType: 1, Token: "99926037", Kind: model.KindIndex,
				StrikeStep: 50, OptionName: "FINNIFTY", FuturesName: "FINNIFTY"},
		},
		Holidays: markethours.DefaultHolidays(),
	}
}

// LoadUniverse reads the universe YAML at path. An empty path or a missing
// file yields DefaultUniverse; a file without holidays keeps the built-in list.
func LoadUniverse(path string) (Universe, error) {
	if path == "" {
		return DefaultUniverse(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultUniverse(), nil
	}
	if err != nil {
		return Universe{}, fmt.Errorf("config: read universe: %w", err)
	}

	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return Universe{}, fmt.Errorf("config: parse universe %s: %w", path, err)
	}
	if len(u.Holidays) == 0 {
		u.Holidays = markethours.DefaultHolidays()
	}
	if err := u.normalize(); err != nil {
		return Universe{}, fmt.Errorf("config: universe %s: %w", path, err)
	}
	if _, err := u.Calendar(); err != nil {
		return Universe{}, fmt.Errorf("config: universe %s: %w", path, err)
	}
	return u, nil
}

// normalize fills defaults and rejects incomplete or duplicate entries.
func (u *Universe) normalize() error {
	if len(u.Instruments) == 0 {
		return errors.New("no instruments")
	}
	seen := make(map[string]bool, len(u.Instruments))
	for i := range u.Instruments {
		inst := &u.Instruments[i]
		if inst.Symbol == "" || inst.Token == "" {
			return fmt.Errorf("instrument %d: symbol and token are required", i)
		}
		if inst.Exchange == "" {
			inst.Exchange = "NSE"
		}
		if inst.ExchangeType == 0 {
			inst.ExchangeType = 1
		}
		if inst.Kind == "" {
			inst.Kind = model.KindIndex
		}
		if inst.Kind != model.KindIndex && inst.Kind != model.KindFuture {
			return fmt.Errorf("instrument %s: unknown kind %q", inst.Symbol, inst.Kind)
		}
		if seen[inst.Key()] {
			return fmt.Errorf("instrument %s: duplicate token %s", inst.Symbol, inst.Key())
		}
		seen[inst.Key()] = true
	}
	return nil
}
