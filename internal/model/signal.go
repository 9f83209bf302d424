package model

import "time"

// Component is one weighted factor that contributed to a signal.
type Component struct {
	Name      string  `json:"name"`
	Weight    float64 `json:"weight"`
	Score     float64 `json:"score"`
	Available bool    `json:"available"`
}

// SignalResult is the output of a signal engine. The same inputs always
// produce the same result.
type SignalResult struct {
	Label      string      `json:"label"`
	Score      float64     `json:"score"`
	Confidence float64     `json:"confidence"`
	Reasons    []string    `json:"reasons"`
	Components []Component `json:"components"`
	ComputedAt time.Time   `json:"computed_at"`
}

// Placeholder is the explicit neutral result returned when no fresh or
// backup data exists.
func Placeholder(reason string, now time.Time) SignalResult {
	return SignalResult{
		Label:      string(Neutral),
		Reasons:    []string{reason},
		Components: []Component{},
		ComputedAt: now,
	}
}
