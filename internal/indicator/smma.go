package indicator

// wilder applies one step of Wilder's smoothing:
// next = (prev*(period-1) + value) / period.
func wilder(prev, value float64, period int) float64 {
	p := float64(period)
	return (prev*(p-1) + value) / p
}
