package indicator

// EMASeries returns the EMA for every index from period-1 onward.
// The seed is the simple average of the first period values; each later
// value is price*k + prev*(1-k) with k = 2/(period+1).
func EMASeries(series []float64, period int) []float64 {
	if period <= 0 || len(series) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(series)-period+1)

	sum := 0.0
	for _, v := range series[:period] {
		sum += v
	}
	cur := sum / float64(period)
	out = append(out, cur)

	for _, price := range series[period:] {
		cur = price*k + cur*(1-k)
		out = append(out, cur)
	}
	return out
}

// EMA returns the latest EMA value. ok is false when the series is shorter
// than period.
func EMA(series []float64, period int) (float64, bool) {
	s := EMASeries(series, period)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}
