package indicator

// WilderSeries computes Wilder's smoothed moving average: an SMA(period) seed
// followed by (prev*(period-1) + v) / period for each later value.
// Tail-aligned like SMASeries; returns nil when the input is shorter than
// the period.
func WilderSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values)-period+1)
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[0] = sum / float64(period)
	for i := period; i < len(values); i++ {
		out[i-period+1] = (out[i-period]*float64(period-1) + values[i]) / float64(period)
	}
	return out
}
