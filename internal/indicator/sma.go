package indicator

import "math"

// SMASeries computes the simple moving average of values over period.
// The result is tail-aligned: out[i] corresponds to values[i+period-1], so
// the last element is the average of the final window. Returns nil when the
// input is shorter than the period.
func SMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values)-period+1)
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i-period+1] = sum / float64(period)
		}
	}
	return out
}

// RollingStdDev computes the population standard deviation over each
// period-length window, tail-aligned like SMASeries.
func RollingStdDev(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values)-period+1)
	for i := period - 1; i < len(values); i++ {
		win := values[i-period+1 : i+1]
		var sum float64
		for _, v := range win {
			sum += v
		}
		mean := sum / float64(period)
		var sq float64
		for _, v := range win {
			d := v - mean
			sq += d * d
		}
		out[i-period+1] = math.Sqrt(sq / float64(period))
	}
	return out
}
