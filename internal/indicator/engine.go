package indicator

import "perpsignals/internal/model"

// Engine computes the full snapshot for a candle window. It holds only the
// tuning parameters, so one engine serves any number of symbols and
// goroutines concurrently.
type Engine struct {
	params Params
}

// NewEngine creates an engine with the given tuning.
func NewEngine(p Params) *Engine {
	return &Engine{params: p}
}

// Params returns the engine's tuning.
func (e *Engine) Params() Params {
	return e.params
}

// Compute derives every indicator from the window. Candles must already be
// validated and in ascending time order. Indicators whose warm-up exceeds
// the window come back nil inside the snapshot; Compute itself never fails.
func (e *Engine) Compute(candles []model.Candle) *Snapshot {
	p := e.params
	closes := model.Closes(candles)
	return &Snapshot{
		Macd:          MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal),
		Rsi:           RSI(closes, p.RSIPeriod, p.RSIOverbought, p.RSIOversold, p.RSIDivergenceLookback),
		Ema:           EMACross(closes, p.EMAFast, p.EMASlow),
		SuperTrend:    SuperTrend(candles, p.SuperTrendPeriod, p.SuperTrendMult),
		Bollinger:     Bollinger(closes, p.BollingerPeriod, p.BollingerStdDev, p.BollingerSqueeze),
		Atr:           ATR(candles, p.ATRPeriod, p.ATRRegimeLookback),
		Obv:           OBV(candles, p.OBVSmoothing),
		VolumeProfile: VolumeProfile(candles, p.VPTickSize, p.VPLookback),
		FundingRate:   FundingRate(candles, p.FundingLookback, p.FundingExtreme, p.FundingHigh),
		OpenInterest:  OpenInterest(candles, p.OIChangePct, p.OISmoothing),
	}
}
