package indicator

import "fmt"

// Validate rejects tunings the engine cannot run with. It is called once
// when the tuning file is loaded, so indicator code can assume sane
// parameters afterwards.
func (p Params) Validate() error {
	if p.EMAFast <= 0 || p.EMASlow <= p.EMAFast {
		return fmt.Errorf("ema periods invalid: fast=%d slow=%d", p.EMAFast, p.EMASlow)
	}
	if p.MACDFast <= 0 || p.MACDSlow <= p.MACDFast || p.MACDSignal <= 0 {
		return fmt.Errorf("macd periods invalid: fast=%d slow=%d signal=%d", p.MACDFast, p.MACDSlow, p.MACDSignal)
	}
	if p.RSIPeriod <= 0 {
		return fmt.Errorf("rsi period invalid: %d", p.RSIPeriod)
	}
	if p.RSIOversold <= 0 || p.RSIOverbought <= p.RSIOversold || p.RSIOverbought >= 100 {
		return fmt.Errorf("rsi cut-points invalid: overbought=%g oversold=%g", p.RSIOverbought, p.RSIOversold)
	}
	if p.RSIDivergenceLookback < 0 {
		return fmt.Errorf("rsi divergence lookback invalid: %d", p.RSIDivergenceLookback)
	}
	if p.BollingerPeriod <= 1 || p.BollingerStdDev <= 0 || p.BollingerSqueeze < 0 {
		return fmt.Errorf("bollinger params invalid: period=%d stddev=%g squeeze=%g",
			p.BollingerPeriod, p.BollingerStdDev, p.BollingerSqueeze)
	}
	if p.ATRPeriod <= 0 || p.ATRRegimeLookback <= 0 {
		return fmt.Errorf("atr params invalid: period=%d regime_lookback=%d", p.ATRPeriod, p.ATRRegimeLookback)
	}
	if p.SuperTrendPeriod <= 0 || p.SuperTrendMult <= 0 {
		return fmt.Errorf("supertrend params invalid: period=%d mult=%g", p.SuperTrendPeriod, p.SuperTrendMult)
	}
	if p.OBVSmoothing <= 0 || p.OBVSmoothing > 1 {
		return fmt.Errorf("obv smoothing invalid: %g", p.OBVSmoothing)
	}
	if p.VPTickSize <= 0 || p.VPLookback <= 0 {
		return fmt.Errorf("volume profile params invalid: tick=%g lookback=%d", p.VPTickSize, p.VPLookback)
	}
	if p.FundingLookback <= 0 || p.FundingHigh <= 0 || p.FundingExtreme <= p.FundingHigh {
		return fmt.Errorf("funding params invalid: lookback=%d extreme=%g high=%g",
			p.FundingLookback, p.FundingExtreme, p.FundingHigh)
	}
	if p.OIChangePct <= 0 || p.OISmoothing <= 0 || p.OISmoothing > 1 {
		return fmt.Errorf("open interest params invalid: change_pct=%g smoothing=%g", p.OIChangePct, p.OISmoothing)
	}
	return nil
}
