package scoring

import (
	"fmt"
	"math"

	"perpsignals/internal/indicator"
	"perpsignals/internal/model"
)

// Aggregate folds a snapshot into the category read. Absent indicators
// contribute nothing and shrink the confidence ceiling, so a thin window
// yields a low-information neutral result rather than a failure.
func Aggregate(s *indicator.Snapshot) Result {
	if s == nil {
		s = &indicator.Snapshot{}
	}

	var reasons []model.Reason
	var b Breakdown
	b.Trend = scoreTrend(s, &reasons)
	b.Momentum = scoreMomentum(s, &reasons)
	b.Volatility = scoreVolatility(s, &reasons)
	b.Volume = scoreVolume(s, &reasons)
	b.Perp = scorePerp(s, &reasons)
	b.Total = b.Trend + b.Momentum + b.Volatility + b.Volume + b.Perp

	if len(s.Available()) == 0 {
		reasons = append(reasons, model.Reason{
			Source: "window",
			Detail: "insufficient history: no indicator reached warm-up",
			Weight: 1,
		})
	}

	bias := BiasFromScore(b.Total)
	return Result{
		Bias:       bias,
		Direction:  bias.Direction(),
		Confidence: confidence(b, ceiling(s)),
		Breakdown:  b,
		Risk:       assessRisk(s, b.Total),
		Reasons:    reasons,
	}
}

func note(rs *[]model.Reason, id indicator.ID, detail string, contribution int) {
	*rs = append(*rs, model.Reason{
		Source:       string(id),
		Detail:       detail,
		Weight:       1,
		Contribution: float64(contribution),
	})
}

func scoreTrend(s *indicator.Snapshot, rs *[]model.Reason) int {
	score := 0
	if v := s.Ema; v != nil {
		switch v.State {
		case indicator.EMABullishCross:
			score += 2
			note(rs, indicator.IDEma, fmt.Sprintf("Golden Cross EMA%d/%d", v.FastPeriod, v.SlowPeriod), 2)
		case indicator.EMABearishCross:
			score -= 2
			note(rs, indicator.IDEma, fmt.Sprintf("Death Cross EMA%d/%d", v.FastPeriod, v.SlowPeriod), -2)
		case indicator.EMAStrongUptrend:
			score++
			note(rs, indicator.IDEma, "Strong uptrend structure", 1)
		case indicator.EMAStrongDowntrend:
			score--
			note(rs, indicator.IDEma, "Strong downtrend structure", -1)
		}
	}
	if v := s.SuperTrend; v != nil {
		switch v.State {
		case indicator.SuperTrendBullishFlip:
			score += 2
			note(rs, indicator.IDSuperTrend, "SuperTrend flip bullish", 2)
		case indicator.SuperTrendBearishFlip:
			score -= 2
			note(rs, indicator.IDSuperTrend, "SuperTrend flip bearish", -2)
		case indicator.SuperTrendBullish:
			score++
		case indicator.SuperTrendBearish:
			score--
		}
	}
	return clampScore(score, MaxScore(Trend))
}

func scoreMomentum(s *indicator.Snapshot, rs *[]model.Reason) int {
	score := 0
	if v := s.Rsi; v != nil {
		switch v.State {
		case indicator.RSIBullishDivergence:
			score += 2
			note(rs, indicator.IDRsi, "RSI bullish divergence", 2)
		case indicator.RSIBearishDivergence:
			score -= 2
			note(rs, indicator.IDRsi, "RSI bearish divergence", -2)
		case indicator.RSIOversold:
			score++
			note(rs, indicator.IDRsi, "RSI oversold", 1)
		case indicator.RSIOverbought:
			score--
			note(rs, indicator.IDRsi, "RSI overbought", -1)
		}
	}
	if v := s.Macd; v != nil {
		switch v.State {
		case indicator.MACDBullishCross:
			score += 2
			note(rs, indicator.IDMacd, "MACD bullish cross", 2)
		case indicator.MACDBearishCross:
			score -= 2
			note(rs, indicator.IDMacd, "MACD bearish cross", -2)
		case indicator.MACDBullishMomentum:
			score++
		case indicator.MACDBearishMomentum:
			score--
		}
	}
	return clampScore(score, MaxScore(Momentum))
}

func scoreVolatility(s *indicator.Snapshot, rs *[]model.Reason) int {
	score := 0
	if v := s.Bollinger; v != nil {
		switch v.State {
		case indicator.BollingerSqueeze:
			note(rs, indicator.IDBollinger, "Bollinger Squeeze - breakout setup", 0)
		case indicator.BollingerUpperBreakout:
			score++
			note(rs, indicator.IDBollinger, "Price broke above Bollinger upper", 1)
		case indicator.BollingerLowerBreakout:
			score--
			note(rs, indicator.IDBollinger, "Price broke below Bollinger lower", -1)
		case indicator.BollingerMeanReversion:
			note(rs, indicator.IDBollinger, "Bollinger mean reversion", 0)
		case indicator.BollingerWalkingBands:
			note(rs, indicator.IDBollinger, "Walking the bands - strong trend", 0)
		}
	}
	if v := s.Atr; v != nil {
		switch v.Regime {
		case indicator.ATRHigh:
			note(rs, indicator.IDAtr, "High volatility - reduce size", 0)
		case indicator.ATRLow:
			note(rs, indicator.IDAtr, "Low volatility - breakout potential", 0)
		case indicator.ATRElevated:
			note(rs, indicator.IDAtr, "Elevated volatility", 0)
		}
	}
	return clampScore(score, MaxScore(Volatility))
}

func scoreVolume(s *indicator.Snapshot, rs *[]model.Reason) int {
	score := 0
	if v := s.Obv; v != nil {
		switch v.State {
		case indicator.OBVBullishDivergence:
			score += 2
			note(rs, indicator.IDObv, "OBV bullish divergence", 2)
		case indicator.OBVBearishDivergence:
			score -= 2
			note(rs, indicator.IDObv, "OBV bearish divergence", -2)
		case indicator.OBVConfirmation:
			score++
			note(rs, indicator.IDObv, "Volume confirms price action", 1)
		}
	}
	if v := s.VolumeProfile; v != nil {
		switch v.State {
		case indicator.VPPOCSupport:
			score++
			note(rs, indicator.IDVolumeProfile, "Price at POC support", 1)
		case indicator.VPPOCResistance:
			score--
			note(rs, indicator.IDVolumeProfile, "Price at POC resistance", -1)
		case indicator.VPNearLVN:
			note(rs, indicator.IDVolumeProfile, "Near LVN - expect fast move", 0)
		}
	}
	return clampScore(score, MaxScore(Volume))
}

func scorePerp(s *indicator.Snapshot, rs *[]model.Reason) int {
	score := 0
	if v := s.OpenInterest; v != nil {
		switch v.State {
		case indicator.OIBullishExpansion:
			score += 2
			note(rs, indicator.IDOpenInterest, "New money entering longs", 2)
		case indicator.OIBearishExpansion:
			score -= 2
			note(rs, indicator.IDOpenInterest, "New money entering shorts", -2)
		case indicator.OIShortSqueeze:
			score++
			note(rs, indicator.IDOpenInterest, "Potential short squeeze", 1)
		case indicator.OILongSqueeze:
			score--
			note(rs, indicator.IDOpenInterest, "Long squeeze in progress", -1)
		}
	}
	if v := s.FundingRate; v != nil {
		switch v.State {
		case indicator.FundingExtremeLongBias:
			score--
			note(rs, indicator.IDFundingRate, "Extreme long bias - caution", -1)
		case indicator.FundingExtremeShortBias:
			score++
			note(rs, indicator.IDFundingRate, "Extreme short bias - bounce potential", 1)
		}
	}
	return clampScore(score, MaxScore(Perp))
}

func clampScore(v, limit int) int {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func maxIf(present bool, m int) int {
	if present {
		return m
	}
	return 0
}

// ceiling is the confidence denominator: per directional category, the
// largest |score| the present indicators could reach, clamp applied.
// Volatility never enters the denominator. With every indicator present the
// ceiling is 3+3+2+2 = 10.
func ceiling(s *indicator.Snapshot) int {
	trend := clampScore(maxIf(s.Ema != nil, 2)+maxIf(s.SuperTrend != nil, 2), MaxScore(Trend))
	momentum := clampScore(maxIf(s.Rsi != nil, 2)+maxIf(s.Macd != nil, 2), MaxScore(Momentum))
	volume := clampScore(maxIf(s.Obv != nil, 2)+maxIf(s.VolumeProfile != nil, 1), MaxScore(Volume))
	perp := clampScore(maxIf(s.OpenInterest != nil, 2)+maxIf(s.FundingRate != nil, 1), MaxScore(Perp))
	return trend + momentum + volume + perp
}

// confidence measures how much of the reachable score lined up on one side,
// with a bonus when trend and momentum agree and a penalty when they do not.
func confidence(b Breakdown, ceiling int) float64 {
	if ceiling == 0 {
		return 0
	}
	var pos, neg float64
	for _, sc := range [...]int{b.Trend, b.Momentum, b.Volume, b.Perp} {
		switch {
		case sc > 0:
			pos += float64(sc)
		case sc < 0:
			neg += float64(-sc)
		}
	}
	conf := math.Max(pos, neg) / float64(ceiling)
	if (b.Trend > 0 && b.Momentum > 0) || (b.Trend < 0 && b.Momentum < 0) {
		conf = math.Min(conf*1.2, 1.0)
	} else {
		conf *= 0.8
	}
	return math.Min(math.Max(conf, 0), 1)
}

// assessRisk counts risk factors: high volatility weighs double, funding
// extremes and weak totals add one each, and a fresh RSI divergence buys
// one factor back.
func assessRisk(s *indicator.Snapshot, total int) RiskLevel {
	factors := 0
	if s.Atr != nil && s.Atr.Regime == indicator.ATRHigh {
		factors += 2
	}
	if f := s.FundingRate; f != nil &&
		(f.State == indicator.FundingExtremeLongBias || f.State == indicator.FundingExtremeShortBias) {
		factors++
	}
	if total > -2 && total < 2 {
		factors++
	}
	if r := s.Rsi; r != nil &&
		(r.State == indicator.RSIBullishDivergence || r.State == indicator.RSIBearishDivergence) {
		if factors > 0 {
			factors--
		}
	}
	switch {
	case factors >= 3:
		return RiskHigh
	case factors >= 1:
		return RiskMedium
	default:
		return RiskLow
	}
}
