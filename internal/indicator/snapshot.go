package indicator

import "encoding/json"

// Snapshot holds one value per indicator for a single symbol and candle
// window. A nil entry means the indicator could not be computed from the
// window (insufficient history, or missing perp fields); consumers must
// treat nil as absent, never as zero.
type Snapshot struct {
	Macd          *MACDValue          `json:"macd,omitempty"`
	Rsi           *RSIValue           `json:"rsi,omitempty"`
	Ema           *EMAValue           `json:"ema,omitempty"`
	SuperTrend    *SuperTrendValue    `json:"super_trend,omitempty"`
	Bollinger     *BollingerValue     `json:"bollinger,omitempty"`
	Atr           *ATRValue           `json:"atr,omitempty"`
	Obv           *OBVValue           `json:"obv,omitempty"`
	VolumeProfile *VolumeProfileValue `json:"volume_profile,omitempty"`
	FundingRate   *FundingValue       `json:"funding_rate,omitempty"`
	OpenInterest  *OpenInterestValue  `json:"open_interest,omitempty"`
}

// Available lists the indicators present in the snapshot, in AllIDs order.
func (s *Snapshot) Available() []ID {
	ids := make([]ID, 0, len(AllIDs))
	for _, id := range AllIDs {
		if _, ok := s.Field(id); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Unavailable lists the indicators absent from the snapshot.
func (s *Snapshot) Unavailable() []ID {
	var ids []ID
	for _, id := range AllIDs {
		if _, ok := s.Field(id); !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// JSON renders the snapshot for transport. Errors cannot occur on this
// shape, so the signature stays simple.
func (s *Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Field is the rule-facing view of one indicator: a comparison scalar, the
// current signal state, and the scale's fixed polarity (+1 when a larger
// scalar is bullish, -1 when inverted, 0 when the scale is directionless).
type Field struct {
	Scalar   float64
	State    string
	Polarity int
}

// Field projects one indicator onto its rule-facing scalar and state.
// The second return is false when the indicator is absent.
//
// Scalars: MACD histogram, RSI value (inverted: low is bullish), EMA
// fast-slow spread, SuperTrend side (±1), Bollinger %B, ATR value
// (directionless), raw OBV, volume-profile distance from the POC, funding
// rate (inverted: positive funding is crowded longs), open-interest percent
// change.
func (s *Snapshot) Field(id ID) (Field, bool) {
	switch id {
	case IDMacd:
		if s.Macd != nil {
			return Field{s.Macd.Histogram, string(s.Macd.State), 1}, true
		}
	case IDRsi:
		if s.Rsi != nil {
			return Field{s.Rsi.Value, string(s.Rsi.State), -1}, true
		}
	case IDEma:
		if s.Ema != nil {
			return Field{s.Ema.Fast - s.Ema.Slow, string(s.Ema.State), 1}, true
		}
	case IDSuperTrend:
		if s.SuperTrend != nil {
			return Field{float64(s.SuperTrend.Direction), string(s.SuperTrend.State), 1}, true
		}
	case IDBollinger:
		if s.Bollinger != nil {
			return Field{s.Bollinger.PercentB, string(s.Bollinger.State), 1}, true
		}
	case IDAtr:
		if s.Atr != nil {
			return Field{s.Atr.Value, string(s.Atr.Regime), 0}, true
		}
	case IDObv:
		if s.Obv != nil {
			return Field{s.Obv.Value, string(s.Obv.State), 1}, true
		}
	case IDVolumeProfile:
		if s.VolumeProfile != nil {
			return Field{s.VolumeProfile.POCDistance, string(s.VolumeProfile.State), 1}, true
		}
	case IDFundingRate:
		if s.FundingRate != nil {
			return Field{s.FundingRate.Current, string(s.FundingRate.State), -1}, true
		}
	case IDOpenInterest:
		if s.OpenInterest != nil {
			return Field{s.OpenInterest.ChangePct, string(s.OpenInterest.State), 1}, true
		}
	}
	return Field{}, false
}

// stateSigns maps every reportable state to its direction; states absent
// from the table are directionless. Funding bias reads contrarian.
var stateSigns = map[ID]map[string]int{
	IDMacd: {
		string(MACDBullishCross):    1,
		string(MACDBearishCross):    -1,
		string(MACDBullishMomentum): 1,
		string(MACDBearishMomentum): -1,
	},
	IDRsi: {
		string(RSIOversold):          1,
		string(RSIOverbought):        -1,
		string(RSIBullishDivergence): 1,
		string(RSIBearishDivergence): -1,
	},
	IDEma: {
		string(EMABullishCross):    1,
		string(EMABearishCross):    -1,
		string(EMAStrongUptrend):   1,
		string(EMAStrongDowntrend): -1,
	},
	IDSuperTrend: {
		string(SuperTrendBullish):     1,
		string(SuperTrendBearish):     -1,
		string(SuperTrendBullishFlip): 1,
		string(SuperTrendBearishFlip): -1,
	},
	IDBollinger: {
		string(BollingerUpperBreakout): 1,
		string(BollingerLowerBreakout): -1,
	},
	IDObv: {
		string(OBVBullishDivergence): 1,
		string(OBVBearishDivergence): -1,
		string(OBVConfirmation):      1,
	},
	IDVolumeProfile: {
		string(VPPOCSupport):    1,
		string(VPPOCResistance): -1,
	},
	IDFundingRate: {
		string(FundingExtremeLongBias):  -1,
		string(FundingExtremeShortBias): 1,
		string(FundingHighLongBias):     -1,
		string(FundingHighShortBias):    1,
	},
	IDOpenInterest: {
		string(OIBullishExpansion): 1,
		string(OIBearishExpansion): -1,
		string(OIShortSqueeze):     1,
		string(OILongSqueeze):      -1,
	},
}

// StateSign returns the direction a signal state leans: +1 bullish,
// -1 bearish, 0 directionless or unknown.
func StateSign(id ID, state string) int {
	return stateSigns[id][state]
}

// knownStates enumerates every state an indicator can report, "None"
// included, for strategy validation.
var knownStates = map[ID][]string{
	IDMacd: {
		string(MACDNone), string(MACDBullishCross), string(MACDBearishCross),
		string(MACDBullishMomentum), string(MACDBearishMomentum),
	},
	IDRsi: {
		string(RSINone), string(RSIOversold), string(RSIOverbought),
		string(RSIBullishDivergence), string(RSIBearishDivergence),
	},
	IDEma: {
		string(EMANone), string(EMABullishCross), string(EMABearishCross),
		string(EMAStrongUptrend), string(EMAStrongDowntrend),
	},
	IDSuperTrend: {
		string(SuperTrendNone), string(SuperTrendBullish), string(SuperTrendBearish),
		string(SuperTrendBullishFlip), string(SuperTrendBearishFlip),
	},
	IDBollinger: {
		string(BollingerNone), string(BollingerSqueeze),
		string(BollingerUpperBreakout), string(BollingerLowerBreakout),
		string(BollingerMeanReversion), string(BollingerWalkingBands),
	},
	IDAtr: {
		string(ATRHigh), string(ATRElevated), string(ATRNormal), string(ATRLow),
	},
	IDObv: {
		string(OBVNone), string(OBVBullishDivergence),
		string(OBVBearishDivergence), string(OBVConfirmation),
	},
	IDVolumeProfile: {
		string(VPNone), string(VPPOCSupport), string(VPPOCResistance),
		string(VPNearHVN), string(VPNearLVN),
	},
	IDFundingRate: {
		string(FundingNone), string(FundingExtremeLongBias), string(FundingExtremeShortBias),
		string(FundingHighLongBias), string(FundingHighShortBias),
		string(FundingNeutralPositive), string(FundingNeutralNegative),
	},
	IDOpenInterest: {
		string(OINone), string(OIBullishExpansion), string(OIBearishExpansion),
		string(OILongSqueeze), string(OIShortSqueeze),
	},
}

// KnownState reports whether state is one an indicator can actually emit.
func KnownState(id ID, state string) bool {
	for _, s := range knownStates[id] {
		if s == state {
			return true
		}
	}
	return false
}

// KnownID reports whether id names one of the ten indicators.
func KnownID(id ID) bool {
	for _, known := range AllIDs {
		if known == id {
			return true
		}
	}
	return false
}
