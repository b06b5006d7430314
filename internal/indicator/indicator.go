// Package indicator turns a candle window into numeric indicator values and
// per-indicator signal states. Every computation is a pure function of the
// window: no wall clock, no retained state, identical input yields identical
// output. An indicator whose warm-up exceeds the window reports absence (a
// nil snapshot entry) rather than a default value; callers exclude absent
// indicators from scoring and confidence denominators.
package indicator

// ID is the fixed identifier an indicator is keyed by in snapshots,
// strategy conditions, and reason trails.
type ID string

const (
	IDMacd          ID = "Macd"
	IDRsi           ID = "Rsi"
	IDEma           ID = "Ema"
	IDSuperTrend    ID = "SuperTrend"
	IDBollinger     ID = "Bollinger"
	IDAtr           ID = "Atr"
	IDObv           ID = "Obv"
	IDVolumeProfile ID = "VolumeProfile"
	IDFundingRate   ID = "FundingRate"
	IDOpenInterest  ID = "OpenInterest"
)

// AllIDs lists every indicator in snapshot order.
var AllIDs = [...]ID{
	IDMacd, IDRsi, IDEma, IDSuperTrend, IDBollinger,
	IDAtr, IDObv, IDVolumeProfile, IDFundingRate, IDOpenInterest,
}

// Params carries every tunable period and threshold. Zero values are not
// usable; construct via DefaultParams and override from the tuning file.
type Params struct {
	EMAFast int `yaml:"ema_fast"`
	EMASlow int `yaml:"ema_slow"`

	MACDFast   int `yaml:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow"`
	MACDSignal int `yaml:"macd_signal"`

	RSIPeriod             int     `yaml:"rsi_period"`
	RSIOverbought         float64 `yaml:"rsi_overbought"`
	RSIOversold           float64 `yaml:"rsi_oversold"`
	RSIDivergenceLookback int     `yaml:"rsi_divergence_lookback"`

	BollingerPeriod  int     `yaml:"bollinger_period"`
	BollingerStdDev  float64 `yaml:"bollinger_std_dev"`
	BollingerSqueeze float64 `yaml:"bollinger_squeeze"` // bandwidth below this is a squeeze

	ATRPeriod         int `yaml:"atr_period"`
	ATRRegimeLookback int `yaml:"atr_regime_lookback"`

	SuperTrendPeriod int     `yaml:"supertrend_period"`
	SuperTrendMult   float64 `yaml:"supertrend_mult"`

	OBVSmoothing float64 `yaml:"obv_smoothing"` // weight of the newest OBV value

	VPTickSize float64 `yaml:"vp_tick_size"`
	VPLookback int     `yaml:"vp_lookback"`

	FundingLookback int     `yaml:"funding_lookback"`
	FundingExtreme  float64 `yaml:"funding_extreme"`
	FundingHigh     float64 `yaml:"funding_high"`

	OIChangePct float64 `yaml:"oi_change_pct"`
	OISmoothing float64 `yaml:"oi_smoothing"`
}

// DefaultParams returns the standard tuning: MACD 12/26/9, RSI 14 with 70/30
// cut-points, EMA 20/50, Bollinger 20/2σ, ATR 14, SuperTrend 10/3.0.
func DefaultParams() Params {
	return Params{
		EMAFast:               20,
		EMASlow:               50,
		MACDFast:              12,
		MACDSlow:              26,
		MACDSignal:            9,
		RSIPeriod:             14,
		RSIOverbought:         70,
		RSIOversold:           30,
		RSIDivergenceLookback: 14,
		BollingerPeriod:       20,
		BollingerStdDev:       2.0,
		BollingerSqueeze:      0.05,
		ATRPeriod:             14,
		ATRRegimeLookback:     14,
		SuperTrendPeriod:      10,
		SuperTrendMult:        3.0,
		OBVSmoothing:          0.1,
		VPTickSize:            10.0,
		VPLookback:            240,
		FundingLookback:       24,
		FundingExtreme:        0.001,
		FundingHigh:           0.0005,
		OIChangePct:           2.0,
		OISmoothing:           0.2,
	}
}

// Warmup returns the minimum window length (candles, or perp-field samples
// for FundingRate/OpenInterest) an indicator needs before it reports a value.
func Warmup(id ID, p Params) int {
	switch id {
	case IDEma:
		return p.EMASlow
	case IDMacd:
		return p.MACDSlow + p.MACDSignal - 1
	case IDRsi:
		return p.RSIPeriod + 1
	case IDBollinger:
		return p.BollingerPeriod
	case IDAtr:
		return p.ATRPeriod
	case IDSuperTrend:
		return p.SuperTrendPeriod + 1
	case IDObv:
		return 2
	case IDVolumeProfile:
		return 1
	case IDFundingRate:
		return 1
	case IDOpenInterest:
		return 2
	default:
		return 0
	}
}
